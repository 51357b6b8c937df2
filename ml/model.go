package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrUnsupportedModel = errors.New("unsupported model type")
	ErrNotFitted        = errors.New("model not trained")
)

const (
	ModelLogistic     = "logistic"
	ModelNaiveBayes   = "naive_bayes"
	ModelDecisionTree = "decision_tree"
)

// Classifier is a multi-class model over sparse feature vectors.
type Classifier interface {
	Fit(ctx context.Context, x []SparseVector, y []int, dim int) error
	PredictProba(x SparseVector) ([]float64, error)
}

type Hyperparams struct {
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
	L2           float64 `json:"l2"`
	Alpha        float64 `json:"alpha"`
	MaxDepth     int     `json:"max_depth"`
}

func DefaultHyperparams() Hyperparams {
	return Hyperparams{LearningRate: 1.0, Epochs: 500, L2: 1e-4, Alpha: 1.0, MaxDepth: 12}
}

var makers = map[string]func(Hyperparams) Classifier{
	ModelLogistic: func(h Hyperparams) Classifier {
		return &LogisticRegression{LearningRate: h.LearningRate, Epochs: h.Epochs, L2: h.L2}
	},
	ModelNaiveBayes: func(h Hyperparams) Classifier {
		return &NaiveBayes{Alpha: h.Alpha}
	},
	ModelDecisionTree: func(h Hyperparams) Classifier {
		return NewDecisionTree(h.MaxDepth)
	},
}

var aliases = map[string]string{
	"logistic_regression": ModelLogistic,
	"naive-bayes":         ModelNaiveBayes,
	"nb":                  ModelNaiveBayes,
	"tree":                ModelDecisionTree,
}

func ModelTypes() []string {
	types := make([]string, 0, len(makers))
	for t := range makers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// CanonicalModelType resolves aliases and validates the type.
func CanonicalModelType(modelType string) (string, error) {
	if alias, ok := aliases[modelType]; ok {
		modelType = alias
	}
	if _, ok := makers[modelType]; !ok {
		return "", fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedModel, modelType, ModelTypes())
	}
	return modelType, nil
}

func NewClassifier(modelType string, h Hyperparams) (Classifier, error) {
	canonical, err := CanonicalModelType(modelType)
	if err != nil {
		return nil, err
	}
	return makers[canonical](h), nil
}

func decodeClassifier(modelType string, raw json.RawMessage) (Classifier, error) {
	clf, err := NewClassifier(modelType, DefaultHyperparams())
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, clf); err != nil {
		return nil, fmt.Errorf("decode %s classifier: %w", modelType, err)
	}
	return clf, nil
}

func validateTrainingSet(x []SparseVector, y []int, dim int) error {
	if len(x) == 0 || len(y) == 0 {
		return errors.New("features or labels empty")
	}
	if len(x) != len(y) {
		return errors.New("features and labels size mismatch")
	}
	if dim <= 0 {
		return errors.New("feature dimension must be positive")
	}
	for _, label := range y {
		if label < 0 || label >= NumClasses {
			return fmt.Errorf("label %d out of range", label)
		}
	}
	return nil
}

func softmaxInPlace(scores []float64) {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	var sum float64
	for i, s := range scores {
		scores[i] = expSafe(s - max)
		sum += scores[i]
	}
	if sum == 0 {
		for i := range scores {
			scores[i] = 1 / float64(len(scores))
		}
		return
	}
	for i := range scores {
		scores[i] /= sum
	}
}

func expSafe(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Exp(x)
}
