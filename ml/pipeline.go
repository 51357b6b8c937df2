package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const artifactVersion = 1

// Pipeline is a fitted vectorizer and classifier, persisted together.
type Pipeline struct {
	ModelType  string
	Vectorizer *TfidfVectorizer
	Classifier Classifier
	TrainedAt  time.Time
	Samples    int
}

type Prediction struct {
	Label         int       `json:"label"`
	Sentiment     string    `json:"sentiment"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
}

// Probability returns the probability of a class, 0 when out of range.
func (p Prediction) Probability(label int) float64 {
	if label < 0 || label >= len(p.Probabilities) {
		return 0
	}
	return p.Probabilities[label]
}

// TrainPipeline fits the vectorizer on the training texts, then the
// classifier on the resulting vectors.
func TrainPipeline(ctx context.Context, modelType string, vcfg VectorizerConfig, h Hyperparams, train *LabeledData) (*Pipeline, error) {
	if train == nil || train.Len() == 0 {
		return nil, errors.New("no training data")
	}
	canonical, err := CanonicalModelType(modelType)
	if err != nil {
		return nil, err
	}
	clf, err := NewClassifier(canonical, h)
	if err != nil {
		return nil, err
	}

	vec := NewTfidfVectorizer(vcfg)
	x, err := vec.FitTransform(train.Texts)
	if err != nil {
		return nil, fmt.Errorf("fit vectorizer: %w", err)
	}
	if err := clf.Fit(ctx, x, train.Labels, vec.Dim()); err != nil {
		return nil, fmt.Errorf("fit %s: %w", canonical, err)
	}

	return &Pipeline{
		ModelType:  canonical,
		Vectorizer: vec,
		Classifier: clf,
		TrainedAt:  time.Now().UTC(),
		Samples:    train.Len(),
	}, nil
}

func (p *Pipeline) Predict(text string) (Prediction, error) {
	if p == nil || p.Vectorizer == nil || p.Classifier == nil {
		return Prediction{}, ErrNotFitted
	}
	probs, err := p.Classifier.PredictProba(p.Vectorizer.Transform(text))
	if err != nil {
		return Prediction{}, err
	}
	label := argmax(probs)
	return Prediction{
		Label:         label,
		Sentiment:     ClassName(label),
		Confidence:    probs[label],
		Probabilities: probs,
	}, nil
}

func (p *Pipeline) Evaluate(test *LabeledData) (Report, error) {
	if test == nil || test.Len() == 0 {
		return Report{}, errors.New("no test data")
	}
	predicted := make([]int, test.Len())
	for i, text := range test.Texts {
		pred, err := p.Predict(text)
		if err != nil {
			return Report{}, err
		}
		predicted[i] = pred.Label
	}
	return Evaluate(test.Labels, predicted)
}

type artifact struct {
	Version    int              `json:"format_version"`
	ModelType  string           `json:"model_type"`
	TrainedAt  time.Time        `json:"trained_at"`
	Samples    int              `json:"samples"`
	Vectorizer *TfidfVectorizer `json:"vectorizer"`
	Classifier json.RawMessage  `json:"classifier"`
}

// Save writes the pipeline to a temp file and renames it over path.
func Save(path string, p *Pipeline) error {
	if p == nil || p.Vectorizer == nil || p.Classifier == nil {
		return ErrNotFitted
	}
	clf, err := json.Marshal(p.Classifier)
	if err != nil {
		return fmt.Errorf("encode classifier: %w", err)
	}
	payload, err := json.Marshal(artifact{
		Version:    artifactVersion,
		ModelType:  p.ModelType,
		TrainedAt:  p.TrainedAt,
		Samples:    p.Samples,
		Vectorizer: p.Vectorizer,
		Classifier: clf,
	})
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func Load(path string) (*Pipeline, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("unsupported model format version %d", a.Version)
	}
	if a.Vectorizer == nil || !a.Vectorizer.Fitted() {
		return nil, errors.New("model file has no fitted vectorizer")
	}
	clf, err := decodeClassifier(a.ModelType, a.Classifier)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		ModelType:  a.ModelType,
		Vectorizer: a.Vectorizer,
		Classifier: clf,
		TrainedAt:  a.TrainedAt,
		Samples:    a.Samples,
	}, nil
}
