package ml

import (
	"context"
	"math"
)

// NaiveBayes is multinomial naive Bayes with additive (Laplace) smoothing.
// Classes absent from the training set get zero probability.
type NaiveBayes struct {
	Alpha          float64     `json:"alpha"`
	ClassCount     []int       `json:"class_count"`
	ClassLogPrior  []float64   `json:"class_log_prior"`
	FeatureLogProb [][]float64 `json:"feature_log_prob"`
}

func (m *NaiveBayes) Fit(ctx context.Context, x []SparseVector, y []int, dim int) error {
	if err := validateTrainingSet(x, y, dim); err != nil {
		return err
	}
	if m.Alpha <= 0 {
		m.Alpha = 1.0
	}

	m.ClassCount = make([]int, NumClasses)
	featureCount := make([][]float64, NumClasses)
	for k := range featureCount {
		featureCount[k] = make([]float64, dim)
	}
	for i, xi := range x {
		m.ClassCount[y[i]]++
		for nz, j := range xi.Indices {
			featureCount[y[i]][j] += xi.Values[nz]
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	total := float64(len(x))
	m.ClassLogPrior = make([]float64, NumClasses)
	m.FeatureLogProb = make([][]float64, NumClasses)
	for k := 0; k < NumClasses; k++ {
		m.FeatureLogProb[k] = make([]float64, dim)
		if m.ClassCount[k] == 0 {
			continue
		}
		m.ClassLogPrior[k] = math.Log(float64(m.ClassCount[k]) / total)

		var sum float64
		for _, c := range featureCount[k] {
			sum += c
		}
		denom := math.Log(sum + m.Alpha*float64(dim))
		for j, c := range featureCount[k] {
			m.FeatureLogProb[k][j] = math.Log(c+m.Alpha) - denom
		}
	}
	return nil
}

func (m *NaiveBayes) PredictProba(x SparseVector) ([]float64, error) {
	if len(m.ClassLogPrior) != NumClasses || len(m.FeatureLogProb) != NumClasses {
		return nil, ErrNotFitted
	}
	scores := make([]float64, NumClasses)
	for k := range scores {
		if m.ClassCount[k] == 0 {
			scores[k] = math.Inf(-1)
			continue
		}
		scores[k] = m.ClassLogPrior[k] + x.Dot(m.FeatureLogProb[k])
	}
	softmaxInPlace(scores)
	return scores, nil
}
