package ml

import (
	"context"
)

// LogisticRegression is multinomial logistic regression trained with
// full-batch gradient descent and L2 regularization.
type LogisticRegression struct {
	LearningRate float64     `json:"learning_rate"`
	Epochs       int         `json:"epochs"`
	L2           float64     `json:"l2"`
	Weights      [][]float64 `json:"weights"`
	Bias         []float64   `json:"bias"`
}

func (m *LogisticRegression) Fit(ctx context.Context, x []SparseVector, y []int, dim int) error {
	if err := validateTrainingSet(x, y, dim); err != nil {
		return err
	}
	if m.LearningRate <= 0 {
		m.LearningRate = 1.0
	}
	if m.Epochs <= 0 {
		m.Epochs = 500
	}

	m.Weights = make([][]float64, NumClasses)
	grad := make([][]float64, NumClasses)
	for k := range m.Weights {
		m.Weights[k] = make([]float64, dim)
		grad[k] = make([]float64, dim)
	}
	m.Bias = make([]float64, NumClasses)
	gradBias := make([]float64, NumClasses)
	probs := make([]float64, NumClasses)
	n := float64(len(x))

	for epoch := 0; epoch < m.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for k := range grad {
			clear(grad[k])
		}
		clear(gradBias)

		for i, xi := range x {
			m.scores(xi, probs)
			softmaxInPlace(probs)
			for k := range probs {
				g := probs[k]
				if y[i] == k {
					g -= 1
				}
				gradBias[k] += g
				for nz, j := range xi.Indices {
					grad[k][j] += g * xi.Values[nz]
				}
			}
		}

		for k := range m.Weights {
			w := m.Weights[k]
			for j := range w {
				w[j] -= m.LearningRate * (grad[k][j]/n + m.L2*w[j])
			}
			m.Bias[k] -= m.LearningRate * gradBias[k] / n
		}
	}
	return nil
}

func (m *LogisticRegression) scores(x SparseVector, out []float64) {
	for k := range out {
		out[k] = m.Bias[k] + x.Dot(m.Weights[k])
	}
}

func (m *LogisticRegression) PredictProba(x SparseVector) ([]float64, error) {
	if len(m.Weights) != NumClasses || len(m.Bias) != NumClasses {
		return nil, ErrNotFitted
	}
	probs := make([]float64, NumClasses)
	m.scores(x, probs)
	softmaxInPlace(probs)
	return probs, nil
}
