package ml

import "errors"

type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Report mirrors a classification report for the three sentiment classes.
// ConfusionMatrix rows are actual classes, columns predicted ones.
type Report struct {
	Accuracy        float64                  `json:"accuracy"`
	ConfusionMatrix [][]int                  `json:"confusion_matrix"`
	PerClass        [NumClasses]ClassMetrics `json:"per_class"`
	MacroAvg        ClassMetrics             `json:"macro_avg"`
	WeightedAvg     ClassMetrics             `json:"weighted_avg"`
}

// Class returns metrics for a label; zero value when out of range.
func (r Report) Class(label int) ClassMetrics {
	if label < 0 || label >= NumClasses {
		return ClassMetrics{}
	}
	return r.PerClass[label]
}

// Evaluate computes accuracy, the confusion matrix and per-class scores.
// Undefined ratios (zero denominators) are reported as 0.
func Evaluate(yTrue, yPred []int) (Report, error) {
	if len(yTrue) != len(yPred) {
		return Report{}, errors.New("label and prediction counts differ")
	}
	if len(yTrue) == 0 {
		return Report{}, errors.New("nothing to evaluate")
	}

	cm := make([][]int, NumClasses)
	for k := range cm {
		cm[k] = make([]int, NumClasses)
	}
	correct := 0
	for i, actual := range yTrue {
		predicted := yPred[i]
		if actual < 0 || actual >= NumClasses || predicted < 0 || predicted >= NumClasses {
			return Report{}, errors.New("label out of range")
		}
		cm[actual][predicted]++
		if actual == predicted {
			correct++
		}
	}

	report := Report{
		Accuracy:        float64(correct) / float64(len(yTrue)),
		ConfusionMatrix: cm,
	}

	total := len(yTrue)
	for k := 0; k < NumClasses; k++ {
		tp := cm[k][k]
		predicted, actual := 0, 0
		for j := 0; j < NumClasses; j++ {
			predicted += cm[j][k]
			actual += cm[k][j]
		}
		m := ClassMetrics{
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, actual),
			Support:   actual,
		}
		if m.Precision+m.Recall > 0 {
			m.F1Score = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.PerClass[k] = m

		report.MacroAvg.Precision += m.Precision / NumClasses
		report.MacroAvg.Recall += m.Recall / NumClasses
		report.MacroAvg.F1Score += m.F1Score / NumClasses

		w := float64(actual) / float64(total)
		report.WeightedAvg.Precision += m.Precision * w
		report.WeightedAvg.Recall += m.Recall * w
		report.WeightedAvg.F1Score += m.F1Score * w
	}
	report.MacroAvg.Support = total
	report.WeightedAvg.Support = total
	return report, nil
}

func ratio(num, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}
