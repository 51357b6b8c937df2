package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// LabeledData pairs texts with class indices.
type LabeledData struct {
	Texts  []string
	Labels []int
}

func (d *LabeledData) Len() int {
	return len(d.Texts)
}

// TrainTestSplit shuffles with seed and moves ceil(n*testSize) rows to the
// test partition. Both partitions must end up non-empty.
func TrainTestSplit(data *LabeledData, testSize float64, seed int64) (train, test *LabeledData, err error) {
	if data == nil || data.Len() == 0 {
		return nil, nil, errors.New("no data to split")
	}
	if len(data.Texts) != len(data.Labels) {
		return nil, nil, errors.New("texts and labels size mismatch")
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test_size must be between 0 and 1, got %v", testSize)
	}

	n := data.Len()
	nTest := int(math.Ceil(float64(n) * testSize))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, nil, fmt.Errorf("test_size %v leaves an empty partition for %d rows", testSize, n)
	}

	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)

	train = &LabeledData{Texts: make([]string, 0, nTrain), Labels: make([]int, 0, nTrain)}
	test = &LabeledData{Texts: make([]string, 0, nTest), Labels: make([]int, 0, nTest)}
	for i, idx := range indices {
		if i < nTrain {
			train.Texts = append(train.Texts, data.Texts[idx])
			train.Labels = append(train.Labels, data.Labels[idx])
		} else {
			test.Texts = append(test.Texts, data.Texts[idx])
			test.Labels = append(test.Labels, data.Labels[idx])
		}
	}
	return train, test, nil
}
