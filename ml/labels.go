package ml

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Negative = 0
	Neutral  = 1
	Positive = 2

	NumClasses = 3
)

var classNames = [NumClasses]string{"Negative", "Neutral", "Positive"}

func ClassNames() []string {
	return append([]string(nil), classNames[:]...)
}

func ClassName(label int) string {
	if label < 0 || label >= NumClasses {
		return "Unknown"
	}
	return classNames[label]
}

// ParseLabels maps raw label cells to class indices. Numeric columns use
// 0/1/2 unless a -1 appears, in which case -1/0/1 is assumed.
func ParseLabels(raw []string) ([]int, error) {
	shift := 0
	for _, v := range raw {
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && n == -1 {
			shift = 1
			break
		}
	}

	labels := make([]int, len(raw))
	for i, v := range raw {
		label, err := parseLabel(v, shift)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		labels[i] = label
	}
	return labels, nil
}

func parseLabel(v string, shift int) (int, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	switch s {
	case "negative", "neg":
		return Negative, nil
	case "neutral", "neu":
		return Neutral, nil
	case "positive", "pos":
		return Positive, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && n == float64(int(n)) {
		label := int(n) + shift
		if label >= 0 && label < NumClasses {
			return label, nil
		}
	}
	return 0, fmt.Errorf("unrecognized sentiment label %q", v)
}
