package ml

import "sort"

// SparseVector holds strictly increasing indices with their values.
type SparseVector struct {
	Indices []int
	Values  []float64
}

func (v SparseVector) Len() int {
	return len(v.Indices)
}

func (v SparseVector) At(i int) float64 {
	k := sort.SearchInts(v.Indices, i)
	if k < len(v.Indices) && v.Indices[k] == i {
		return v.Values[k]
	}
	return 0
}

// Dot computes v·w, ignoring indices beyond len(w).
func (v SparseVector) Dot(w []float64) float64 {
	var sum float64
	for k, i := range v.Indices {
		if i < len(w) {
			sum += v.Values[k] * w[i]
		}
	}
	return sum
}

func sparseFromMap(m map[int]float64) SparseVector {
	v := SparseVector{Indices: make([]int, 0, len(m)), Values: make([]float64, 0, len(m))}
	for i := range m {
		v.Indices = append(v.Indices, i)
	}
	sort.Ints(v.Indices)
	for _, i := range v.Indices {
		v.Values = append(v.Values, m[i])
	}
	return v
}
