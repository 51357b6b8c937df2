package ml

import (
	"context"
	"errors"
	"math"
	"sort"
)

type DecisionTree struct {
	MaxDepth int        `json:"max_depth"`
	Nodes    []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx   int       `json:"feature_idx"`
	Threshold    float64   `json:"threshold"`
	LeftChild    int       `json:"left_child"`
	RightChild   int       `json:"right_child"`
	ClassLabel   int       `json:"class_label"`
	IsLeaf       bool      `json:"is_leaf"`
	Distribution []float64 `json:"distribution"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth}
}

type treeBuilder struct {
	ctx   context.Context
	x     []SparseVector
	y     []int
	nodes []TreeNode
}

func (dt *DecisionTree) Fit(ctx context.Context, x []SparseVector, y []int, dim int) error {
	if err := validateTrainingSet(x, y, dim); err != nil {
		return err
	}
	if dt.MaxDepth <= 0 {
		dt.MaxDepth = 12
	}

	samples := make([]int, len(x))
	for i := range samples {
		samples[i] = i
	}
	b := &treeBuilder{ctx: ctx, x: x, y: y}
	if _, err := b.build(samples, 0, dt.MaxDepth); err != nil {
		return err
	}
	dt.Nodes = b.nodes
	return nil
}

func (dt *DecisionTree) PredictProba(x SparseVector) ([]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, ErrNotFitted
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return append([]float64(nil), node.Distribution...), nil
		}
		if x.At(node.FeatureIdx) <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

// build appends the subtree for samples and returns its root index.
func (b *treeBuilder) build(samples []int, depth, maxDepth int) (int, error) {
	if err := b.ctx.Err(); err != nil {
		return 0, err
	}
	counts := b.classCounts(samples)
	idx := len(b.nodes)
	b.nodes = append(b.nodes, leafNode(counts))

	if depth >= maxDepth || len(samples) < 2 || isPure(counts) {
		return idx, nil
	}
	feature, threshold, ok := b.findBestSplit(samples, counts)
	if !ok {
		return idx, nil
	}

	left, right := b.partition(samples, feature, threshold)
	if len(left) == 0 || len(right) == 0 {
		return idx, nil
	}

	leftIdx, err := b.build(left, depth+1, maxDepth)
	if err != nil {
		return 0, err
	}
	rightIdx, err := b.build(right, depth+1, maxDepth)
	if err != nil {
		return 0, err
	}

	node := &b.nodes[idx]
	node.IsLeaf = false
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	return idx, nil
}

type featureValue struct {
	sample int
	value  float64
}

// findBestSplit only looks at features present in the node. Features are
// non-negative, so samples above the threshold are always a subset of the
// non-zero entries.
func (b *treeBuilder) findBestSplit(samples []int, counts []int) (int, float64, bool) {
	present := make(map[int][]featureValue)
	for _, s := range samples {
		xi := b.x[s]
		for nz, j := range xi.Indices {
			if xi.Values[nz] != 0 {
				present[j] = append(present[j], featureValue{sample: s, value: xi.Values[nz]})
			}
		}
	}

	features := make([]int, 0, len(present))
	for j := range present {
		features = append(features, j)
	}
	sort.Ints(features)

	n := len(samples)
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := gini(counts, n)

	for _, j := range features {
		values := present[j]
		sort.Slice(values, func(a, c int) bool { return values[a].value < values[c].value })

		threshold := sparseMedian(values, n)
		rightCounts := make([]int, NumClasses)
		rightN := 0
		for _, fv := range values {
			if fv.value > threshold {
				rightCounts[b.y[fv.sample]]++
				rightN++
			}
		}
		if rightN == 0 && threshold > 0 {
			threshold = 0
			for _, fv := range values {
				rightCounts[b.y[fv.sample]]++
			}
			rightN = len(values)
		}
		leftN := n - rightN
		if rightN == 0 || leftN == 0 {
			continue
		}

		leftCounts := make([]int, NumClasses)
		for k := range leftCounts {
			leftCounts[k] = counts[k] - rightCounts[k]
		}
		impurity := (float64(leftN)*gini(leftCounts, leftN) + float64(rightN)*gini(rightCounts, rightN)) / float64(n)
		if impurity < bestImpurity-1e-12 {
			bestImpurity = impurity
			bestFeature = j
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *treeBuilder) partition(samples []int, feature int, threshold float64) (left, right []int) {
	for _, s := range samples {
		if b.x[s].At(feature) <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	return left, right
}

func (b *treeBuilder) classCounts(samples []int) []int {
	counts := make([]int, NumClasses)
	for _, s := range samples {
		counts[b.y[s]]++
	}
	return counts
}

// sparseMedian is the median over n values where only the sorted non-zero
// ones are given; the rest are zero.
func sparseMedian(nonzero []featureValue, n int) float64 {
	zeros := n - len(nonzero)
	at := func(i int) float64 {
		if i < zeros {
			return 0
		}
		return nonzero[i-zeros].value
	}
	mid := n / 2
	if n%2 == 0 {
		return (at(mid-1) + at(mid)) / 2
	}
	return at(mid)
}

func leafNode(counts []int) TreeNode {
	total := 0
	for _, c := range counts {
		total += c
	}
	dist := make([]float64, NumClasses)
	for k, c := range counts {
		if total > 0 {
			dist[k] = float64(c) / float64(total)
		}
	}
	return TreeNode{
		FeatureIdx:   -1,
		LeftChild:    -1,
		RightChild:   -1,
		ClassLabel:   argmax(dist),
		IsLeaf:       true,
		Distribution: dist,
	}
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		impurity -= p * p
	}
	return impurity
}

func isPure(counts []int) bool {
	nonzero := 0
	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}

func argmax(values []float64) int {
	best := 0
	bestValue := math.Inf(-1)
	for i, v := range values {
		if v > bestValue {
			best = i
			bestValue = v
		}
	}
	return best
}
