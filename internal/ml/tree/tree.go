// Package tree implements the binary decision trees (CART) shared by the random forest and
// the gradient boosting estimators.
//
// Trees are grown on float targets minimizing the sum of squared errors. For 0/1 targets
// this is equivalent to the Gini criterion (the node impurity is exactly half the Gini
// impurity), and leaf values are then the fraction of positives.
package tree

import (
	"github.com/janpfeifer/screenGo/internal/ml"
	"math/rand/v2"
	"slices"
)

// Node of a tree, stored in a flat slice. Leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64

	// Left holds x[Feature] <= Threshold, Right the rest.
	Left, Right int32

	// Value is the mean target of the samples that reached the node during training,
	// or a value overwritten later (see SetLeafValue).
	Value float64

	// Samples that reached the node during training, counting repetitions.
	Samples int
}

// IsLeaf returns whether the node has no children.
func (n *Node) IsLeaf() bool { return n.Feature < 0 }

// Tree is a fitted binary decision tree. Node 0 is the root.
type Tree struct {
	Nodes       []Node
	NumFeatures int
}

// Config holds the growth limits of a tree.
type Config struct {
	// MaxDepth of the tree, 0 means unlimited.
	MaxDepth int

	// MinSamplesSplit is the minimum number of samples required to split a node.
	MinSamplesSplit int

	// MinSamplesLeaf is the minimum number of samples in each child of a split.
	MinSamplesLeaf int

	// MaxFeatures considered at each split, chosen at random. 0 means all features.
	MaxFeatures int
}

// Apply returns the index of the leaf reached by x.
func (t *Tree) Apply(x []float64) int {
	ml.CheckDim("tree", x, t.NumFeatures)
	idx := 0
	for {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return idx
		}
		if x[node.Feature] <= node.Threshold {
			idx = int(node.Left)
		} else {
			idx = int(node.Right)
		}
	}
}

// Predict returns the value of the leaf reached by x.
func (t *Tree) Predict(x []float64) float64 {
	return t.Nodes[t.Apply(x)].Value
}

// SetLeafValue overwrites the value of a leaf, used by boosting to set Newton steps.
func (t *Tree) SetLeafValue(leaf int, value float64) {
	t.Nodes[leaf].Value = value
}

// NumLeaves returns the number of leaves.
func (t *Tree) NumLeaves() (count int) {
	for ii := range t.Nodes {
		if t.Nodes[ii].IsLeaf() {
			count++
		}
	}
	return
}

// Depth returns the length of the longest root to leaf path.
func (t *Tree) Depth() int {
	var depth func(idx int) int
	depth = func(idx int) int {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return 0
		}
		return 1 + max(depth(int(node.Left)), depth(int(node.Right)))
	}
	return depth(0)
}

// Build grows a tree on the rows of x selected by samples (repetitions allowed, as in a
// bootstrap sample), fitting targets. rng is only used if cfg.MaxFeatures selects a subset
// of the features.
//
// It returns the tree and the total impurity decrease attributed to each feature.
func Build(x [][]float64, targets []float64, samples []int, cfg Config, rng *rand.Rand) (*Tree, []float64) {
	numFeatures := len(x[0])
	b := &builder{
		x:           x,
		targets:     targets,
		cfg:         cfg,
		rng:         rng,
		tree:        &Tree{NumFeatures: numFeatures},
		importances: make([]float64, numFeatures),
	}
	if b.cfg.MinSamplesSplit < 2 {
		b.cfg.MinSamplesSplit = 2
	}
	if b.cfg.MinSamplesLeaf < 1 {
		b.cfg.MinSamplesLeaf = 1
	}
	b.build(slices.Clone(samples), 0)
	return b.tree, b.importances
}

type builder struct {
	x           [][]float64
	targets     []float64
	cfg         Config
	rng         *rand.Rand
	tree        *Tree
	importances []float64
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	numLeft   int
}

// minGain below which a split is not considered an improvement.
const minGain = 1e-12

func (b *builder) build(samples []int, depth int) int32 {
	idx := int32(len(b.tree.Nodes))
	var sum, sumSq float64
	for _, s := range samples {
		sum += b.targets[s]
		sumSq += b.targets[s] * b.targets[s]
	}
	n := float64(len(samples))
	b.tree.Nodes = append(b.tree.Nodes, Node{
		Feature: -1, Left: -1, Right: -1,
		Value:   sum / n,
		Samples: len(samples),
	})
	sse := sumSq - sum*sum/n
	if sse <= minGain || len(samples) < b.cfg.MinSamplesSplit ||
		(b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth) {
		return idx
	}
	best, found := b.bestSplit(samples, sse)
	if !found {
		return idx
	}
	b.importances[best.feature] += best.gain

	// samples is sorted by the best feature at this point: see bestSplit.
	left := b.build(samples[:best.numLeft], depth+1)
	right := b.build(samples[best.numLeft:], depth+1)
	node := &b.tree.Nodes[idx] // Nodes may have been reallocated while building children.
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = left
	node.Right = right
	return idx
}

// bestSplit searches the candidate features for the split with the largest decrease of the
// sum of squared errors. On success samples is left sorted by the chosen feature.
func (b *builder) bestSplit(samples []int, sse float64) (best split, found bool) {
	numFeatures := b.tree.NumFeatures
	candidates := make([]int, numFeatures)
	for ii := range candidates {
		candidates[ii] = ii
	}
	if b.cfg.MaxFeatures > 0 && b.cfg.MaxFeatures < numFeatures {
		b.rng.Shuffle(numFeatures, func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		candidates = candidates[:b.cfg.MaxFeatures]
	}

	sorted := slices.Clone(samples)
	n := len(samples)
	minLeaf := b.cfg.MinSamplesLeaf
	for _, feature := range candidates {
		slices.SortStableFunc(sorted, func(a, c int) int {
			va, vc := b.x[a][feature], b.x[c][feature]
			switch {
			case va < vc:
				return -1
			case va > vc:
				return 1
			}
			return 0
		})
		var totalSum, totalSq float64
		for _, s := range sorted {
			totalSum += b.targets[s]
			totalSq += b.targets[s] * b.targets[s]
		}
		var leftSum, leftSq float64
		for ii := 0; ii < n-1; ii++ {
			t := b.targets[sorted[ii]]
			leftSum += t
			leftSq += t * t
			value, next := b.x[sorted[ii]][feature], b.x[sorted[ii+1]][feature]
			if value == next {
				continue
			}
			numLeft := ii + 1
			numRight := n - numLeft
			if numLeft < minLeaf || numRight < minLeaf {
				continue
			}
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sseLeft := leftSq - leftSum*leftSum/float64(numLeft)
			sseRight := rightSq - rightSum*rightSum/float64(numRight)
			gain := sse - sseLeft - sseRight
			if gain > best.gain+minGain {
				best = split{
					feature:   feature,
					threshold: value + (next-value)/2,
					gain:      gain,
					numLeft:   numLeft,
				}
				found = true
			}
		}
	}
	if !found {
		return
	}
	// Reorder samples by the chosen feature so children can be sliced.
	slices.SortStableFunc(samples, func(a, c int) int {
		va, vc := b.x[a][best.feature], b.x[c][best.feature]
		switch {
		case va < vc:
			return -1
		case va > vc:
			return 1
		}
		return 0
	})
	return
}

// Normalize scales importances to sum to 1, in place. All zeros are left unchanged.
func Normalize(importances []float64) []float64 {
	var total float64
	for _, v := range importances {
		total += v
	}
	if total > 0 {
		for ii := range importances {
			importances[ii] /= total
		}
	}
	return importances
}
