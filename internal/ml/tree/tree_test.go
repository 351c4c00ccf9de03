package tree

import (
	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math/rand/v2"
	"testing"
)

func allSamples(n int) []int {
	samples := make([]int, n)
	for ii := range samples {
		samples[ii] = ii
	}
	return samples
}

func TestBuildAnd(t *testing.T) {
	// Label is x0 AND x1, x2 is constant.
	x := [][]float64{
		{0, 0, 5}, {0, 1, 5}, {1, 0, 5}, {1, 1, 5},
		{0, 0, 5}, {0, 1, 5}, {1, 0, 5}, {1, 1, 5},
	}
	targets := []float64{0, 0, 0, 1, 0, 0, 0, 1}
	tree, importances := Build(x, targets, allSamples(len(x)), Config{}, nil)
	for ii, row := range x {
		assert.Equal(t, targets[ii], tree.Predict(row), "row #%d", ii)
	}
	assert.Equal(t, 2, tree.Depth())
	assert.Equal(t, 3, tree.NumLeaves())
	assert.Equal(t, 0.0, importances[2])
	Normalize(importances)
	assert.InDelta(t, 1.0/3.0, importances[0], 1e-12)
	assert.InDelta(t, 2.0/3.0, importances[1], 1e-12)

	// Threshold is the midpoint between the distinct values.
	assert.Equal(t, 0.5, tree.Nodes[0].Threshold)
	assert.Equal(t, len(x), tree.Nodes[0].Samples)
}

func TestBuildLimits(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0)) // Ensure reproducibility
	n := 200
	x := make([][]float64, n)
	targets := make([]float64, n)
	for ii := range n {
		x[ii] = []float64{rng.Float64(), rng.Float64()}
		targets[ii] = x[ii][0] + 0.1*rng.NormFloat64()
	}
	tree, _ := Build(x, targets, allSamples(n), Config{MaxDepth: 3}, nil)
	assert.LessOrEqual(t, tree.Depth(), 3)
	assert.LessOrEqual(t, tree.NumLeaves(), 8)

	tree, _ = Build(x, targets, allSamples(n), Config{MinSamplesLeaf: 30}, nil)
	for _, node := range tree.Nodes {
		if node.IsLeaf() {
			assert.GreaterOrEqual(t, node.Samples, 30)
		}
	}

	// Random subset of features, and bootstrap-like repeated samples.
	samples := []int{0, 0, 1, 1, 2, 3, 4, 5, 5, 5}
	tree, importances := Build(x, targets, samples, Config{MaxFeatures: 1}, rng)
	require.Len(t, importances, 2)
	assert.Equal(t, len(samples), tree.Nodes[0].Samples)
}

func TestPureNode(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}}
	tree, importances := Build(x, []float64{1, 1, 1}, allSamples(3), Config{}, nil)
	assert.Equal(t, 1, len(tree.Nodes))
	assert.Equal(t, 1.0, tree.Predict([]float64{10}))
	assert.Equal(t, []float64{0}, Normalize(importances))

	leaf := tree.Apply([]float64{0})
	tree.SetLeafValue(leaf, 0.25)
	assert.Equal(t, 0.25, tree.Predict([]float64{0}))

	err := exceptions.TryCatch[error](func() { tree.Predict([]float64{1, 2}) })
	assert.Error(t, err)
}
