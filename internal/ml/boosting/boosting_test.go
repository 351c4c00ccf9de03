package boosting

import (
	"context"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math"
	"math/rand/v2"
	"testing"
)

// syntheticData labels are x0 OR x1, flipped with probability noise. x2 is irrelevant.
func syntheticData(n int, noise float64) (x [][]float64, y []int) {
	rng := rand.New(rand.NewPCG(42, 0)) // Ensure reproducibility
	x = make([][]float64, n)
	y = make([]int, n)
	for ii := range n {
		row := []float64{float64(rng.IntN(2)), float64(rng.IntN(2)), rng.Float64()}
		x[ii] = row
		if row[0]+row[1] >= 1 {
			y[ii] = 1
		}
		if rng.Float64() < noise {
			y[ii] = 1 - y[ii]
		}
	}
	return
}

func TestFit(t *testing.T) {
	x, y := syntheticData(300, 0)
	b := New()
	b.NumEstimators = 100
	b.LearningRate = 0.1
	require.NoError(t, b.Fit(context.Background(), x, y))
	require.Len(t, b.Trees, 100)
	for _, tr := range b.Trees {
		assert.LessOrEqual(t, tr.Depth(), 3)
	}

	assert.Less(t, b.PredictProba([]float64{0, 0, 0.5}), 0.2)
	assert.Greater(t, b.PredictProba([]float64{1, 0, 0.5}), 0.8)

	// Training deviance decreases with the number of stages.
	short := b.Clone().(*Boosting)
	short.NumEstimators = 5
	require.NoError(t, short.Fit(context.Background(), x, y))
	logits := func(model *Boosting) []float64 {
		out := make([]float64, len(x))
		for ii, row := range x {
			out[ii] = model.DecisionFunction(row)
		}
		return out
	}
	assert.Less(t, deviance(logits(b), y), deviance(logits(short), y))

	importances := b.FeatureImportances()
	require.Len(t, importances, 3)
	assert.InDelta(t, 1.0, importances[0]+importances[1]+importances[2], 1e-9)
	assert.Greater(t, importances[0], importances[2])
}

func TestInitLogOdds(t *testing.T) {
	x := [][]float64{{0}, {0}, {0}, {1}}
	y := []int{0, 0, 1, 1}
	b := New()
	b.NumEstimators = 1
	require.NoError(t, b.Fit(context.Background(), x, y))
	assert.InDelta(t, 0.0, b.InitLogOdds, 1e-12)

	// One Newton step from p=0.5: leaf {0}: residuals (-0.5,-0.5,0.5), hessian 3*0.25.
	assert.InDelta(t, -0.5/0.75, b.Trees[0].Predict([]float64{0}), 1e-12)
	assert.InDelta(t, 0.5/0.25, b.Trees[0].Predict([]float64{1}), 1e-12)
	want := 1 / (1 + math.Exp(-0.05*2))
	assert.InDelta(t, want, b.PredictProba([]float64{1}), 1e-12)
}

func TestSubsampleAndParams(t *testing.T) {
	x, y := syntheticData(100, 0.05)
	estimator, err := ml.New("gb:n_estimators=10,subsample=0.5,seed=3")
	require.NoError(t, err)
	require.NoError(t, estimator.Fit(context.Background(), x, y))
	p := estimator.PredictProba(x[0])
	assert.True(t, p > 0 && p < 1)

	_, err = ml.New("gb:subsample=2")
	assert.Error(t, err)
	_, err = ml.New("gb:learning_rate=0")
	assert.Error(t, err)
}
