package svm

import (
	"context"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/janpfeifer/screenGo/internal/ml/preprocessing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math"
	"math/rand/v2"
	"testing"
)

// circleData labels points inside the radius 1 circle as positive: not linearly separable.
func circleData(n int) (x [][]float64, y []int) {
	rng := rand.New(rand.NewPCG(42, 0)) // Ensure reproducibility
	x = make([][]float64, n)
	y = make([]int, n)
	for ii := range n {
		a, b := 3*rng.Float64()-1.5, 3*rng.Float64()-1.5
		x[ii] = []float64{a, b}
		if a*a+b*b < 1 {
			y[ii] = 1
		}
	}
	return
}

func TestFit(t *testing.T) {
	x, y := circleData(200)
	s := New()
	require.NoError(t, s.Fit(context.Background(), x, y))
	assert.NotEmpty(t, s.SupportVectors)
	assert.Len(t, s.Coefs, len(s.SupportVectors))
	for _, coef := range s.Coefs {
		assert.LessOrEqual(t, math.Abs(coef), s.C+1e-9)
	}

	var correct int
	for ii, row := range x {
		if (s.DecisionFunction(row) > 0) == (y[ii] == 1) {
			correct++
		}
	}
	assert.Greater(t, float64(correct)/float64(len(x)), 0.9)

	// Probabilities are monotonic in the decision value, and in the right direction.
	assert.Less(t, s.ProbA, 0.0)
	assert.Greater(t, s.PredictProba([]float64{0, 0}), 0.8)
	assert.Less(t, s.PredictProba([]float64{1.5, 1.5}), 0.2)

	// Dual constraint: sum of coefficients (alpha_i * y_i) is 0.
	var sum float64
	for _, coef := range s.Coefs {
		sum += coef
	}
	assert.InDelta(t, 0, sum, 1e-6)
}

func TestGamma(t *testing.T) {
	x := [][]float64{{0, 2}, {2, 0}}
	for ii, test := range []struct {
		gamma string
		want  float64
	}{
		{"scale", 0.5}, // var of {0,2,2,0} is 1, 2 features.
		{"auto", 0.5},
		{"0.25", 0.25},
	} {
		s := New()
		s.Gamma = test.gamma
		got, err := s.gamma(x)
		require.NoError(t, err, "test #%d", ii)
		assert.InDelta(t, test.want, got, 1e-12, "test #%d", ii)
	}
	s := New()
	s.Gamma = "-1"
	_, err := s.gamma(x)
	assert.Error(t, err)
}

func TestFitSigmoid(t *testing.T) {
	decisions := []float64{-3, -2, -1.5, -1, -0.5, 0.5, 1, 1.5, 2, 3}
	y := []int{0, 0, 0, 0, 1, 0, 1, 1, 1, 1}
	A, B := fitSigmoid(decisions, y)
	assert.Less(t, A, 0.0)
	pLow := sigmoidPredict(-3, A, B)
	pHigh := sigmoidPredict(3, A, B)
	assert.Less(t, pLow, 0.2)
	assert.Greater(t, pHigh, 0.8)
	assert.InDelta(t, 0.5, sigmoidPredict(0, A, B), 0.15)
}

func TestRegistry(t *testing.T) {
	estimator, err := ml.New("svc:C=2,gamma=auto")
	require.NoError(t, err)
	pipeline, ok := estimator.(*preprocessing.Pipeline)
	require.True(t, ok)
	assert.Equal(t, 2.0, pipeline.Model.(*SVC).C)

	estimator, err = ml.New("svc:scale=false")
	require.NoError(t, err)
	_, ok = estimator.(*SVC)
	assert.True(t, ok)

	for _, config := range []string{"svc:C=0", "svc:gamma=bogus", "svc:prob_folds=1"} {
		_, err = ml.New(config)
		assert.Error(t, err, config)
	}
}

func TestSmallData(t *testing.T) {
	// Too few examples per class for the cross-validated Platt scaling: falls back to in-sample.
	x := [][]float64{{0}, {0.1}, {1}, {1.1}}
	y := []int{0, 0, 1, 1}
	s := New()
	require.NoError(t, s.Fit(context.Background(), x, y))
	assert.Greater(t, s.PredictProba([]float64{1.05}), s.PredictProba([]float64{0.05}))
}
