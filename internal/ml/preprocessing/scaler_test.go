package preprocessing

import (
	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestStandardScaler(t *testing.T) {
	var s StandardScaler
	require.NoError(t, s.Fit([][]float64{{0, 5, 1}, {2, 5, 3}, {4, 5, 5}}))
	assert.InDeltaSlice(t, []float64{2, 5, 3}, s.Mean, 1e-12)
	// Constant column keeps scale 1.
	assert.InDelta(t, 1.0, s.Scale[1], 1e-12)

	got := s.Transform([]float64{4, 5, 1})
	assert.InDeltaSlice(t, []float64{1.224744871, 0, -1.224744871}, got, 1e-6)

	all := s.TransformAll([][]float64{{0, 5, 1}, {2, 5, 3}, {4, 5, 5}})
	var sum float64
	for _, row := range all {
		sum += row[0]
	}
	assert.InDelta(t, 0, sum, 1e-12)

	err := exceptions.TryCatch[error](func() { s.Transform([]float64{1, 2}) })
	assert.Error(t, err)

	var empty StandardScaler
	assert.Error(t, empty.Fit(nil))
}
