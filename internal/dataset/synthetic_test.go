package dataset

import (
	"bytes"
	"github.com/janpfeifer/screenGo/internal/questionnaire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"testing"
)

func TestSynthetic(t *testing.T) {
	table := Synthetic(200, 42)
	require.Equal(t, 200, table.Len())
	assert.Equal(t, 80, table.Positives())
	assert.Equal(t, table, Synthetic(200, 42), "same seed must generate the same table")

	// Positive rows have, on average, more concerns.
	var concerns [2]float64
	for ii, record := range table.Records {
		require.NoError(t, record.Validate())
		for field := range questionnaire.NumFields {
			if record.Get(field) == ConcernAnswer[field] {
				concerns[table.Y[ii]]++
			}
		}
	}
	assert.Greater(t, concerns[1]/80, concerns[0]/120+3)

	// Write and Read round trip.
	var buf bytes.Buffer
	require.NoError(t, table.Write(&buf))
	loaded, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, table.Records, loaded.Records)
	assert.Equal(t, table.X, loaded.X)
	assert.Equal(t, table.Y, loaded.Y)

	path := filepath.Join(t.TempDir(), "synthetic.csv")
	require.NoError(t, table.Save(path))
	loaded, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, table.Y, loaded.Y)
}
