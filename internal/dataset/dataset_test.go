package dataset

import (
	"github.com/janpfeifer/screenGo/internal/features"
	"github.com/janpfeifer/screenGo/internal/questionnaire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const smallCSV = `eye_contact,responds_name,points_to_objects,pretend_play,repetitive_behaviour,sensory_sensitivity,prefers_alone,gestures,delayed_speech,restricted_interests,label
1,1,1,1,0,0,0,1,0,0,0
0,0,0,0,1,1,1,0,1,1,1
yes,no,1,0,0,1,0,1,0,0,0
`

func TestRead(t *testing.T) {
	table, err := Read(strings.NewReader(smallCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 1, table.Positives())
	assert.Equal(t, features.Names(), table.FeatureNames)
	assert.Equal(t, []int{0, 1, 0}, table.Y)
	require.Len(t, table.X[0], int(features.NumFeatures))

	// Composite scores are derived for every row.
	assert.Equal(t, []float64{1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 4, 2, 0, 6}, table.X[0])
	assert.Equal(t, 1, table.Records[2].Get(questionnaire.EyeContact))
	assert.Equal(t, 0, table.Records[2].Get(questionnaire.RespondsName))
}

func TestReadSynonymsAndMissingColumns(t *testing.T) {
	csv := ` Eye_Contact ,Plays_Alone,Speech_Delay,Label
1,1,1,1
0,0,0,0
`
	table, err := Read(strings.NewReader(csv))
	require.NoError(t, err)
	r := table.Records[0]
	assert.Equal(t, 1, r.Get(questionnaire.EyeContact))
	assert.Equal(t, 1, r.Get(questionnaire.PrefersAlone))
	assert.Equal(t, 1, r.Get(questionnaire.DelayedSpeech))
	assert.Equal(t, 0, r.Get(questionnaire.Gestures))
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader("eye_contact,gestures\n1,0\n"))
	assert.ErrorIs(t, err, ErrMissingLabel)

	_, err = Read(strings.NewReader("eye_contact,label\n"))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Read(strings.NewReader("eye_contact,label\nmaybe,1\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(smallCSV), 0o644))
	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
}

func labels(numNeg, numPos int) []int {
	y := make([]int, 0, numNeg+numPos)
	for range numNeg {
		y = append(y, 0)
	}
	for range numPos {
		y = append(y, 1)
	}
	return y
}

func countPositives(y []int, indices []int) (count int) {
	for _, idx := range indices {
		count += y[idx]
	}
	return
}

func TestStratifiedSplit(t *testing.T) {
	y := labels(60, 40)
	train, test, err := StratifiedSplit(y, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 20)
	assert.Len(t, train, 80)
	assert.Equal(t, 8, countPositives(y, test))
	assert.Equal(t, 32, countPositives(y, train))

	// Disjoint and complete.
	assert.Equal(t, train, Complement(len(y), test))

	// Reproducible.
	train2, test2, err := StratifiedSplit(y, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	_, _, err = StratifiedSplit(y, 1.2, 42)
	assert.Error(t, err)
	_, _, err = StratifiedSplit(labels(10, 1), 0.2, 42)
	assert.Error(t, err)
	_, _, err = StratifiedSplit([]int{0, 1, 2, 0, 1}, 0.2, 42)
	assert.Error(t, err)
}

func TestStratifiedKFold(t *testing.T) {
	y := labels(31, 14)
	folds, err := StratifiedKFold(y, 3, 7)
	require.NoError(t, err)
	require.Len(t, folds, 3)
	seen := make(map[int]int)
	for _, fold := range folds {
		assert.InDelta(t, 15, len(fold), 1)
		pos := countPositives(y, fold)
		assert.True(t, pos == 4 || pos == 5, "fold positives %d", pos)
		for _, idx := range fold {
			seen[idx]++
		}
	}
	assert.Len(t, seen, len(y))
	for idx, count := range seen {
		assert.Equal(t, 1, count, "row %d", idx)
	}

	_, err = StratifiedKFold(labels(10, 2), 3, 7)
	assert.Error(t, err)
	_, err = StratifiedKFold(y, 1, 7)
	assert.Error(t, err)
}
