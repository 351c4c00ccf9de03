package trainer

import (
	"context"
	"github.com/janpfeifer/screenGo/internal/artifacts"
	"github.com/janpfeifer/screenGo/internal/config"
	"github.com/janpfeifer/screenGo/internal/dataset"
	"github.com/janpfeifer/screenGo/internal/features"
	"github.com/janpfeifer/screenGo/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

// smallConfig returns a training configuration with fast learners, reading the data from
// a synthetic dataset saved in a temporary directory.
func smallConfig(t *testing.T) *config.Training {
	dir := t.TempDir()
	cfg := config.Default().Training
	cfg.Data = filepath.Join(dir, "data.csv")
	cfg.Models = filepath.Join(dir, "models")
	cfg.Learners = []string{"rf:n_estimators=10", "gb:n_estimators=20", "lr:max_iter=200", "svc"}
	cfg.ImportanceEstimators = 10
	cfg.NumSamplePredictions = 5
	require.NoError(t, dataset.Synthetic(200, 42).Save(cfg.Data))
	return &cfg
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	cfg := smallConfig(t)
	cfg.HistoryDB = filepath.Join(t.TempDir(), "history.db")
	result, err := Run(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, 160, result.NumTrain)
	assert.Equal(t, 40, result.NumTest)
	assert.Equal(t, features.Names(), result.FeatureNames)
	m := result.Metrics
	assert.Greater(t, m.ROCAUC, 0.85)
	assert.Greater(t, m.Accuracy, 0.75)
	assert.Equal(t, [2]int{24, 16}, m.Support)
	assert.NotEmpty(t, m.RunID)
	assert.Len(t, result.SamplePredictions, 5)
	assert.NotEmpty(t, result.ROCCurve)
	assert.NotEmpty(t, result.CalibrationCurve)

	// Importances are sorted and, for each model, sum to 1.
	require.Len(t, result.Importances, int(features.NumFeatures))
	var sumRF, sumGB float64
	for ii, imp := range result.Importances {
		sumRF += imp.RF
		sumGB += imp.GB
		if ii > 0 {
			assert.LessOrEqual(t, imp.Mean, result.Importances[ii-1].Mean)
		}
	}
	assert.InDelta(t, 1.0, sumRF, 1e-9)
	assert.InDelta(t, 1.0, sumGB, 1e-9)

	// All artifacts are written.
	for _, name := range []string{artifacts.ModelFile, artifacts.FeaturesFile, artifacts.MetricsFile,
		artifacts.ImportancesFile, artifacts.SamplePredictionsFile, artifacts.ROCCurveFile,
		artifacts.CalibrationCurveFile} {
		_, err := os.Stat(filepath.Join(cfg.Models, name))
		assert.NoError(t, err, "artifact %s", name)
	}
	bundle, err := artifacts.Load(cfg.Models)
	require.NoError(t, err)
	assert.Equal(t, result.FeatureNames, bundle.FeatureNames)
	table, err := dataset.Load(cfg.Data)
	require.NoError(t, err)
	for _, x := range table.X[:10] {
		assert.Equal(t, result.Model.PredictProba(x), bundle.Model.PredictProba(x))
	}
	saved, err := artifacts.LoadMetrics(cfg.Models)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, saved.RunID)
	assert.InDelta(t, m.ROCAUC, saved.ROCAUC, 1e-12)

	// The run is recorded in the history.
	store, err := history.Open(cfg.HistoryDB)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, m.RunID, runs[0].ID)
	assert.Equal(t, 160, runs[0].NumTrain)
	assert.Equal(t, cfg.Data, runs[0].DataPath)
}

func TestTrainDeterministic(t *testing.T) {
	ctx := context.Background()
	cfg := smallConfig(t)
	cfg.ImportanceEstimators = 0
	table := dataset.Synthetic(100, 7)
	first, err := Train(ctx, cfg, table)
	require.NoError(t, err)
	second, err := Train(ctx, cfg, table)
	require.NoError(t, err)
	assert.Empty(t, first.Importances)
	for _, x := range table.X {
		assert.Equal(t, first.Model.PredictProba(x), second.Model.PredictProba(x))
	}
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	for ii, modify := range []func(cfg *config.Training){
		func(cfg *config.Training) { cfg.Data = filepath.Join(t.TempDir(), "missing.csv") },
		func(cfg *config.Training) { cfg.Learners = []string{"unknown"} },
		func(cfg *config.Training) { cfg.Learners = []string{"rf:bad_param=1"} },
	} {
		cfg := smallConfig(t)
		modify(cfg)
		_, err := Run(ctx, cfg)
		assert.Error(t, err, "test #%d", ii)
	}

	// Missing label column.
	cfg := smallConfig(t)
	require.NoError(t, os.WriteFile(cfg.Data, []byte("eye_contact,gestures\n1,0\n"), 0o644))
	_, err := Run(ctx, cfg)
	assert.ErrorIs(t, err, dataset.ErrMissingLabel)

	// Cancelled context.
	cfg = smallConfig(t)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Run(cancelled, cfg)
	assert.Error(t, err)
}
