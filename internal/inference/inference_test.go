package inference

import (
	"context"
	"github.com/janpfeifer/screenGo/internal/artifacts"
	"github.com/janpfeifer/screenGo/internal/config"
	"github.com/janpfeifer/screenGo/internal/dataset"
	"github.com/janpfeifer/screenGo/internal/questionnaire"
	"github.com/janpfeifer/screenGo/internal/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

var (
	trainOnce   sync.Once
	trainErr    error
	typical     = questionnaire.Record{1, 1, 1, 1, 0, 0, 0, 1, 0, 0}
	concern     = questionnaire.Record{0, 0, 0, 0, 1, 1, 1, 0, 1, 1}
	testServing *config.Serving
)

// trainedModels trains a small model once, and returns the serving configuration
// pointing to its artifacts.
func trainedModels(t *testing.T) *config.Serving {
	trainOnce.Do(func() {
		dir, err := os.MkdirTemp("", "inference_test")
		if err != nil {
			trainErr = err
			return
		}
		cfg := config.Default()
		cfg.Training.Data = filepath.Join(dir, "data.csv")
		cfg.Training.Models = filepath.Join(dir, "models")
		cfg.Training.Learners = []string{"rf:n_estimators=10", "gb:n_estimators=20", "lr:max_iter=200", "svc"}
		cfg.Training.ImportanceEstimators = 10
		if trainErr = dataset.Synthetic(300, 42).Save(cfg.Training.Data); trainErr != nil {
			return
		}
		_, trainErr = trainer.Run(context.Background(), &cfg.Training)
		cfg.Serving.Models = cfg.Training.Models
		testServing = &cfg.Serving
	})
	require.NoError(t, trainErr)
	serving := *testServing
	return &serving
}

func TestRiskTier(t *testing.T) {
	th := config.DefaultThresholds
	for ii, test := range []struct {
		prob float64
		want Tier
	}{
		{0, TierLow},
		{0.39, TierLow},
		{0.40, TierMedium},
		{0.5, TierMedium},
		{0.7499, TierMedium},
		{0.75, TierHigh},
		{1, TierHigh},
	} {
		assert.Equal(t, test.want, RiskTier(test.prob, th), "test #%d: p=%g", ii, test.prob)
	}
	custom := config.Thresholds{Low: 0.2, High: 0.3, LabelCutoff: 0.5}
	assert.Equal(t, TierHigh, RiskTier(0.35, custom))
	for _, tier := range []Tier{TierLow, TierMedium, TierHigh} {
		assert.NotEmpty(t, tier.Explanation())
		assert.NotEmpty(t, tier.Recommendation())
	}
}

func TestPredict(t *testing.T) {
	ctx := context.Background()
	s := New(trainedModels(t))
	require.True(t, s.Available())

	low, err := s.Predict(ctx, typical)
	require.NoError(t, err)
	assert.Equal(t, TierLow, low.Tier)
	assert.Equal(t, 0, low.Label)
	assert.Len(t, low.TopFeatures, 5)
	assert.Equal(t, TierLow.Recommendation(), low.Recommendation)

	high, err := s.Predict(ctx, concern)
	require.NoError(t, err)
	assert.Contains(t, []Tier{TierMedium, TierHigh}, high.Tier)
	assert.Greater(t, high.Probability, low.Probability)

	// Same record, same prediction.
	again, err := s.Predict(ctx, concern)
	require.NoError(t, err)
	assert.Equal(t, high, again)

	// All records give valid probabilities, from concurrent goroutines.
	var wg sync.WaitGroup
	for mask := range 1 << questionnaire.NumFields {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var record questionnaire.Record
			for field := range record {
				record[field] = (mask >> field) & 1
			}
			p, err := s.Predict(ctx, record)
			if assert.NoError(t, err) {
				assert.True(t, p.Probability >= 0 && p.Probability <= 1)
				assert.Equal(t, RiskTier(p.Probability, s.Thresholds()), p.Tier)
			}
		}()
	}
	wg.Wait()

	m, err := s.Metrics()
	require.NoError(t, err)
	assert.Greater(t, m.ROCAUC, 0.8)
}

func TestPredictInvalid(t *testing.T) {
	s := New(trainedModels(t))
	_, err := s.Predict(context.Background(), typical.With(questionnaire.Gestures, 2))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "gestures=2")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Predict(cancelled, typical)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnavailable(t *testing.T) {
	cfg := config.Default().Serving
	cfg.Models = filepath.Join(t.TempDir(), "missing")
	s := New(&cfg)
	assert.False(t, s.Available())
	for _, record := range []questionnaire.Record{typical, concern, typical.With(questionnaire.Gestures, 5)} {
		_, err := s.Predict(context.Background(), record)
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	_, err := s.Metrics()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, s.TopFeatures())
}

func TestOptionalCapabilities(t *testing.T) {
	cfg := trainedModels(t)
	dir := t.TempDir()
	bundle, err := artifacts.Load(cfg.Models)
	require.NoError(t, err)
	require.NoError(t, artifacts.Save(dir, bundle))
	cfg.Models = dir
	s := New(cfg)
	require.True(t, s.Available())
	p, err := s.Predict(context.Background(), typical)
	require.NoError(t, err)
	assert.Empty(t, p.TopFeatures)
	_, err = s.Metrics()
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFeatureMismatch(t *testing.T) {
	bundle, err := artifacts.Load(trainedModels(t).Models)
	require.NoError(t, err)

	// Unknown feature name.
	names := append([]string(nil), bundle.FeatureNames...)
	names[0] = "unknown_feature"
	s := NewFromBundle(&artifacts.Bundle{Model: bundle.Model, FeatureNames: names}, config.DefaultThresholds)
	_, err = s.Predict(context.Background(), typical)
	assert.ErrorIs(t, err, ErrInternal)

	// Fewer features than the model was trained with: the model panics, and it is
	// converted to an error.
	s = NewFromBundle(&artifacts.Bundle{Model: bundle.Model, FeatureNames: bundle.FeatureNames[:3]}, config.DefaultThresholds)
	_, err = s.Predict(context.Background(), typical)
	assert.ErrorIs(t, err, ErrInternal)
}
