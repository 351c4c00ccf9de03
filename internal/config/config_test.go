package config

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 0.40, cfg.Serving.Thresholds.Low)
	assert.Equal(t, 0.75, cfg.Serving.Thresholds.High)
	assert.Len(t, cfg.Training.Learners, 4)

	// Default copies the learners.
	cfg.Training.Learners[0] = "changed"
	assert.Equal(t, "rf:n_estimators=200", DefaultLearners[0])
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
training:
  data: other.csv
  learners: [rf, lr]
serving:
  addr: ":9000"
  thresholds:
    low: 0.3
    high: 0.7
  shutdown_timeout: 3s
`), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "other.csv", cfg.Training.Data)
	assert.Equal(t, []string{"rf", "lr"}, cfg.Training.Learners)
	assert.Equal(t, 3, cfg.Training.CV, "absent keys keep their defaults")
	assert.Equal(t, ":9000", cfg.Serving.Addr)
	assert.Equal(t, Thresholds{Low: 0.3, High: 0.7, LabelCutoff: 0.5}, cfg.Serving.Thresholds)
	assert.Equal(t, 3*time.Second, cfg.Serving.ShutdownTimeout)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	for ii, content := range []string{
		"training: [",
		"serving: {thresholds: {low: 0.8, high: 0.5}}",
		"serving: {thresholds: {label_cutoff: 2}}",
		"training: {test_size: 1.5}",
		"training: {cv: 1}",
	} {
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err = Load(path)
		assert.Error(t, err, "test #%d: %q", ii, content)
	}
}
