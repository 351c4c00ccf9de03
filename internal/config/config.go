// Package config defines the YAML configuration shared by the training and serving binaries.
//
// Example:
//
//	training:
//	  data: data/autism_dataset.csv
//	  models: models
//	  seed: 42
//	  test_size: 0.2
//	  cv: 3
//	  learners:
//	    - rf:n_estimators=200
//	    - gb:n_estimators=200,learning_rate=0.05
//	    - lr:max_iter=2000
//	    - svc
//	serving:
//	  models: models
//	  addr: ":8000"
//	  thresholds: {low: 0.40, high: 0.75, label_cutoff: 0.5}
//
// Absent keys keep their default values, and command-line flags override the file.
package config

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"os"
	"time"
)

// Training configuration.
type Training struct {
	Data     string   `yaml:"data"`
	Models   string   `yaml:"models"`
	Seed     uint64   `yaml:"seed"`
	TestSize float64  `yaml:"test_size"`
	CV       int      `yaml:"cv"`
	Learners []string `yaml:"learners"`

	// ImportanceEstimators used to compute feature_importances.csv.
	ImportanceEstimators int `yaml:"importance_estimators"`

	// NumSamplePredictions written to sample_predictions.csv.
	NumSamplePredictions int `yaml:"num_sample_predictions"`

	// CalibrationBins of calibration_curve.csv.
	CalibrationBins int `yaml:"calibration_bins"`

	// HistoryDB is the path to the SQLite database of training runs. Empty disables it.
	HistoryDB string `yaml:"history_db"`
}

// Thresholds map probabilities to labels and risk tiers.
type Thresholds struct {
	Low         float64 `yaml:"low"`
	High        float64 `yaml:"high"`
	LabelCutoff float64 `yaml:"label_cutoff"`
}

// Serving configuration.
type Serving struct {
	Models          string        `yaml:"models"`
	Addr            string        `yaml:"addr"`
	Thresholds      Thresholds    `yaml:"thresholds"`
	NumTopFeatures  int           `yaml:"num_top_features"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
}

// Config is the whole configuration file.
type Config struct {
	Training Training `yaml:"training"`
	Serving  Serving  `yaml:"serving"`
}

// DefaultLearners of the soft voting ensemble.
var DefaultLearners = []string{
	"rf:n_estimators=200",
	"gb:n_estimators=200,learning_rate=0.05",
	"lr:max_iter=2000",
	"svc",
}

// DefaultThresholds used for the risk tiers.
var DefaultThresholds = Thresholds{Low: 0.40, High: 0.75, LabelCutoff: 0.5}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Training: Training{
			Data:                 "data/autism_dataset.csv",
			Models:               "models",
			Seed:                 42,
			TestSize:             0.2,
			CV:                   3,
			Learners:             append([]string(nil), DefaultLearners...),
			ImportanceEstimators: 300,
			NumSamplePredictions: 100,
			CalibrationBins:      10,
		},
		Serving: Serving{
			Models:          "models",
			Addr:            ":8000",
			Thresholds:      DefaultThresholds,
			NumTopFeatures:  5,
			ShutdownTimeout: 10 * time.Second,
			ReadTimeout:     10 * time.Second,
		},
	}
}

// Load reads the configuration file at path over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration %q", path)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse configuration %q", path)
	}
	if err = cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid configuration %q", path)
	}
	return cfg, nil
}

// Validate checks that the thresholds are ordered probabilities.
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.High > 1 || t.Low > t.High {
		return errors.Errorf("thresholds must satisfy 0 <= low <= high <= 1, got low=%g, high=%g", t.Low, t.High)
	}
	if t.LabelCutoff < 0 || t.LabelCutoff > 1 {
		return errors.Errorf("label cutoff must be in [0, 1], got %g", t.LabelCutoff)
	}
	return nil
}

// Validate the configuration values.
func (c *Config) Validate() error {
	tr := &c.Training
	if tr.TestSize <= 0 || tr.TestSize >= 1 {
		return errors.Errorf("training.test_size must be in (0, 1), got %g", tr.TestSize)
	}
	if tr.CV < 2 {
		return errors.Errorf("training.cv must be at least 2, got %d", tr.CV)
	}
	if len(tr.Learners) == 0 {
		return errors.New("training.learners is empty")
	}
	if tr.CalibrationBins <= 0 {
		return errors.Errorf("training.calibration_bins must be positive, got %d", tr.CalibrationBins)
	}
	return c.Serving.Thresholds.Validate()
}
