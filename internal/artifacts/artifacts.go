// Package artifacts saves and loads the files produced by a training run: the fitted model,
// its ordered list of features, the metrics and the auxiliary reports.
//
// Files are written to a temporary name and renamed into place, and a previous version is
// kept with a "~" suffix, so a running server never reads a half-written file.
package artifacts

import (
	"encoding/gob"
	"encoding/json"
	"github.com/janpfeifer/screenGo/internal/ml"
	_ "github.com/janpfeifer/screenGo/internal/ml/all" // Register estimators with gob.
	"github.com/janpfeifer/screenGo/internal/ml/metrics"
	"github.com/pkg/errors"
	"io"
	"io/fs"
	"k8s.io/klog/v2"
	"os"
	"path/filepath"
)

// Names of the files in an artifacts directory.
const (
	ModelFile             = "model.gob"
	FeaturesFile          = "features.json"
	MetricsFile           = "metrics.json"
	ImportancesFile       = "feature_importances.csv"
	SamplePredictionsFile = "sample_predictions.csv"
	ROCCurveFile          = "roc_curve.csv"
	CalibrationCurveFile  = "calibration_curve.csv"
	ReportFile            = "classification_report.csv"
)

// ErrNotFound is returned (wrapped) when a required artifact file doesn't exist.
var ErrNotFound = errors.New("artifact not found")

// Bundle is a trained model and the ordered names of the features it expects.
type Bundle struct {
	Model        ml.Classifier
	FeatureNames []string
}

func backupName(filename string) string {
	return filename + "~"
}

func temporaryName(filename string) string {
	return filename + ".tmp"
}

// writeFile writes to a temporary file with write, and then renames it to path, backing up
// any previous version.
func writeFile(path string, write func(w io.Writer) error) error {
	file, err := os.Create(temporaryName(path))
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file %q", temporaryName(path))
	}
	if err = write(file); err != nil {
		_ = file.Close()
		_ = os.Remove(temporaryName(path))
		return errors.WithMessagef(err, "while writing %q", path)
	}
	if err = file.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %q", temporaryName(path))
	}
	if _, err = os.Stat(path); err == nil {
		if err = os.Rename(path, backupName(path)); err != nil {
			return errors.Wrapf(err, "failed backing up, while renaming %q to %q", path, backupName(path))
		}
	}
	if err = os.Rename(temporaryName(path), path); err != nil {
		return errors.Wrapf(err, "failed renaming %q to %q", temporaryName(path), path)
	}
	klog.V(1).Infof("saved %s", path)
	return nil
}

// openFile opens path for reading, wrapping ErrNotFound if it doesn't exist.
func openFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(ErrNotFound, "%q", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	return file, nil
}

// SaveModel writes the fitted model with encoding/gob.
func SaveModel(path string, model ml.Classifier) error {
	return writeFile(path, func(w io.Writer) error {
		return errors.Wrap(gob.NewEncoder(w).Encode(&model), "failed to encode model")
	})
}

// LoadModel reads a model saved with SaveModel.
func LoadModel(path string) (ml.Classifier, error) {
	file, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	var model ml.Classifier
	if err = gob.NewDecoder(file).Decode(&model); err != nil {
		return nil, errors.Wrapf(err, "failed to decode model in %q", path)
	}
	if model == nil {
		return nil, errors.Errorf("no model stored in %q", path)
	}
	return model, nil
}

// SaveFeatureNames writes the ordered feature names as a JSON list.
func SaveFeatureNames(path string, names []string) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(names), "failed to encode feature names")
	})
}

// LoadFeatureNames reads the list saved with SaveFeatureNames.
func LoadFeatureNames(path string) ([]string, error) {
	file, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	var names []string
	if err = json.NewDecoder(file).Decode(&names); err != nil {
		return nil, errors.Wrapf(err, "failed to parse feature names in %q", path)
	}
	if len(names) == 0 {
		return nil, errors.Errorf("empty list of features in %q", path)
	}
	return names, nil
}

// Save writes the bundle (model and feature names) to dir, creating it if needed.
func Save(dir string, bundle *Bundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create artifacts directory %q", dir)
	}
	if err := SaveModel(filepath.Join(dir, ModelFile), bundle.Model); err != nil {
		return err
	}
	return SaveFeatureNames(filepath.Join(dir, FeaturesFile), bundle.FeatureNames)
}

// Load reads the bundle from dir.
func Load(dir string) (*Bundle, error) {
	model, err := LoadModel(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, err
	}
	names, err := LoadFeatureNames(filepath.Join(dir, FeaturesFile))
	if err != nil {
		return nil, err
	}
	return &Bundle{Model: model, FeatureNames: names}, nil
}

// SaveMetrics writes the metrics record to dir.
func SaveMetrics(dir string, record *metrics.Record) error {
	return writeFile(filepath.Join(dir, MetricsFile), record.WriteJSON)
}

// LoadMetrics reads the metrics record from dir.
func LoadMetrics(dir string) (*metrics.Record, error) {
	path := filepath.Join(dir, MetricsFile)
	file, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	record, err := metrics.ReadRecord(file)
	if err != nil {
		return nil, errors.WithMessagef(err, "in %q", path)
	}
	return record, nil
}
