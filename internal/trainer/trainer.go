// Package trainer implements the offline training pipeline: it splits the dataset, fits the
// calibrated soft voting ensemble, evaluates it on the held-out split and saves the model
// bundle, the metrics and the auxiliary reports.
package trainer

import (
	"context"
	"github.com/janpfeifer/screenGo/internal/artifacts"
	"github.com/janpfeifer/screenGo/internal/config"
	"github.com/janpfeifer/screenGo/internal/dataset"
	"github.com/janpfeifer/screenGo/internal/history"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/janpfeifer/screenGo/internal/ml/calibration"
	"github.com/janpfeifer/screenGo/internal/ml/ensemble"
	"github.com/janpfeifer/screenGo/internal/ml/metrics"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"path/filepath"
	"strings"
	"time"
)

// Result of a training run.
type Result struct {
	Model        ml.Classifier
	FeatureNames []string
	Metrics      *metrics.Record

	// Auxiliary reports.
	ROCCurve          []metrics.ROCPoint
	CalibrationCurve  []metrics.CalibrationBin
	SamplePredictions []artifacts.SamplePrediction
	Importances       []artifacts.Importance

	NumTrain, NumTest int
	Duration          time.Duration
}

// Train fits the calibrated ensemble on a stratified split of table and evaluates it on the
// held-out part. Feature importances are computed if cfg.ImportanceEstimators > 0.
func Train(ctx context.Context, cfg *config.Training, table *dataset.Table) (*Result, error) {
	start := time.Now()
	trainIdx, testIdx, err := dataset.StratifiedSplit(table.Y, cfg.TestSize, cfg.Seed)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to split dataset")
	}
	xTrain, yTrain := table.Subset(trainIdx)
	xTest, yTest := table.Subset(testIdx)
	klog.Infof("Training with %d examples, evaluating with %d", len(yTrain), len(yTest))

	voting, err := ensemble.NewVoting(cfg.Learners, cfg.Seed)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create ensemble")
	}
	model := calibration.NewCV(voting, cfg.CV, cfg.Seed)
	if err = model.Fit(ctx, xTrain, yTrain); err != nil {
		return nil, errors.WithMessagef(err, "failed to train %s", model)
	}
	klog.V(1).Infof("Fitted %s in %s", model, time.Since(start))

	probs := ml.PredictAll(model, xTest)
	record, err := metrics.Evaluate(yTest, probs, config.DefaultThresholds.LabelCutoff)
	if err != nil {
		return nil, err
	}
	record.RunID = history.NewRunID()
	record.CreatedAt = time.Now().UTC().Truncate(time.Second)

	r := &Result{
		Model:        model,
		FeatureNames: table.FeatureNames,
		Metrics:      record,
		NumTrain:     len(yTrain),
		NumTest:      len(yTest),
	}
	if r.ROCCurve, err = metrics.ROCCurve(yTest, probs); err != nil {
		klog.Warningf("ROC curve not generated: %v", err)
	}
	if r.CalibrationCurve, err = metrics.CalibrationCurve(yTest, probs, cfg.CalibrationBins); err != nil {
		return nil, err
	}
	predicted := metrics.Threshold(probs, record.Cutoff)
	for ii := range min(cfg.NumSamplePredictions, len(yTest)) {
		r.SamplePredictions = append(r.SamplePredictions, artifacts.SamplePrediction{
			Features:    xTest[ii],
			Label:       yTest[ii],
			Predicted:   predicted[ii],
			Probability: probs[ii],
		})
	}

	if cfg.ImportanceEstimators > 0 {
		if r.Importances, err = Importances(ctx, table.FeatureNames, xTrain, yTrain, cfg.ImportanceEstimators, cfg.Seed); err != nil {
			return nil, err
		}
	}
	r.Duration = time.Since(start)
	return r, nil
}

// Save writes the bundle, the metrics and the reports of the result to dir.
func (r *Result) Save(dir string) error {
	if err := artifacts.Save(dir, &artifacts.Bundle{Model: r.Model, FeatureNames: r.FeatureNames}); err != nil {
		return err
	}
	if err := artifacts.SaveMetrics(dir, r.Metrics); err != nil {
		return err
	}
	if len(r.ROCCurve) > 0 {
		if err := artifacts.SaveROCCurve(filepath.Join(dir, artifacts.ROCCurveFile), r.ROCCurve); err != nil {
			return err
		}
	}
	if err := artifacts.SaveCalibrationCurve(filepath.Join(dir, artifacts.CalibrationCurveFile), r.CalibrationCurve); err != nil {
		return err
	}
	if err := artifacts.SaveSamplePredictions(filepath.Join(dir, artifacts.SamplePredictionsFile), r.FeatureNames, r.SamplePredictions); err != nil {
		return err
	}
	if len(r.Importances) > 0 {
		if err := artifacts.SaveImportances(filepath.Join(dir, artifacts.ImportancesFile), r.Importances); err != nil {
			return err
		}
	}
	klog.Infof("Artifacts saved to %s", dir)
	return nil
}

// Run loads the dataset, trains, saves the artifacts to cfg.Models and, if configured,
// records the run in the history database.
func Run(ctx context.Context, cfg *config.Training) (*Result, error) {
	table, err := dataset.Load(cfg.Data)
	if err != nil {
		return nil, err
	}
	r, err := Train(ctx, cfg, table)
	if err != nil {
		return nil, err
	}
	if err = r.Save(cfg.Models); err != nil {
		return nil, err
	}
	if cfg.HistoryDB != "" {
		if err = r.Record(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Record appends the run to the history database in cfg.HistoryDB.
func (r *Result) Record(ctx context.Context, cfg *config.Training) error {
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	_, err = store.Add(ctx, &history.Run{
		ID:        r.Metrics.RunID,
		CreatedAt: r.Metrics.CreatedAt,
		DataPath:  cfg.Data,
		ModelsDir: cfg.Models,
		Learners:  strings.Join(cfg.Learners, " "),
		NumTrain:  r.NumTrain,
		NumTest:   r.NumTest,
		Duration:  r.Duration,
		Metrics:   *r.Metrics,
	})
	return err
}
