package trainer

import (
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/screenGo/internal/artifacts"
	"github.com/janpfeifer/screenGo/internal/dataset"
	"github.com/janpfeifer/screenGo/internal/features"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/janpfeifer/screenGo/internal/ml/metrics"
	"github.com/pkg/errors"
)

// Evaluation of a saved bundle on a dataset.
type Evaluation struct {
	Metrics *metrics.Record
	Report  []metrics.ReportRow
}

// Evaluate the bundle on all rows of table. The features are built in the order persisted
// in the bundle, and labels are predicted with p >= cutoff.
func Evaluate(bundle *artifacts.Bundle, table *dataset.Table, cutoff float64) (*Evaluation, error) {
	ids, err := features.Indices(bundle.FeatureNames)
	if err != nil {
		return nil, errors.WithMessage(err, "bundle features don't match the known features")
	}
	x := make([][]float64, table.Len())
	for ii, record := range table.Records {
		x[ii] = features.VectorFromIds(ids, features.Derive(record))
	}
	var probs []float64
	err = exceptions.TryCatch[error](func() {
		probs = ml.PredictAll(bundle.Model, x)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to evaluate %s", bundle.Model)
	}
	record, err := metrics.Evaluate(table.Y, probs, cutoff)
	if err != nil {
		return nil, err
	}
	report, err := metrics.ClassificationReport(table.Y, metrics.Threshold(probs, cutoff))
	if err != nil {
		return nil, err
	}
	return &Evaluation{Metrics: record, Report: report}, nil
}
