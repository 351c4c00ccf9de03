// Package preprocessing implements the input standardization used in front of the scale
// sensitive estimators (logistic regression and SVC).
package preprocessing

import (
	"context"
	"encoding/gob"
	"fmt"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/pkg/errors"
	"math"
)

func init() {
	gob.Register(&Pipeline{})
}

// StandardScaler removes the mean and scales each feature to unit variance.
// Features with zero variance are only centered.
type StandardScaler struct {
	Mean, Scale []float64
}

// Fit computes the per-feature mean and (population) standard deviation.
func (s *StandardScaler) Fit(x [][]float64) error {
	if len(x) == 0 {
		return errors.New("StandardScaler: no examples")
	}
	dim := len(x[0])
	s.Mean = make([]float64, dim)
	s.Scale = make([]float64, dim)
	n := float64(len(x))
	for _, row := range x {
		for ii, v := range row {
			s.Mean[ii] += v
		}
	}
	for ii := range s.Mean {
		s.Mean[ii] /= n
	}
	for _, row := range x {
		for ii, v := range row {
			d := v - s.Mean[ii]
			s.Scale[ii] += d * d
		}
	}
	for ii := range s.Scale {
		s.Scale[ii] = math.Sqrt(s.Scale[ii] / n)
		if s.Scale[ii] == 0 {
			s.Scale[ii] = 1
		}
	}
	return nil
}

// Transform returns a standardized copy of x.
func (s *StandardScaler) Transform(x []float64) []float64 {
	ml.CheckDim("StandardScaler", x, len(s.Mean))
	out := make([]float64, len(x))
	for ii, v := range x {
		out[ii] = (v - s.Mean[ii]) / s.Scale[ii]
	}
	return out
}

// TransformAll returns a standardized copy of all rows.
func (s *StandardScaler) TransformAll(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for ii, row := range x {
		out[ii] = s.Transform(row)
	}
	return out
}

// Pipeline standardizes the input before passing it to Model.
type Pipeline struct {
	Scaler StandardScaler
	Model  ml.Estimator
}

var _ ml.Estimator = (*Pipeline)(nil)

// NewPipeline returns a scaler followed by the given (unfitted) model.
func NewPipeline(model ml.Estimator) *Pipeline {
	return &Pipeline{Model: model}
}

// Fit implements ml.Estimator.
func (p *Pipeline) Fit(ctx context.Context, x [][]float64, y []int) error {
	if err := p.Scaler.Fit(x); err != nil {
		return err
	}
	return p.Model.Fit(ctx, p.Scaler.TransformAll(x), y)
}

// PredictProba implements ml.Classifier.
func (p *Pipeline) PredictProba(x []float64) float64 {
	return p.Model.PredictProba(p.Scaler.Transform(x))
}

// Unwrap returns the model behind the scaler.
func (p *Pipeline) Unwrap() ml.Estimator {
	return p.Model
}

// Clone implements ml.Estimator.
func (p *Pipeline) Clone() ml.Estimator {
	return NewPipeline(p.Model.Clone())
}

// String implements ml.Classifier.
func (p *Pipeline) String() string {
	return fmt.Sprintf("scaler+%s", p.Model)
}
