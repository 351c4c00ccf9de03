package calibration

import (
	"context"
	"encoding/gob"
	"fmt"
	"github.com/janpfeifer/screenGo/internal/dataset"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
	"runtime"
	"time"
)

func init() {
	gob.Register(&CV{})
}

// Fold is a classifier fitted on the training part of one fold, and the isotonic calibrator
// fitted on its predictions for the held-out part.
type Fold struct {
	Model      ml.Estimator
	Calibrator Isotonic
}

// PredictProba returns the calibrated probability of the fold's classifier.
func (f *Fold) PredictProba(x []float64) float64 {
	return ml.Clip(f.Calibrator.Predict(f.Model.PredictProba(x)))
}

// CV is an isotonic-calibrated classifier fitted with stratified k-fold cross-validation.
// The probability is the mean of the calibrated probabilities of each fold.
// It implements ml.Estimator.
type CV struct {
	// Base is the unfitted estimator cloned for each fold.
	Base     ml.Estimator
	NumFolds int
	Seed     uint64

	// Fitted state.
	Folds []Fold
}

var _ ml.Estimator = (*CV)(nil)

// NewCV returns an unfitted calibrated classifier over base, with numFolds folds.
func NewCV(base ml.Estimator, numFolds int, seed uint64) *CV {
	return &CV{Base: base, NumFolds: numFolds, Seed: seed}
}

// String implements ml.Classifier.
func (c *CV) String() string {
	return fmt.Sprintf("isotonic(cv=%d, %s)", c.NumFolds, c.Base)
}

// Clone implements ml.Estimator.
func (c *CV) Clone() ml.Estimator {
	return NewCV(c.Base.Clone(), c.NumFolds, c.Seed)
}

// Fit implements ml.Estimator. Folds are fitted concurrently.
func (c *CV) Fit(ctx context.Context, x [][]float64, y []int) error {
	if c.NumFolds < 2 {
		return errors.Errorf("calibration needs at least 2 folds, got %d", c.NumFolds)
	}
	if _, err := ml.CheckFitInput(x, y); err != nil {
		return errors.WithMessage(err, "calibration")
	}
	heldOutFolds, err := dataset.StratifiedKFold(y, c.NumFolds, c.Seed)
	if err != nil {
		return errors.WithMessage(err, "calibration")
	}
	folds := make([]Fold, c.NumFolds)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for foldIdx, heldOut := range heldOutFolds {
		g.Go(func() error {
			start := time.Now()
			train := dataset.Complement(len(x), heldOut)
			trainX, trainY := subset(x, y, train)
			model := c.Base.Clone()
			if err := model.Fit(gCtx, trainX, trainY); err != nil {
				return errors.WithMessagef(err, "calibration fold #%d", foldIdx)
			}
			heldOutX, heldOutY := subset(x, y, heldOut)
			probs := ml.PredictAll(model, heldOutX)
			targets := make([]float64, len(heldOutY))
			for ii, label := range heldOutY {
				targets[ii] = float64(label)
			}
			folds[foldIdx].Model = model
			if err := folds[foldIdx].Calibrator.Fit(probs, targets); err != nil {
				return errors.WithMessagef(err, "calibration fold #%d", foldIdx)
			}
			klog.V(1).Infof("calibration: fold %d (train=%d, held-out=%d) fitted in %s",
				foldIdx, len(train), len(heldOut), time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.Folds = folds
	return nil
}

func subset(x [][]float64, y []int, indices []int) ([][]float64, []int) {
	subX := make([][]float64, len(indices))
	subY := make([]int, len(indices))
	for ii, idx := range indices {
		subX[ii], subY[ii] = x[idx], y[idx]
	}
	return subX, subY
}

// PredictProba implements ml.Classifier.
func (c *CV) PredictProba(x []float64) float64 {
	var sum float64
	for ii := range c.Folds {
		sum += c.Folds[ii].PredictProba(x)
	}
	return ml.Clip(sum / float64(len(c.Folds)))
}
