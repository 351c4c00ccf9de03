// Package ml (Machine Learning) defines the interfaces binary classifiers implement, and a
// registry of estimator makers that can be instantiated from configuration strings.
//
// Estimators follow the usual fit/predict protocol: an Estimator is created unfitted with
// its hyperparameters, Fit trains it in place, and afterward PredictProba can be called
// concurrently. Clone returns a new unfitted Estimator with the same hyperparameters,
// which is how cross-validation gets fresh copies.
//
// Fitted estimators are serialized with encoding/gob: every concrete type must be
// registered with gob.Register (usually in the init function of its package), and keep
// its fitted state in exported fields.
package ml

import (
	"context"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/screenGo/internal/parameters"
	"github.com/pkg/errors"
	"slices"
	"sync"
)

// Classifier returns the probability of the positive class (label 1) for a feature vector.
type Classifier interface {
	// PredictProba returns P(y=1|x), a value in [0, 1].
	// It panics (with exceptions.Panicf) if x has the wrong dimension.
	PredictProba(x []float64) float64

	// String returns a short description of the model.
	String() string
}

// Estimator is a Classifier that can be trained.
type Estimator interface {
	Classifier

	// Fit trains the estimator with the rows x and binary labels y.
	// It should return early with ctx.Err() if the context is cancelled.
	Fit(ctx context.Context, x [][]float64, y []int) error

	// Clone returns a new, unfitted Estimator with the same hyperparameters.
	Clone() Estimator
}

// Importancer is implemented by estimators that can report impurity-based feature importances
// after fitting. The returned slice has one value per feature and sums to 1 (or is all zeros).
type Importancer interface {
	FeatureImportances() []float64
}

// Seeder is implemented by estimators that use randomness. Ensembles use it to give each
// member its own deterministic seed.
type Seeder interface {
	SetSeed(seed uint64)
}

// Maker creates an unfitted estimator from its parameters. Makers must consume (pop) every
// parameter they understand: leftovers are reported as errors by New.
type Maker func(params parameters.Params) (Estimator, error)

var (
	muRegistry sync.Mutex
	makers     = make(map[string]Maker)
)

// Register a maker under the given name, so it can be used in configuration strings.
func Register(name string, maker Maker) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	makers[name] = maker
}

// Registered returns the sorted names of the registered makers.
func Registered() []string {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	names := make([]string, 0, len(makers))
	for name := range makers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New creates an estimator from a configuration string, e.g. "gb:n_estimators=200,learning_rate=0.05".
// The name before ":" selects the registered maker.
func New(config string) (Estimator, error) {
	name, params := parameters.Split(config)
	muRegistry.Lock()
	maker, found := makers[name]
	muRegistry.Unlock()
	if !found {
		return nil, errors.Errorf("unknown estimator %q (registered: %v)", name, Registered())
	}
	estimator, err := maker(params)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create estimator %q", name)
	}
	if err = parameters.CheckConsumed(name, params); err != nil {
		return nil, err
	}
	return estimator, nil
}

// CheckDim panics if x doesn't have the expected dimension.
func CheckDim(model string, x []float64, dim int) {
	if len(x) != dim {
		exceptions.Panicf("%s: features dimension is %d, but model was fitted with %d features", model, len(x), dim)
	}
}

// CheckFitInput validates the training data.
func CheckFitInput(x [][]float64, y []int) (numFeatures int, err error) {
	if len(x) == 0 {
		return 0, errors.New("no training examples")
	}
	if len(x) != len(y) {
		return 0, errors.Errorf("%d examples but %d labels", len(x), len(y))
	}
	numFeatures = len(x[0])
	var positives int
	for ii, row := range x {
		if len(row) != numFeatures {
			return 0, errors.Errorf("example #%d has %d features, expected %d", ii, len(row), numFeatures)
		}
		if y[ii] != 0 && y[ii] != 1 {
			return 0, errors.Errorf("example #%d has label %d, only 0 and 1 are accepted", ii, y[ii])
		}
		positives += y[ii]
	}
	if positives == 0 || positives == len(y) {
		return 0, errors.New("training data has only one class")
	}
	return numFeatures, nil
}

// PredictLabel returns 1 if the probability is >= cutoff.
func PredictLabel(c Classifier, x []float64, cutoff float64) int {
	if c.PredictProba(x) >= cutoff {
		return 1
	}
	return 0
}

// PredictAll returns the probability for each row.
func PredictAll(c Classifier, x [][]float64) []float64 {
	probs := make([]float64, len(x))
	for ii, row := range x {
		probs[ii] = c.PredictProba(row)
	}
	return probs
}

// Clip p to [0, 1].
func Clip(p float64) float64 {
	return min(1, max(0, p))
}
