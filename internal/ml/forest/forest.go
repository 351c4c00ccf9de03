// Package forest implements a random forest of CART classification trees.
//
// It registers itself as "rf", with parameters:
//
//   - n_estimators: number of trees, default 200.
//   - max_features: features considered per split, "sqrt" (default), "all" or an integer.
//   - max_depth: 0 (default) for unlimited.
//   - min_samples_leaf: default 1.
//   - bootstrap: default true.
//   - seed: default 42.
package forest

import (
	"context"
	"encoding/gob"
	"fmt"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/janpfeifer/screenGo/internal/ml/tree"
	"github.com/janpfeifer/screenGo/internal/parameters"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
	"math"
	"math/rand/v2"
	"runtime"
	"strconv"
	"time"
)

func init() {
	gob.Register(&Forest{})
	ml.Register("rf", newFromParams)
}

// Forest is a random forest classifier: the probability is the mean of the trees' leaf
// class frequencies. It implements ml.Estimator and ml.Importancer.
type Forest struct {
	NumEstimators  int
	MaxFeatures    string
	MaxDepth       int
	MinSamplesLeaf int
	Bootstrap      bool
	Seed           uint64

	// Fitted state.
	Trees       []*tree.Tree
	Importances []float64
}

var (
	_ ml.Estimator   = (*Forest)(nil)
	_ ml.Importancer = (*Forest)(nil)
)

// New returns an unfitted forest with default hyperparameters.
func New() *Forest {
	return &Forest{
		NumEstimators:  200,
		MaxFeatures:    "sqrt",
		MinSamplesLeaf: 1,
		Bootstrap:      true,
		Seed:           42,
	}
}

func newFromParams(params parameters.Params) (ml.Estimator, error) {
	f := New()
	var err error
	if f.NumEstimators, err = parameters.PopParamOr(params, "n_estimators", f.NumEstimators); err != nil {
		return nil, err
	}
	if f.MaxFeatures, err = parameters.PopParamOr(params, "max_features", f.MaxFeatures); err != nil {
		return nil, err
	}
	if f.MaxDepth, err = parameters.PopParamOr(params, "max_depth", f.MaxDepth); err != nil {
		return nil, err
	}
	if f.MinSamplesLeaf, err = parameters.PopParamOr(params, "min_samples_leaf", f.MinSamplesLeaf); err != nil {
		return nil, err
	}
	if f.Bootstrap, err = parameters.PopParamOr(params, "bootstrap", f.Bootstrap); err != nil {
		return nil, err
	}
	if f.Seed, err = parameters.PopParamOr(params, "seed", f.Seed); err != nil {
		return nil, err
	}
	if f.NumEstimators <= 0 {
		return nil, errors.Errorf("n_estimators must be positive, got %d", f.NumEstimators)
	}
	if _, err = f.maxFeatures(10); err != nil {
		return nil, err
	}
	return f, nil
}

// SetSeed implements ml.Seeder.
func (f *Forest) SetSeed(seed uint64) { f.Seed = seed }

// maxFeatures returns the number of features to consider per split.
func (f *Forest) maxFeatures(numFeatures int) (int, error) {
	switch f.MaxFeatures {
	case "sqrt", "":
		return max(1, int(math.Sqrt(float64(numFeatures)))), nil
	case "log2":
		return max(1, int(math.Log2(float64(numFeatures)))), nil
	case "all", "none":
		return numFeatures, nil
	}
	n, err := strconv.Atoi(f.MaxFeatures)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("invalid max_features %q: use sqrt, log2, all or a positive integer", f.MaxFeatures)
	}
	return min(n, numFeatures), nil
}

// String implements ml.Classifier.
func (f *Forest) String() string {
	return fmt.Sprintf("rf(n_estimators=%d,max_features=%s)", f.NumEstimators, f.MaxFeatures)
}

// Clone implements ml.Estimator.
func (f *Forest) Clone() ml.Estimator {
	clone := *f
	clone.Trees = nil
	clone.Importances = nil
	return &clone
}

// Fit implements ml.Estimator. Trees are grown in parallel, each one with its own random
// number generator seeded from Seed, so the result doesn't depend on scheduling.
func (f *Forest) Fit(ctx context.Context, x [][]float64, y []int) error {
	numFeatures, err := ml.CheckFitInput(x, y)
	if err != nil {
		return errors.WithMessage(err, "rf")
	}
	maxFeatures, err := f.maxFeatures(numFeatures)
	if err != nil {
		return err
	}
	start := time.Now()
	targets := make([]float64, len(y))
	for ii, label := range y {
		targets[ii] = float64(label)
	}
	cfg := tree.Config{
		MaxDepth:       f.MaxDepth,
		MinSamplesLeaf: f.MinSamplesLeaf,
		MaxFeatures:    maxFeatures,
	}

	seeds := rand.New(rand.NewPCG(f.Seed, 0))
	treeSeeds := make([]uint64, f.NumEstimators)
	for ii := range treeSeeds {
		treeSeeds[ii] = seeds.Uint64()
	}
	f.Trees = make([]*tree.Tree, f.NumEstimators)
	treeImportances := make([][]float64, f.NumEstimators)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for treeIdx := range f.NumEstimators {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(treeSeeds[treeIdx], uint64(treeIdx)))
			samples := make([]int, len(x))
			for ii := range samples {
				if f.Bootstrap {
					samples[ii] = rng.IntN(len(x))
				} else {
					samples[ii] = ii
				}
			}
			t, importances := tree.Build(x, targets, samples, cfg, rng)
			f.Trees[treeIdx] = t
			treeImportances[treeIdx] = tree.Normalize(importances)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.Trees = nil
		return err
	}

	f.Importances = make([]float64, numFeatures)
	for _, importances := range treeImportances {
		for ii, v := range importances {
			f.Importances[ii] += v
		}
	}
	tree.Normalize(f.Importances)
	klog.V(1).Infof("rf: fitted %d trees in %s", len(f.Trees), time.Since(start))
	return nil
}

// PredictProba implements ml.Classifier.
func (f *Forest) PredictProba(x []float64) float64 {
	var sum float64
	for _, t := range f.Trees {
		sum += t.Predict(x)
	}
	return ml.Clip(sum / float64(len(f.Trees)))
}

// FeatureImportances implements ml.Importancer: the mean over trees of each tree's
// normalized impurity decrease.
func (f *Forest) FeatureImportances() []float64 {
	return f.Importances
}
