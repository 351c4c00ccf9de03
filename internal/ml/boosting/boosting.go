// Package boosting implements gradient boosted regression trees for binary classification,
// minimizing the binomial deviance (log-loss).
//
// Each stage fits a regression tree to the residuals y - p, and then sets each leaf to a
// single Newton step: sum(residuals) / sum(p*(1-p)) over the examples in the leaf.
//
// It registers itself as "gb", with parameters n_estimators (200), learning_rate (0.05),
// max_depth (3), min_samples_leaf (1), subsample (1.0) and seed (42).
package boosting

import (
	"context"
	"encoding/gob"
	"fmt"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/janpfeifer/screenGo/internal/ml/tree"
	"github.com/janpfeifer/screenGo/internal/parameters"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"math"
	"math/rand/v2"
	"time"
)

func init() {
	gob.Register(&Boosting{})
	ml.Register("gb", newFromParams)
}

// Boosting is a gradient boosting classifier. It implements ml.Estimator and ml.Importancer.
type Boosting struct {
	NumEstimators  int
	LearningRate   float64
	MaxDepth       int
	MinSamplesLeaf int
	Subsample      float64
	Seed           uint64

	// Fitted state: InitLogOdds is the log-odds of the training prior.
	InitLogOdds float64
	Trees       []*tree.Tree
	Importances []float64
}

var (
	_ ml.Estimator   = (*Boosting)(nil)
	_ ml.Importancer = (*Boosting)(nil)
)

// New returns an unfitted model with default hyperparameters.
func New() *Boosting {
	return &Boosting{
		NumEstimators:  200,
		LearningRate:   0.05,
		MaxDepth:       3,
		MinSamplesLeaf: 1,
		Subsample:      1.0,
		Seed:           42,
	}
}

func newFromParams(params parameters.Params) (ml.Estimator, error) {
	b := New()
	var err error
	if b.NumEstimators, err = parameters.PopParamOr(params, "n_estimators", b.NumEstimators); err != nil {
		return nil, err
	}
	if b.LearningRate, err = parameters.PopParamOr(params, "learning_rate", b.LearningRate); err != nil {
		return nil, err
	}
	if b.MaxDepth, err = parameters.PopParamOr(params, "max_depth", b.MaxDepth); err != nil {
		return nil, err
	}
	if b.MinSamplesLeaf, err = parameters.PopParamOr(params, "min_samples_leaf", b.MinSamplesLeaf); err != nil {
		return nil, err
	}
	if b.Subsample, err = parameters.PopParamOr(params, "subsample", b.Subsample); err != nil {
		return nil, err
	}
	if b.Seed, err = parameters.PopParamOr(params, "seed", b.Seed); err != nil {
		return nil, err
	}
	if b.NumEstimators <= 0 || b.LearningRate <= 0 {
		return nil, errors.Errorf("n_estimators and learning_rate must be positive, got %d and %g",
			b.NumEstimators, b.LearningRate)
	}
	if b.Subsample <= 0 || b.Subsample > 1 {
		return nil, errors.Errorf("subsample must be in (0, 1], got %g", b.Subsample)
	}
	return b, nil
}

// SetSeed implements ml.Seeder.
func (b *Boosting) SetSeed(seed uint64) { b.Seed = seed }

// String implements ml.Classifier.
func (b *Boosting) String() string {
	return fmt.Sprintf("gb(n_estimators=%d,learning_rate=%g,max_depth=%d)", b.NumEstimators, b.LearningRate, b.MaxDepth)
}

// Clone implements ml.Estimator.
func (b *Boosting) Clone() ml.Estimator {
	clone := *b
	clone.Trees = nil
	clone.Importances = nil
	return &clone
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Fit implements ml.Estimator.
func (b *Boosting) Fit(ctx context.Context, x [][]float64, y []int) error {
	numFeatures, err := ml.CheckFitInput(x, y)
	if err != nil {
		return errors.WithMessage(err, "gb")
	}
	start := time.Now()
	n := len(y)
	var positives float64
	for _, label := range y {
		positives += float64(label)
	}
	prior := positives / float64(n)
	b.InitLogOdds = math.Log(prior / (1 - prior))

	rng := rand.New(rand.NewPCG(b.Seed, 0))
	cfg := tree.Config{MaxDepth: b.MaxDepth, MinSamplesLeaf: b.MinSamplesLeaf}
	logits := make([]float64, n)
	for ii := range logits {
		logits[ii] = b.InitLogOdds
	}
	residuals := make([]float64, n)
	probs := make([]float64, n)
	b.Trees = make([]*tree.Tree, 0, b.NumEstimators)
	b.Importances = make([]float64, numFeatures)
	for stage := range b.NumEstimators {
		if err := ctx.Err(); err != nil {
			b.Trees = nil
			return err
		}
		for ii := range n {
			probs[ii] = sigmoid(logits[ii])
			residuals[ii] = float64(y[ii]) - probs[ii]
		}
		samples := b.stageSamples(n, rng)
		t, importances := tree.Build(x, residuals, samples, cfg, rng)
		for ii, v := range importances {
			b.Importances[ii] += v
		}

		// Newton step per leaf, accumulated over the stage's samples.
		numerators := make(map[int]float64)
		denominators := make(map[int]float64)
		for _, s := range samples {
			leaf := t.Apply(x[s])
			numerators[leaf] += residuals[s]
			denominators[leaf] += probs[s] * (1 - probs[s])
		}
		for leaf, numerator := range numerators {
			var value float64
			if denominators[leaf] > 1e-150 {
				value = numerator / denominators[leaf]
			}
			t.SetLeafValue(leaf, value)
		}
		for ii := range n {
			logits[ii] += b.LearningRate * t.Predict(x[ii])
		}
		b.Trees = append(b.Trees, t)
		if klog.V(3).Enabled() && stage%50 == 0 {
			klog.Infof("gb: stage %d, train deviance=%.4f", stage, deviance(logits, y))
		}
	}
	tree.Normalize(b.Importances)
	klog.V(1).Infof("gb: fitted %d stages in %s, train deviance=%.4f", len(b.Trees), time.Since(start), deviance(logits, y))
	return nil
}

// stageSamples returns all examples, or a random subset without replacement if Subsample < 1.
func (b *Boosting) stageSamples(n int, rng *rand.Rand) []int {
	if b.Subsample >= 1 {
		samples := make([]int, n)
		for ii := range samples {
			samples[ii] = ii
		}
		return samples
	}
	size := max(1, int(b.Subsample*float64(n)))
	return rng.Perm(n)[:size]
}

// deviance is the mean binomial deviance (log-loss) of the logits.
func deviance(logits []float64, y []int) float64 {
	var total float64
	for ii, logit := range logits {
		// log(1+exp(logit)) - y*logit, computed stably.
		total += math.Max(logit, 0) + math.Log1p(math.Exp(-math.Abs(logit))) - float64(y[ii])*logit
	}
	return total / float64(len(logits))
}

// DecisionFunction returns the logit of the positive class.
func (b *Boosting) DecisionFunction(x []float64) float64 {
	ml.CheckDim("gb", x, len(b.Importances))
	logit := b.InitLogOdds
	for _, t := range b.Trees {
		logit += b.LearningRate * t.Predict(x)
	}
	return logit
}

// PredictProba implements ml.Classifier.
func (b *Boosting) PredictProba(x []float64) float64 {
	return sigmoid(b.DecisionFunction(x))
}

// FeatureImportances implements ml.Importancer: the normalized total squared-error decrease
// of each feature over all stages.
func (b *Boosting) FeatureImportances() []float64 {
	return b.Importances
}
