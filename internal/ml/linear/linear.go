// Package linear implements a pure Go L2-regularized logistic regression. It defines its own
// gradient and trains with full-batch gradient descent.
//
// It registers itself as "lr". By default it is wrapped in a standard scaler, disable it
// with "lr:scale=false".
package linear

import (
	"context"
	"encoding/gob"
	"fmt"
	"github.com/chewxy/math32"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/janpfeifer/screenGo/internal/ml/preprocessing"
	"github.com/janpfeifer/screenGo/internal/parameters"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"math"
)

func init() {
	gob.Register(&Regression{})
	ml.Register("lr", newFromParams)
}

// Regression is a logistic regression model (one weight per feature + bias).
// It implements ml.Estimator.
type Regression struct {
	// Weights, with the bias as the last element. Empty until fitted.
	Weights []float32

	// C is the inverse of the L2 regularization strength, as in the usual formulation
	// `0.5*|w|^2 + C*sum(logloss)`. The bias is not regularized.
	C float32

	// LearningRate to use when training the model.
	LearningRate float32

	// GradientL2Clip clips the gradient to this l2 length before applying. 0 disables it.
	GradientL2Clip float32

	// MaxIter is the number of gradient descent steps.
	MaxIter int

	// Tolerance stops training early if the gradient l2 length falls below it.
	Tolerance float32
}

var _ ml.Estimator = (*Regression)(nil)

// New returns an unfitted model with default hyperparameters.
func New() *Regression {
	return &Regression{
		C:              1,
		LearningRate:   0.5,
		GradientL2Clip: 10,
		MaxIter:        2000,
		Tolerance:      1e-5,
	}
}

func newFromParams(params parameters.Params) (ml.Estimator, error) {
	r := New()
	var err error
	if r.MaxIter, err = parameters.PopParamOr(params, "max_iter", r.MaxIter); err != nil {
		return nil, err
	}
	if r.C, err = parameters.PopParamOr(params, "C", r.C); err != nil {
		return nil, err
	}
	if r.LearningRate, err = parameters.PopParamOr(params, "learning_rate", r.LearningRate); err != nil {
		return nil, err
	}
	if r.GradientL2Clip, err = parameters.PopParamOr(params, "gradient_clip", r.GradientL2Clip); err != nil {
		return nil, err
	}
	if r.Tolerance, err = parameters.PopParamOr(params, "tol", r.Tolerance); err != nil {
		return nil, err
	}
	if r.MaxIter <= 0 || r.C <= 0 || r.LearningRate <= 0 {
		return nil, errors.Errorf("max_iter, C and learning_rate must be positive, got %d, %g, %g",
			r.MaxIter, r.C, r.LearningRate)
	}
	scale, err := parameters.PopParamOr(params, "scale", true)
	if err != nil {
		return nil, err
	}
	if scale {
		return preprocessing.NewPipeline(r), nil
	}
	return r, nil
}

// String implements ml.Classifier.
func (r *Regression) String() string {
	return fmt.Sprintf("lr(C=%g,max_iter=%d)", r.C, r.MaxIter)
}

// Clone implements ml.Estimator.
func (r *Regression) Clone() ml.Estimator {
	clone := *r
	clone.Weights = nil
	return &clone
}

// NumFeatures the model was fitted with.
func (r *Regression) NumFeatures() int {
	return len(r.Weights) - 1
}

func (r *Regression) logit(features []float32) float32 {
	// Sum start with bias.
	sum := r.Weights[len(r.Weights)-1]
	for ii, feature := range features {
		sum += feature * r.Weights[ii]
	}
	return sum
}

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

func toFloat32(x []float64) []float32 {
	out := make([]float32, len(x))
	for ii, v := range x {
		out[ii] = float32(v)
	}
	return out
}

// PredictProba implements ml.Classifier.
func (r *Regression) PredictProba(x []float64) float64 {
	ml.CheckDim("lr", x, r.NumFeatures())
	return float64(sigmoid(r.logit(toFloat32(x))))
}

// Fit implements ml.Estimator.
func (r *Regression) Fit(ctx context.Context, x [][]float64, y []int) error {
	numFeatures, err := ml.CheckFitInput(x, y)
	if err != nil {
		return errors.WithMessage(err, "lr")
	}
	inputs := make([][]float32, len(x))
	labels := make([]float32, len(y))
	for ii := range x {
		inputs[ii] = toFloat32(x[ii])
		labels[ii] = float32(y[ii])
	}
	r.Weights = make([]float32, numFeatures+1)
	grad := make([]float32, len(r.Weights))
	var step int
	for step = range r.MaxIter {
		if step%100 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		r.calculateGradient(inputs, labels, grad)
		if l2Len(grad) < r.Tolerance {
			break
		}
		if r.GradientL2Clip > 0 {
			clipL2(grad, r.GradientL2Clip)
		}
		for ii := range grad {
			r.Weights[ii] -= r.LearningRate * grad[ii]
		}
	}
	klog.V(2).Infof("lr: fitted in %d steps, loss=%.4f", step+1, r.loss(inputs, labels))
	return nil
}

// calculateGradient of the regularized mean log-loss:
//
//	  x, x_i: input (features) and x term i
//	  w, w_i: weights, and weight term i
//	  b: bias term of the model
//	  p: sigmoid(w*x+b)
//	Loss = -mean(y*log(p) + (1-y)*log(1-p)) + |w|^2/(2*C*N)
//	  dLoss/dw_i = mean((p-y)*x_i) + w_i/(C*N)
//	  dLoss/db = mean(p-y)
func (r *Regression) calculateGradient(inputs [][]float32, labels []float32, gradient []float32) {
	for i := range gradient {
		gradient[i] = 0
	}
	N := float32(len(inputs))
	for exampleIdx, x := range inputs {
		c := sigmoid(r.logit(x)) - labels[exampleIdx]
		for i, x_i := range x {
			gradient[i] += c * x_i
		}
		// gradient of the bias term (the last)
		gradient[len(gradient)-1] += c
	}
	for ii := range gradient {
		gradient[ii] /= N
	}
	// L2 regularization, skipping the bias.
	reg := 1 / (r.C * N)
	for ii := range len(r.Weights) - 1 {
		gradient[ii] += r.Weights[ii] * reg
	}
}

// loss returns the regularized mean log-loss, see calculateGradient.
func (r *Regression) loss(inputs [][]float32, labels []float32) float32 {
	const eps = 1e-7
	var loss float32
	for exampleIdx, x := range inputs {
		p := sigmoid(r.logit(x))
		p = min(1-eps, max(eps, p))
		if labels[exampleIdx] > 0.5 {
			loss -= math32.Log(p)
		} else {
			loss -= math32.Log(1 - p)
		}
	}
	N := float32(len(inputs))
	loss /= N
	var sumSq float32
	for ii := range len(r.Weights) - 1 {
		sumSq += r.Weights[ii] * r.Weights[ii]
	}
	return loss + sumSq/(2*r.C*N)
}

func l2Len(vec []float32) float32 {
	total := float32(0.0)
	for _, value := range vec {
		total += value * value
	}
	return float32(math.Sqrt(float64(total)))
}

// clipL2 clips the L2 length of the vector.
func clipL2(vec []float32, maxLen float32) {
	l2 := l2Len(vec)
	if l2 > maxLen {
		ratio := maxLen / l2
		klog.V(3).Infof("lr: gradient clipped, l2=%g, maxLen=%g", l2, maxLen)
		for ii := range vec {
			vec[ii] *= ratio
		}
	}
}
