// Package svm implements a support vector classifier with an RBF kernel, trained with SMO
// (sequential minimal optimization, with second order working set selection), and Platt
// scaling for probability estimates.
//
// It registers itself as "svc", with parameters:
//
//   - C: regularization, default 1.
//   - gamma: "scale" (default, 1/(n_features*var(X))), "auto" (1/n_features) or a number.
//   - tol: stopping tolerance of the SMO, default 1e-3.
//   - max_iter: maximum SMO iterations, default 0 for max(10_000_000, 100*n).
//   - prob_folds: folds of the internal cross-validation used to fit the Platt sigmoid, default 5.
//   - seed: default 42.
//   - scale: wrap the model in a standard scaler, default true.
package svm

import (
	"context"
	"encoding/gob"
	"fmt"
	"github.com/janpfeifer/screenGo/internal/dataset"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/janpfeifer/screenGo/internal/ml/preprocessing"
	"github.com/janpfeifer/screenGo/internal/parameters"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"math"
	"strconv"
	"time"
)

func init() {
	gob.Register(&SVC{})
	ml.Register("svc", newFromParams)
}

// SVC is a binary support vector classifier. It implements ml.Estimator.
type SVC struct {
	C         float64
	Gamma     string
	Tolerance float64
	MaxIter   int
	ProbFolds int
	Seed      uint64

	// Fitted state: the decision function is sum_i Coefs[i]*K(SupportVectors[i], x) - Rho,
	// and P(y=1|x) = 1/(1+exp(ProbA*f(x)+ProbB)).
	GammaValue     float64
	SupportVectors [][]float64
	Coefs          []float64
	Rho            float64
	ProbA, ProbB   float64
}

var _ ml.Estimator = (*SVC)(nil)

// New returns an unfitted classifier with default hyperparameters.
func New() *SVC {
	return &SVC{
		C:         1,
		Gamma:     "scale",
		Tolerance: 1e-3,
		ProbFolds: 5,
		Seed:      42,
	}
}

func newFromParams(params parameters.Params) (ml.Estimator, error) {
	s := New()
	var err error
	if s.C, err = parameters.PopParamOr(params, "C", s.C); err != nil {
		return nil, err
	}
	if s.Gamma, err = parameters.PopParamOr(params, "gamma", s.Gamma); err != nil {
		return nil, err
	}
	if s.Tolerance, err = parameters.PopParamOr(params, "tol", s.Tolerance); err != nil {
		return nil, err
	}
	if s.MaxIter, err = parameters.PopParamOr(params, "max_iter", s.MaxIter); err != nil {
		return nil, err
	}
	if s.ProbFolds, err = parameters.PopParamOr(params, "prob_folds", s.ProbFolds); err != nil {
		return nil, err
	}
	if s.Seed, err = parameters.PopParamOr(params, "seed", s.Seed); err != nil {
		return nil, err
	}
	if s.C <= 0 || s.Tolerance <= 0 {
		return nil, errors.Errorf("C and tol must be positive, got %g and %g", s.C, s.Tolerance)
	}
	if s.ProbFolds < 2 {
		return nil, errors.Errorf("prob_folds must be at least 2, got %d", s.ProbFolds)
	}
	if _, err = s.gamma([][]float64{{0}}); err != nil {
		return nil, err
	}
	scale, err := parameters.PopParamOr(params, "scale", true)
	if err != nil {
		return nil, err
	}
	if scale {
		return preprocessing.NewPipeline(s), nil
	}
	return s, nil
}

// SetSeed implements ml.Seeder.
func (s *SVC) SetSeed(seed uint64) { s.Seed = seed }

// String implements ml.Classifier.
func (s *SVC) String() string {
	return fmt.Sprintf("svc(C=%g,gamma=%s)", s.C, s.Gamma)
}

// Clone implements ml.Estimator.
func (s *SVC) Clone() ml.Estimator {
	return &SVC{
		C:         s.C,
		Gamma:     s.Gamma,
		Tolerance: s.Tolerance,
		MaxIter:   s.MaxIter,
		ProbFolds: s.ProbFolds,
		Seed:      s.Seed,
	}
}

// gamma resolves the Gamma hyperparameter for the training data x.
func (s *SVC) gamma(x [][]float64) (float64, error) {
	numFeatures := float64(len(x[0]))
	switch s.Gamma {
	case "scale", "":
		var sum, sumSq, count float64
		for _, row := range x {
			for _, v := range row {
				sum += v
				sumSq += v * v
				count++
			}
		}
		mean := sum / count
		variance := sumSq/count - mean*mean
		if variance <= 0 {
			return 1, nil
		}
		return 1 / (numFeatures * variance), nil
	case "auto":
		return 1 / numFeatures, nil
	}
	g, err := strconv.ParseFloat(s.Gamma, 64)
	if err != nil || g <= 0 {
		return 0, errors.Errorf("invalid gamma %q: use scale, auto or a positive number", s.Gamma)
	}
	return g, nil
}

func rbf(a, b []float64, gamma float64) float64 {
	var d2 float64
	for ii := range a {
		d := a[ii] - b[ii]
		d2 += d * d
	}
	return math.Exp(-gamma * d2)
}

// Fit implements ml.Estimator.
func (s *SVC) Fit(ctx context.Context, x [][]float64, y []int) error {
	if _, err := ml.CheckFitInput(x, y); err != nil {
		return errors.WithMessage(err, "svc")
	}
	start := time.Now()
	gamma, err := s.gamma(x)
	if err != nil {
		return err
	}
	s.GammaValue = gamma

	// Platt sigmoid fitted on out-of-fold decision values.
	decisions, err := s.crossValidatedDecisions(ctx, x, y)
	if err != nil {
		return err
	}
	s.ProbA, s.ProbB = fitSigmoid(decisions, y)

	model, err := s.solve(ctx, x, y)
	if err != nil {
		return err
	}
	s.SupportVectors, s.Coefs, s.Rho = model.supportVectors, model.coefs, model.rho
	klog.V(1).Infof("svc: fitted in %s, gamma=%.4g, %d support vectors, A=%.4g, B=%.4g",
		time.Since(start), s.GammaValue, len(s.SupportVectors), s.ProbA, s.ProbB)
	return nil
}

// crossValidatedDecisions returns the decision value of each example computed by a model
// that didn't see it during training. If the data is too small for stratified folds, it
// falls back to in-sample decision values.
func (s *SVC) crossValidatedDecisions(ctx context.Context, x [][]float64, y []int) ([]float64, error) {
	decisions := make([]float64, len(x))
	folds, err := dataset.StratifiedKFold(y, s.ProbFolds, s.Seed)
	if err != nil {
		klog.V(2).Infof("svc: no cross-validation for probabilities (%v), using in-sample decision values", err)
		model, err := s.solve(ctx, x, y)
		if err != nil {
			return nil, err
		}
		for ii, row := range x {
			decisions[ii] = model.decision(row, s.GammaValue)
		}
		return decisions, nil
	}
	for _, heldOut := range folds {
		train := dataset.Complement(len(x), heldOut)
		trainX := make([][]float64, len(train))
		trainY := make([]int, len(train))
		for ii, idx := range train {
			trainX[ii], trainY[ii] = x[idx], y[idx]
		}
		model, err := s.solve(ctx, trainX, trainY)
		if err != nil {
			return nil, err
		}
		for _, idx := range heldOut {
			decisions[idx] = model.decision(x[idx], s.GammaValue)
		}
	}
	return decisions, nil
}

// dualModel is the result of solving the SVM dual problem.
type dualModel struct {
	supportVectors [][]float64
	coefs          []float64
	rho            float64
}

func (m *dualModel) decision(x []float64, gamma float64) float64 {
	sum := -m.rho
	for ii, sv := range m.supportVectors {
		sum += m.coefs[ii] * rbf(sv, x, gamma)
	}
	return sum
}

// tau replaces non-positive curvatures in the working set selection.
const tau = 1e-12

// solve the dual problem
//
//	min 0.5*a'Qa - e'a, subject to 0 <= a_i <= C, y'a = 0, with Q_ij = y_i*y_j*K(x_i, x_j)
//
// using SMO with the second order working set selection of Fan, Chen and Lin (2005).
func (s *SVC) solve(ctx context.Context, x [][]float64, labels []int) (*dualModel, error) {
	n := len(x)
	y := make([]float64, n)
	for ii, label := range labels {
		y[ii] = 2*float64(label) - 1
	}
	kernel := make([][]float64, n)
	for ii := range n {
		kernel[ii] = make([]float64, n)
		for jj := range ii + 1 {
			k := rbf(x[ii], x[jj], s.GammaValue)
			kernel[ii][jj] = k
			kernel[jj][ii] = k
		}
	}

	C := s.C
	alpha := make([]float64, n)
	grad := make([]float64, n)
	for ii := range grad {
		grad[ii] = -1
	}
	maxIter := s.MaxIter
	if maxIter <= 0 {
		maxIter = max(10_000_000, 100*n)
	}
	var iter int
	for iter = range maxIter {
		if iter%1000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		i, j, ok := selectWorkingSet(alpha, grad, y, kernel, C, s.Tolerance)
		if !ok {
			break
		}
		oldAi, oldAj := alpha[i], alpha[j]
		updatePair(alpha, grad, y, kernel, C, i, j)
		deltaI, deltaJ := alpha[i]-oldAi, alpha[j]-oldAj
		for k := range n {
			grad[k] += y[k] * (y[i]*kernel[i][k]*deltaI + y[j]*kernel[j][k]*deltaJ)
		}
	}
	if iter == maxIter-1 {
		klog.Warningf("svc: SMO reached max_iter=%d before converging", maxIter)
	}

	model := &dualModel{rho: computeRho(alpha, grad, y, C)}
	for ii := range n {
		if alpha[ii] > 0 {
			model.supportVectors = append(model.supportVectors, x[ii])
			model.coefs = append(model.coefs, alpha[ii]*y[ii])
		}
	}
	klog.V(2).Infof("svc: SMO finished after %d iterations", iter+1)
	return model, nil
}

// selectWorkingSet returns the pair (i, j) that most violates the KKT conditions, or ok=false
// if the violation is below tolerance.
func selectWorkingSet(alpha, grad, y []float64, kernel [][]float64, C, tolerance float64) (i, j int, ok bool) {
	gMax := math.Inf(-1)
	i = -1
	for t := range alpha {
		if (y[t] > 0 && alpha[t] < C) || (y[t] < 0 && alpha[t] > 0) {
			if v := -y[t] * grad[t]; v >= gMax {
				gMax = v
				i = t
			}
		}
	}
	if i < 0 {
		return 0, 0, false
	}
	gMin := math.Inf(1)
	objMin := math.Inf(1)
	j = -1
	for t := range alpha {
		if (y[t] > 0 && alpha[t] > 0) || (y[t] < 0 && alpha[t] < C) {
			v := -y[t] * grad[t]
			gMin = min(gMin, v)
			b := gMax - v
			if b > 0 {
				a := kernel[i][i] + kernel[t][t] - 2*kernel[i][t]
				if a <= 0 {
					a = tau
				}
				if obj := -b * b / a; obj <= objMin {
					objMin = obj
					j = t
				}
			}
		}
	}
	if gMax-gMin < tolerance || j < 0 {
		return 0, 0, false
	}
	return i, j, true
}

// updatePair solves the two variable sub-problem for (i, j) analytically, clipping to the box.
func updatePair(alpha, grad, y []float64, kernel [][]float64, C float64, i, j int) {
	quad := kernel[i][i] + kernel[j][j] - 2*kernel[i][j]
	if quad <= 0 {
		quad = tau
	}
	if y[i] != y[j] {
		delta := (-grad[i] - grad[j]) / quad
		diff := alpha[i] - alpha[j]
		alpha[i] += delta
		alpha[j] += delta
		if diff > 0 {
			if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = diff
			}
		} else if alpha[i] < 0 {
			alpha[i] = 0
			alpha[j] = -diff
		}
		if diff > 0 {
			if alpha[i] > C {
				alpha[i] = C
				alpha[j] = C - diff
			}
		} else if alpha[j] > C {
			alpha[j] = C
			alpha[i] = C + diff
		}
		return
	}
	delta := (grad[i] - grad[j]) / quad
	sum := alpha[i] + alpha[j]
	alpha[i] -= delta
	alpha[j] += delta
	if sum > C {
		if alpha[i] > C {
			alpha[i] = C
			alpha[j] = sum - C
		}
	} else if alpha[j] < 0 {
		alpha[j] = 0
		alpha[i] = sum
	}
	if sum > C {
		if alpha[j] > C {
			alpha[j] = C
			alpha[i] = sum - C
		}
	} else if alpha[i] < 0 {
		alpha[i] = 0
		alpha[j] = sum
	}
}

// computeRho returns the bias term: the mean of y*grad over free support vectors, or the
// midpoint of its feasible interval if there are none.
func computeRho(alpha, grad, y []float64, C float64) float64 {
	upper, lower := math.Inf(1), math.Inf(-1)
	var sumFree float64
	var numFree int
	for t := range alpha {
		yG := y[t] * grad[t]
		switch {
		case alpha[t] >= C:
			if y[t] < 0 {
				upper = min(upper, yG)
			} else {
				lower = max(lower, yG)
			}
		case alpha[t] <= 0:
			if y[t] > 0 {
				upper = min(upper, yG)
			} else {
				lower = max(lower, yG)
			}
		default:
			numFree++
			sumFree += yG
		}
	}
	if numFree > 0 {
		return sumFree / float64(numFree)
	}
	return (upper + lower) / 2
}

// DecisionFunction returns the signed distance-like score, positive for the class 1.
func (s *SVC) DecisionFunction(x []float64) float64 {
	if len(s.SupportVectors) > 0 {
		ml.CheckDim("svc", x, len(s.SupportVectors[0]))
	}
	model := dualModel{supportVectors: s.SupportVectors, coefs: s.Coefs, rho: s.Rho}
	return model.decision(x, s.GammaValue)
}

// PredictProba implements ml.Classifier.
func (s *SVC) PredictProba(x []float64) float64 {
	return sigmoidPredict(s.DecisionFunction(x), s.ProbA, s.ProbB)
}

// sigmoidPredict returns 1/(1+exp(A*f+B)), computed stably.
func sigmoidPredict(f, A, B float64) float64 {
	fApB := f*A + B
	if fApB >= 0 {
		e := math.Exp(-fApB)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(fApB))
}

// fitSigmoid fits Platt's sigmoid P(y=1|f) = 1/(1+exp(A*f+B)) with regularized targets,
// using Newton's method with backtracking (Lin, Lin and Weng, 2007).
func fitSigmoid(decisions []float64, y []int) (A, B float64) {
	var prior1, prior0 float64
	for _, label := range y {
		if label == 1 {
			prior1++
		} else {
			prior0++
		}
	}
	const (
		maxIter  = 100
		minStep  = 1e-10
		sigma    = 1e-12
		epsilon  = 1e-5
		decrease = 1e-4
	)
	hiTarget := (prior1 + 1) / (prior1 + 2)
	loTarget := 1 / (prior0 + 2)
	targets := make([]float64, len(y))
	for ii, label := range y {
		if label == 1 {
			targets[ii] = hiTarget
		} else {
			targets[ii] = loTarget
		}
	}
	objective := func(A, B float64) (f float64) {
		for ii, d := range decisions {
			fApB := d*A + B
			if fApB >= 0 {
				f += targets[ii]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				f += (targets[ii]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return
	}

	A, B = 0, math.Log((prior0+1)/(prior1+1))
	fval := objective(A, B)
	for iter := range maxIter {
		h11, h22, h21, g1, g2 := sigma, sigma, 0.0, 0.0, 0.0
		for ii, d := range decisions {
			fApB := d*A + B
			var p, q float64
			if fApB >= 0 {
				e := math.Exp(-fApB)
				p, q = e/(1+e), 1/(1+e)
			} else {
				e := math.Exp(fApB)
				p, q = 1/(1+e), e/(1+e)
			}
			d2 := p * q
			h11 += d * d * d2
			h22 += d2
			h21 += d * d2
			d1 := targets[ii] - p
			g1 += d * d1
			g2 += d1
		}
		if math.Abs(g1) < epsilon && math.Abs(g2) < epsilon {
			break
		}
		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB
		step := 1.0
		for step >= minStep {
			newA, newB := A+step*dA, B+step*dB
			newF := objective(newA, newB)
			if newF < fval+decrease*step*gd {
				A, B, fval = newA, newB, newF
				break
			}
			step /= 2
		}
		if step < minStep {
			klog.V(2).Infof("svc: Platt scaling line search failed at iteration %d", iter)
			break
		}
	}
	return A, B
}
