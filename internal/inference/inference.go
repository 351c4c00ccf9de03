// Package inference serves predictions of a trained model bundle for single questionnaire
// records: the probability of ASD indicators, the label, the risk tier and an advisory
// message.
//
// A Service is created once with New, and is read-only afterward: it is safe for concurrent
// use. If the artifacts can't be loaded, the Service is still created but is unavailable:
// every Predict returns ErrUnavailable.
package inference

import (
	"context"
	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/screenGo/internal/artifacts"
	"github.com/janpfeifer/screenGo/internal/config"
	"github.com/janpfeifer/screenGo/internal/features"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/janpfeifer/screenGo/internal/ml/metrics"
	"github.com/janpfeifer/screenGo/internal/questionnaire"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"math"
	"path/filepath"
)

var (
	// ErrUnavailable is returned when the model artifacts were not loaded.
	ErrUnavailable = errors.New("model not available")

	// ErrInvalidInput is returned for records with answers other than 0 or 1.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal is returned when the model can't be evaluated, e.g.: the persisted feature
	// list doesn't match the features known by this binary, or the model fails.
	ErrInternal = errors.New("internal error")
)

// Prediction for one questionnaire record.
type Prediction struct {
	// Probability of ASD indicators, calibrated, in [0, 1].
	Probability float64

	// Label is 1 if Probability >= Thresholds.LabelCutoff.
	Label int

	Tier           Tier
	Explanation    string
	Recommendation string

	// TopFeatures are the most important features of the model, if the importances
	// were available at startup. They are the same for every prediction.
	TopFeatures []string
}

// Service evaluates the trained model. Create it with New or NewFromBundle.
type Service struct {
	thresholds config.Thresholds

	// loadErr is set if the service is unavailable.
	loadErr error

	model        ml.Classifier
	featureNames []string

	// ids of the persisted features, or idsErr if some of them are unknown.
	ids    []features.Id
	idsErr error

	// Optional capabilities, nil if not available.
	metrics     *metrics.Record
	topFeatures []string
}

// New loads the artifacts in cfg.Models. It never fails: if the model bundle can't be
// loaded, the error is logged and the returned Service is unavailable. Feature importances
// and metrics are optional.
func New(cfg *config.Serving) *Service {
	bundle, err := artifacts.Load(cfg.Models)
	if err != nil {
		klog.Errorf("Model artifacts in %q not loaded, service unavailable: %+v", cfg.Models, err)
		return &Service{thresholds: cfg.Thresholds, loadErr: err}
	}
	s := NewFromBundle(bundle, cfg.Thresholds)

	if s.metrics, err = artifacts.LoadMetrics(cfg.Models); err != nil {
		klog.Warningf("Metrics not available: %v", err)
		s.metrics = nil
	}
	importances, err := artifacts.LoadImportances(filepath.Join(cfg.Models, artifacts.ImportancesFile))
	if err != nil {
		klog.Warningf("Feature importances not available: %v", err)
	} else {
		artifacts.SortImportances(importances)
		for _, imp := range importances[:min(cfg.NumTopFeatures, len(importances))] {
			s.topFeatures = append(s.topFeatures, imp.Feature)
		}
	}
	klog.Infof("Model loaded from %q: %s", cfg.Models, s.model)
	return s
}

// NewFromBundle creates a Service for an already loaded bundle, without the optional
// capabilities.
func NewFromBundle(bundle *artifacts.Bundle, thresholds config.Thresholds) *Service {
	s := &Service{
		thresholds:   thresholds,
		model:        bundle.Model,
		featureNames: bundle.FeatureNames,
	}
	s.ids, s.idsErr = features.Indices(bundle.FeatureNames)
	if s.idsErr != nil {
		klog.Errorf("Persisted features don't match the known ones, predictions will fail: %v", s.idsErr)
	}
	return s
}

// Available returns whether the model was loaded.
func (s *Service) Available() bool {
	return s.loadErr == nil
}

// Thresholds used by the service.
func (s *Service) Thresholds() config.Thresholds {
	return s.thresholds
}

// Metrics returns the metrics of the training run of the loaded model.
// It returns ErrUnavailable if either the model or the metrics were not loaded.
func (s *Service) Metrics() (*metrics.Record, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}
	if s.metrics == nil {
		return nil, errors.Wrap(ErrUnavailable, "metrics not loaded")
	}
	return s.metrics, nil
}

// TopFeatures returns the most important features of the model, or nil if not known.
func (s *Service) TopFeatures() []string {
	return s.topFeatures
}

// Predict the probability, label and risk tier of the record.
func (s *Service) Predict(ctx context.Context, record questionnaire.Record) (*Prediction, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := record.Validate(); err != nil {
		return nil, errors.Wrapf(ErrInvalidInput, "%v", err)
	}
	if s.idsErr != nil {
		return nil, errors.Wrapf(ErrInternal, "%v", s.idsErr)
	}
	x := features.VectorFromIds(s.ids, features.Derive(record))

	var prob float64
	err := exceptions.TryCatch[error](func() {
		prob = s.model.PredictProba(x)
	})
	if err == nil && (math.IsNaN(prob) || prob < 0 || prob > 1) {
		err = errors.Errorf("model returned invalid probability %g", prob)
	}
	if err != nil {
		klog.Errorf("Failed to evaluate model %s: %+v", s.model, err)
		return nil, errors.Wrapf(ErrInternal, "%v", err)
	}

	tier := RiskTier(prob, s.thresholds)
	p := &Prediction{
		Probability:    prob,
		Tier:           tier,
		Explanation:    tier.Explanation(),
		Recommendation: tier.Recommendation(),
		TopFeatures:    s.topFeatures,
	}
	if prob >= s.thresholds.LabelCutoff {
		p.Label = 1
	}
	klog.V(2).Infof("Prediction: p=%.4f, tier=%s", prob, tier)
	return p, nil
}
