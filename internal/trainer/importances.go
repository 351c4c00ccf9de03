package trainer

import (
	"context"
	"fmt"
	"github.com/janpfeifer/screenGo/internal/artifacts"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
	"time"
)

// Importances fits a random forest and a gradient boosting model with numEstimators each, and
// returns their impurity-based feature importances and the mean of both, sorted by decreasing
// mean importance.
func Importances(ctx context.Context, featureNames []string, x [][]float64, y []int, numEstimators int, seed uint64) ([]artifacts.Importance, error) {
	start := time.Now()
	configs := [2]string{
		fmt.Sprintf("rf:n_estimators=%d,seed=%d", numEstimators, seed),
		fmt.Sprintf("gb:n_estimators=%d,learning_rate=0.1,seed=%d", numEstimators, seed),
	}
	var perModel [2][]float64
	g, gCtx := errgroup.WithContext(ctx)
	for ii, config := range configs {
		g.Go(func() error {
			model, err := ml.New(config)
			if err != nil {
				return err
			}
			if err = model.Fit(gCtx, x, y); err != nil {
				return errors.WithMessagef(err, "failed to fit %q for feature importances", config)
			}
			importancer, ok := model.(ml.Importancer)
			if !ok {
				return errors.Errorf("model %s doesn't provide feature importances", model)
			}
			perModel[ii] = importancer.FeatureImportances()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	importances := make([]artifacts.Importance, len(featureNames))
	for ii, name := range featureNames {
		if ii >= len(perModel[0]) || ii >= len(perModel[1]) {
			return nil, errors.Errorf("models returned %d and %d importances for %d features",
				len(perModel[0]), len(perModel[1]), len(featureNames))
		}
		importances[ii] = artifacts.Importance{
			Feature: name,
			RF:      perModel[0][ii],
			GB:      perModel[1][ii],
			Mean:    (perModel[0][ii] + perModel[1][ii]) / 2,
		}
	}
	artifacts.SortImportances(importances)
	klog.V(1).Infof("Feature importances computed in %s", time.Since(start))
	return importances, nil
}
