// Package ensemble implements soft voting: the probability is the (optionally weighted) mean
// of the members' probabilities.
package ensemble

import (
	"context"
	"encoding/gob"
	"fmt"
	"github.com/janpfeifer/screenGo/internal/ml"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
	"runtime"
	"strings"
	"time"
)

func init() {
	gob.Register(&Voting{})
}

// Voting is a soft voting ensemble. It implements ml.Estimator.
type Voting struct {
	// Names of the members, used in logs and reports.
	Names   []string
	Members []ml.Estimator

	// Weights of each member. If empty, members are weighted equally.
	Weights []float64

	// Seed is the base seed: member i (if it implements ml.Seeder) is seeded with Seed+i.
	Seed uint64
}

var _ ml.Estimator = (*Voting)(nil)

// NewVoting creates the ensemble from the estimators configuration strings, see ml.New.
func NewVoting(configs []string, seed uint64) (*Voting, error) {
	if len(configs) == 0 {
		return nil, errors.New("voting ensemble needs at least one member")
	}
	v := &Voting{Seed: seed}
	for _, config := range configs {
		member, err := ml.New(config)
		if err != nil {
			return nil, err
		}
		name, _, _ := strings.Cut(config, ":")
		v.Names = append(v.Names, name)
		v.Members = append(v.Members, member)
	}
	return v, nil
}

// String implements ml.Classifier.
func (v *Voting) String() string {
	parts := make([]string, len(v.Members))
	for ii, member := range v.Members {
		parts[ii] = member.String()
	}
	return fmt.Sprintf("voting(%s)", strings.Join(parts, ", "))
}

// Clone implements ml.Estimator.
func (v *Voting) Clone() ml.Estimator {
	clone := &Voting{
		Names:   v.Names,
		Members: make([]ml.Estimator, len(v.Members)),
		Weights: v.Weights,
		Seed:    v.Seed,
	}
	for ii, member := range v.Members {
		clone.Members[ii] = member.Clone()
	}
	return clone
}

// seedMembers sets each member's seed, looking through wrappers that expose their model.
func (v *Voting) seedMembers() {
	for ii, member := range v.Members {
		if seeder, ok := unwrap(member).(ml.Seeder); ok {
			seeder.SetSeed(v.Seed + uint64(ii))
		}
	}
}

// unwrap returns the inner model of wrappers (like a scaler pipeline) that implement
// `Unwrap() ml.Estimator`.
func unwrap(e ml.Estimator) ml.Estimator {
	for {
		w, ok := e.(interface{ Unwrap() ml.Estimator })
		if !ok {
			return e
		}
		e = w.Unwrap()
	}
}

func (v *Voting) memberName(ii int) string {
	if ii < len(v.Names) {
		return v.Names[ii]
	}
	return v.Members[ii].String()
}

// Fit implements ml.Estimator. Members are fitted concurrently.
func (v *Voting) Fit(ctx context.Context, x [][]float64, y []int) error {
	if len(v.Members) == 0 {
		return errors.New("voting ensemble has no members")
	}
	if len(v.Weights) > 0 && len(v.Weights) != len(v.Members) {
		return errors.Errorf("voting ensemble has %d members but %d weights", len(v.Members), len(v.Weights))
	}
	v.seedMembers()
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for ii, member := range v.Members {
		g.Go(func() error {
			start := time.Now()
			if err := member.Fit(gCtx, x, y); err != nil {
				return errors.WithMessagef(err, "fitting voting member #%d (%s)", ii, v.memberName(ii))
			}
			klog.V(1).Infof("voting: member %s fitted in %s", v.memberName(ii), time.Since(start))
			return nil
		})
	}
	return g.Wait()
}

// PredictProba implements ml.Classifier.
func (v *Voting) PredictProba(x []float64) float64 {
	var sum, totalWeight float64
	for ii, member := range v.Members {
		weight := 1.0
		if len(v.Weights) > 0 {
			weight = v.Weights[ii]
		}
		sum += weight * member.PredictProba(x)
		totalWeight += weight
	}
	return ml.Clip(sum / totalWeight)
}

// MemberProbas returns the probability of each member, in order.
func (v *Voting) MemberProbas(x []float64) []float64 {
	probs := make([]float64, len(v.Members))
	for ii, member := range v.Members {
		probs[ii] = member.PredictProba(x)
	}
	return probs
}
