// Package features derives the model features from the questionnaire answers: the ten raw
// answers plus four composite scores.
//
// Composite scores are never stored on their own: Derived is only created by Derive, and
// always recomputes them from the answers.
package features

import (
	"fmt"
	"github.com/janpfeifer/screenGo/internal/questionnaire"
	"github.com/pkg/errors"
	"log"
)

// Id represent an enum of features.
type Id uint8

// Setter returns the value of a feature for the derived answers.
type Setter func(d *Derived) int

const (
	// The first ten features are the raw answers, in questionnaire order.
	IdEyeContact Id = iota
	IdRespondsName
	IdPointsToObjects
	IdPretendPlay
	IdRepetitiveBehaviour
	IdSensorySensitivity
	IdPrefersAlone
	IdGestures
	IdDelayedSpeech
	IdRestrictedInterests

	// IdSocialScore = eye_contact + responds_name + points_to_objects + gestures.
	IdSocialScore

	// IdCommunicationScore = pretend_play + delayed_speech + responds_name.
	IdCommunicationScore

	// IdSensoryScore = sensory_sensitivity + repetitive_behaviour + restricted_interests.
	IdSensoryScore

	// IdOverallRiskScore = social + communication + sensory + prefers_alone.
	IdOverallRiskScore

	// NumFeatures defined -- this must always be the last enum.
	NumFeatures
)

// Spec includes the feature name, its setter and its range of values.
type Spec struct {
	Id     Id
	Name   string
	Setter Setter

	// Max value the feature can take. Min is always 0.
	Max int
}

func raw(f questionnaire.Field) Setter {
	return func(d *Derived) int { return d.Record.Get(f) }
}

var (
	// Specs enumerates in order the features. It is also the default feature order used
	// for training.
	Specs = [NumFeatures]Spec{
		{IdEyeContact, "eye_contact", raw(questionnaire.EyeContact), 1},
		{IdRespondsName, "responds_name", raw(questionnaire.RespondsName), 1},
		{IdPointsToObjects, "points_to_objects", raw(questionnaire.PointsToObjects), 1},
		{IdPretendPlay, "pretend_play", raw(questionnaire.PretendPlay), 1},
		{IdRepetitiveBehaviour, "repetitive_behaviour", raw(questionnaire.RepetitiveBehaviour), 1},
		{IdSensorySensitivity, "sensory_sensitivity", raw(questionnaire.SensorySensitivity), 1},
		{IdPrefersAlone, "prefers_alone", raw(questionnaire.PrefersAlone), 1},
		{IdGestures, "gestures", raw(questionnaire.Gestures), 1},
		{IdDelayedSpeech, "delayed_speech", raw(questionnaire.DelayedSpeech), 1},
		{IdRestrictedInterests, "restricted_interests", raw(questionnaire.RestrictedInterests), 1},

		{IdSocialScore, "social_score", func(d *Derived) int { return d.Social }, 4},
		{IdCommunicationScore, "communication_score", func(d *Derived) int { return d.Communication }, 3},
		{IdSensoryScore, "sensory_score", func(d *Derived) int { return d.Sensory }, 3},
		{IdOverallRiskScore, "overall_risk_score", func(d *Derived) int { return d.OverallRisk }, 11},
	}

	byName = make(map[string]Id, NumFeatures)
)

func init() {
	for ii := range Specs {
		if Specs[ii].Id != Id(ii) {
			log.Fatalf("features.Specs index %d for %s doesn't match constant.", ii, Specs[ii].Name)
		}
		if ii < int(questionnaire.NumFields) && Specs[ii].Name != questionnaire.Field(ii).String() {
			log.Fatalf("features.Specs %q doesn't match questionnaire field %q", Specs[ii].Name, questionnaire.Field(ii))
		}
		byName[Specs[ii].Name] = Id(ii)
	}
}

// String returns the feature name.
func (id Id) String() string {
	if id >= NumFeatures {
		return fmt.Sprintf("Id(%d)", uint8(id))
	}
	return Specs[id].Name
}

// Names returns the default ordered list of feature names.
func Names() []string {
	names := make([]string, NumFeatures)
	for ii, spec := range Specs {
		names[ii] = spec.Name
	}
	return names
}

// Derived holds a questionnaire.Record and its composite scores.
// Create it with Derive.
type Derived struct {
	Record questionnaire.Record

	Social, Communication, Sensory, OverallRisk int
}

// Derive computes the composite scores for the record.
func Derive(r questionnaire.Record) Derived {
	d := Derived{Record: r}
	d.Social = r.Get(questionnaire.EyeContact) + r.Get(questionnaire.RespondsName) +
		r.Get(questionnaire.PointsToObjects) + r.Get(questionnaire.Gestures)
	d.Communication = r.Get(questionnaire.PretendPlay) + r.Get(questionnaire.DelayedSpeech) +
		r.Get(questionnaire.RespondsName)
	d.Sensory = r.Get(questionnaire.SensorySensitivity) + r.Get(questionnaire.RepetitiveBehaviour) +
		r.Get(questionnaire.RestrictedInterests)
	d.OverallRisk = d.Social + d.Communication + d.Sensory + r.Get(questionnaire.PrefersAlone)
	return d
}

// Value returns the value of one feature.
func (d *Derived) Value(id Id) int {
	return Specs[id].Setter(d)
}

// ErrUnknownFeature is returned by Vector and Indices for names not in Specs.
var ErrUnknownFeature = errors.New("unknown feature")

// Indices maps an ordered list of feature names to their ids.
func Indices(names []string) ([]Id, error) {
	ids := make([]Id, len(names))
	seen := make(map[Id]bool, len(names))
	for ii, name := range names {
		id, found := byName[name]
		if !found {
			return nil, errors.Wrapf(ErrUnknownFeature, "feature #%d %q", ii, name)
		}
		if seen[id] {
			return nil, errors.Errorf("feature %q listed twice", name)
		}
		seen[id] = true
		ids[ii] = id
	}
	return ids, nil
}

// Vector builds the feature vector for d, in the order given by names.
func Vector(names []string, d Derived) ([]float64, error) {
	ids, err := Indices(names)
	if err != nil {
		return nil, err
	}
	return VectorFromIds(ids, d), nil
}

// VectorFromIds is like Vector, but takes the pre-computed ids (see Indices).
func VectorFromIds(ids []Id, d Derived) []float64 {
	vec := make([]float64, len(ids))
	for ii, id := range ids {
		vec[ii] = float64(d.Value(id))
	}
	return vec
}
