// Package questionnaire defines the ten caregiver-observed behaviors of the screening
// questionnaire, the prompts shown for each of them, and the parsing of answers.
package questionnaire

import (
	"fmt"
	"github.com/pkg/errors"
	"strconv"
	"strings"
)

// Field enumerates the questionnaire attributes, in canonical order.
type Field uint8

const (
	EyeContact Field = iota
	RespondsName
	PointsToObjects
	PretendPlay
	RepetitiveBehaviour
	SensorySensitivity
	PrefersAlone
	Gestures
	DelayedSpeech
	RestrictedInterests

	// NumFields must always be the last enum.
	NumFields
)

// Spec holds the column name and caregiver prompt of a Field.
type Spec struct {
	Field Field
	Name  string
	Text  string
}

// Specs lists all fields in canonical order. Spec.Field matches the index.
var Specs = [NumFields]Spec{
	{EyeContact, "eye_contact", "Does the child make eye contact?"},
	{RespondsName, "responds_name", "Does the child respond to their name?"},
	{PointsToObjects, "points_to_objects", "Does the child point to objects of interest?"},
	{PretendPlay, "pretend_play", "Does the child engage in pretend play?"},
	{RepetitiveBehaviour, "repetitive_behaviour", "Does the child show repetitive behaviors?"},
	{SensorySensitivity, "sensory_sensitivity", "Is the child sensitive to certain sounds or textures?"},
	{PrefersAlone, "prefers_alone", "Does the child prefer to play alone?"},
	{Gestures, "gestures", "Does the child use gestures while communicating?"},
	{DelayedSpeech, "delayed_speech", "Is there any delay in speech development?"},
	{RestrictedInterests, "restricted_interests", "Does the child show restricted or fixed interests?"},
}

func init() {
	for ii, spec := range Specs {
		if spec.Field != Field(ii) {
			panic(fmt.Sprintf("questionnaire.Specs index %d for %q doesn't match constant", ii, spec.Name))
		}
	}
}

// String returns the column name of the field.
func (f Field) String() string {
	if f >= NumFields {
		return fmt.Sprintf("Field(%d)", uint8(f))
	}
	return Specs[f].Name
}

// FieldByName returns the Field with the given column name.
func FieldByName(name string) (Field, bool) {
	for _, spec := range Specs {
		if spec.Name == name {
			return spec.Field, true
		}
	}
	return NumFields, false
}

// Names returns the column names of all fields, in canonical order.
func Names() []string {
	names := make([]string, NumFields)
	for ii, spec := range Specs {
		names[ii] = spec.Name
	}
	return names
}

// Record is one set of answers. Values are expected to be 0 or 1, see Validate.
// It is a value type: copies can't affect the original.
type Record [NumFields]int

// Get returns the answer for the field.
func (r Record) Get(f Field) int { return r[f] }

// With returns a copy of the record with the field set to value.
func (r Record) With(f Field, value int) Record {
	r[f] = value
	return r
}

// ErrInvalidAnswer is returned (wrapped) by Validate.
var ErrInvalidAnswer = errors.New("answers must be 0 or 1")

// Validate checks all answers are in {0, 1}. The error names every offending field.
func (r Record) Validate() error {
	var bad []string
	for ii, v := range r {
		if v != 0 && v != 1 {
			bad = append(bad, fmt.Sprintf("%s=%d", Field(ii), v))
		}
	}
	if len(bad) > 0 {
		return errors.Wrapf(ErrInvalidAnswer, "invalid answers %s", strings.Join(bad, ", "))
	}
	return nil
}

// ParseAnswer converts a free-form answer to 0 or 1. Empty values count as "no".
// Unrecognized values are parsed as numbers, and any non-zero number counts as "yes".
func ParseAnswer(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "t", "1":
		return 1, nil
	case "no", "n", "false", "f", "0", "", "nan":
		return 0, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "can't interpret answer %q", s)
	}
	if f != 0 {
		return 1, nil
	}
	return 0, nil
}
