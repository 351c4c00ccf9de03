package dataset

import (
	"encoding/csv"
	"github.com/janpfeifer/screenGo/internal/features"
	"github.com/janpfeifer/screenGo/internal/questionnaire"
	"github.com/pkg/errors"
	"io"
	"os"
	"strconv"
)

// ConcernAnswer is the answer of each field that indicates a concern: the absence of eye
// contact, name response, pointing, pretend play or gestures, and the presence of the other
// behaviors.
var ConcernAnswer = [questionnaire.NumFields]int{
	questionnaire.EyeContact:          0,
	questionnaire.RespondsName:        0,
	questionnaire.PointsToObjects:     0,
	questionnaire.PretendPlay:         0,
	questionnaire.RepetitiveBehaviour: 1,
	questionnaire.SensorySensitivity:  1,
	questionnaire.PrefersAlone:        1,
	questionnaire.Gestures:            0,
	questionnaire.DelayedSpeech:       1,
	questionnaire.RestrictedInterests: 1,
}

// Probabilities of each answer being a concern, for each class of the synthetic dataset.
const (
	syntheticConcernNegative = 0.15
	syntheticConcernPositive = 0.75
)

// Synthetic generates a labeled table of n rows, for tests and demos: 2 out of every 5 rows
// are positive, and each answer indicates a concern (see ConcernAnswer) with a probability
// that depends on the label.
func Synthetic(n int, seed uint64) *Table {
	rng := NewRNG(seed)
	table := &Table{FeatureNames: features.Names()}
	ids, err := features.Indices(table.FeatureNames)
	if err != nil {
		panic(err) // Default names are always known.
	}
	for ii := range n {
		label := 0
		pConcern := syntheticConcernNegative
		if ii%5 < 2 {
			label = 1
			pConcern = syntheticConcernPositive
		}
		var record questionnaire.Record
		for field := range questionnaire.NumFields {
			value := ConcernAnswer[field]
			if rng.Float64() >= pConcern {
				value = 1 - value
			}
			record[field] = value
		}
		table.Records = append(table.Records, record)
		table.X = append(table.X, features.VectorFromIds(ids, features.Derive(record)))
		table.Y = append(table.Y, label)
	}
	return table
}

// Write the raw answers and the label as CSV, in the format accepted by Read.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(questionnaire.Names(), LabelColumn)); err != nil {
		return errors.Wrap(err, "failed to write CSV header")
	}
	row := make([]string, questionnaire.NumFields+1)
	for ii, record := range t.Records {
		for field, value := range record {
			row[field] = strconv.Itoa(value)
		}
		row[questionnaire.NumFields] = strconv.Itoa(t.Y[ii])
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "failed to write CSV row %d", ii)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to write CSV")
}

// Save writes the table to path, see Write.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create dataset %s", path)
	}
	if err = t.Write(f); err != nil {
		_ = f.Close()
		return errors.WithMessagef(err, "dataset %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close dataset %s", path)
}
