// Package dataset loads the labeled questionnaire table used for training, and implements the
// stratified splits used by the training pipeline.
package dataset

import (
	"encoding/csv"
	"github.com/janpfeifer/screenGo/internal/features"
	"github.com/janpfeifer/screenGo/internal/questionnaire"
	"github.com/pkg/errors"
	"io"
	"k8s.io/klog/v2"
	"os"
	"strings"
)

// LabelColumn is the name of the column holding the 0/1 target.
const LabelColumn = "label"

var (
	// ErrMissingLabel is returned when the CSV has no LabelColumn.
	ErrMissingLabel = errors.New("dataset must contain a 'label' column (0/1)")

	// ErrEmpty is returned when the CSV has a header but no rows.
	ErrEmpty = errors.New("dataset has no rows")
)

// synonyms maps each questionnaire column to alternative names found in other versions of
// the dataset. They are tried in order after an exact match fails, first as exact names and
// then as substrings of the normalized header.
var synonyms = map[questionnaire.Field][]string{
	questionnaire.EyeContact:          {"eyecontact", "eye contact", "gaze"},
	questionnaire.RespondsName:        {"response_to_name", "name_response"},
	questionnaire.PointsToObjects:     {"points_objects", "pointing", "points", "point"},
	questionnaire.PretendPlay:         {"play_imaginative", "symbolic_play"},
	questionnaire.RepetitiveBehaviour: {"repetitive_behavior", "stereotyped_movements", "repetitive"},
	questionnaire.SensorySensitivity:  {"sensory"},
	questionnaire.PrefersAlone:        {"plays_alone", "solitary_play"},
	questionnaire.Gestures:            {"use_of_gestures"},
	questionnaire.DelayedSpeech:       {"speech_delay", "language_delay"},
	questionnaire.RestrictedInterests: {"fixated_interests"},
}

// Table is a labeled dataset, with the features already derived.
type Table struct {
	// FeatureNames is the order of the columns of X.
	FeatureNames []string

	Records []questionnaire.Record
	X       [][]float64
	Y       []int
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Y) }

// Positives returns the number of rows with label 1.
func (t *Table) Positives() (count int) {
	for _, y := range t.Y {
		count += y
	}
	return
}

// Subset returns the rows (X, Y) selected by indices. Rows are shared, not copied.
func (t *Table) Subset(indices []int) (x [][]float64, y []int) {
	x = make([][]float64, len(indices))
	y = make([]int, len(indices))
	for ii, idx := range indices {
		x[ii] = t.X[idx]
		y[ii] = t.Y[idx]
	}
	return
}

// Load reads the CSV file in path. See Read.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset %s", path)
	}
	defer func() { _ = f.Close() }()
	table, err := Read(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %s", path)
	}
	return table, nil
}

// Read parses a CSV with a header row. Headers are trimmed and lower-cased, questionnaire
// columns are matched by name or known synonyms (missing ones default to 0), and answers
// are parsed with questionnaire.ParseAnswer. The label column is required.
func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV header")
	}
	for ii := range header {
		header[ii] = strings.ToLower(strings.TrimSpace(header[ii]))
	}
	labelIdx := -1
	for ii, name := range header {
		if name == LabelColumn {
			labelIdx = ii
		}
	}
	if labelIdx == -1 {
		return nil, ErrMissingLabel
	}
	columns := mapColumns(header)

	table := &Table{FeatureNames: features.Names()}
	ids, err := features.Indices(table.FeatureNames)
	if err != nil {
		return nil, err
	}
	for lineNum := 2; ; lineNum++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read CSV line %d", lineNum)
		}
		var record questionnaire.Record
		for field, col := range columns {
			if col < 0 {
				continue
			}
			value, err := questionnaire.ParseAnswer(row[col])
			if err != nil {
				return nil, errors.WithMessagef(err, "line %d, column %q", lineNum, header[col])
			}
			record[field] = value
		}
		label, err := questionnaire.ParseAnswer(row[labelIdx])
		if err != nil {
			return nil, errors.WithMessagef(err, "line %d, column %q", lineNum, LabelColumn)
		}
		table.Records = append(table.Records, record)
		table.X = append(table.X, features.VectorFromIds(ids, features.Derive(record)))
		table.Y = append(table.Y, label)
	}
	if table.Len() == 0 {
		return nil, ErrEmpty
	}
	klog.V(1).Infof("Dataset: %d rows, %d positives", table.Len(), table.Positives())
	return table, nil
}

// mapColumns returns for each questionnaire field the index of its column in header, or -1
// if not present. Exact names are matched for all fields before any synonym is tried, so a
// synonym can't take the column of another field.
func mapColumns(header []string) (columns [questionnaire.NumFields]int) {
	used := make(map[int]bool)
	find := func(match func(col string) bool) int {
		for ii, col := range header {
			if !used[ii] && col != LabelColumn && match(col) {
				return ii
			}
		}
		return -1
	}
	passes := []func(field questionnaire.Field) int{
		func(field questionnaire.Field) int {
			return find(func(c string) bool { return c == field.String() })
		},
		func(field questionnaire.Field) int {
			for _, syn := range synonyms[field] {
				if col := find(func(c string) bool { return c == syn }); col != -1 {
					return col
				}
			}
			return -1
		},
		func(field questionnaire.Field) int {
			for _, syn := range synonyms[field] {
				if col := find(func(c string) bool { return strings.Contains(c, syn) }); col != -1 {
					return col
				}
			}
			return -1
		},
	}
	for ii := range columns {
		columns[ii] = -1
	}
	for _, pass := range passes {
		for ii := range columns {
			if columns[ii] != -1 {
				continue
			}
			if col := pass(questionnaire.Field(ii)); col != -1 {
				columns[ii] = col
				used[col] = true
			}
		}
	}
	for ii, col := range columns {
		name := questionnaire.Field(ii).String()
		if col == -1 {
			klog.Warningf("Dataset has no column for %q, assuming 0 for all rows", name)
		} else if header[col] != name {
			klog.V(1).Infof("Dataset column %q used as %q", header[col], name)
		}
	}
	return
}
