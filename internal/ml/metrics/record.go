package metrics

import (
	"encoding/json"
	"github.com/pkg/errors"
	"io"
	"time"
)

// Record holds the metrics computed once at training time on the held-out split.
type Record struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	ROCAUC    float64 `json:"roc_auc"`

	ConfusionMatrix ConfusionMatrix `json:"confusion_matrix"`
	Support         [2]int          `json:"support"`
	Cutoff          float64         `json:"cutoff"`

	RunID     string    `json:"run_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Evaluate computes the Record of the probabilities against the labels, with the positive
// prediction being p >= cutoff. If the labels have a single class, ROCAUC is left as 0.
func Evaluate(labels []int, probs []float64, cutoff float64) (*Record, error) {
	if len(labels) != len(probs) {
		return nil, errors.Errorf("%d labels but %d probabilities", len(labels), len(probs))
	}
	if len(labels) == 0 {
		return nil, errors.New("no examples to evaluate")
	}
	cm := NewConfusionMatrix(labels, Threshold(probs, cutoff))
	auc, err := ROCAUC(labels, probs)
	if err != nil {
		if !errors.Is(err, ErrSingleClass) {
			return nil, err
		}
		auc = 0
	}
	return &Record{
		Accuracy:        cm.Accuracy(),
		Precision:       cm.Precision(),
		Recall:          cm.Recall(),
		F1:              cm.F1(),
		ROCAUC:          auc,
		ConfusionMatrix: cm,
		Support:         [2]int{cm.TrueNegatives + cm.FalsePositives, cm.TruePositives + cm.FalseNegatives},
		Cutoff:          cutoff,
	}, nil
}

// WriteJSON writes the record as indented JSON.
func (r *Record) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(r), "failed to encode metrics")
}

// ReadRecord parses a record written with WriteJSON.
func ReadRecord(reader io.Reader) (*Record, error) {
	r := &Record{}
	if err := json.NewDecoder(reader).Decode(r); err != nil {
		return nil, errors.Wrap(err, "failed to parse metrics")
	}
	return r, nil
}
