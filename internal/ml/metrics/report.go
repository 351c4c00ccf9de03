package metrics

import (
	"encoding/csv"
	"github.com/pkg/errors"
	"io"
	"strconv"
)

// ReportRow is one row of a classification report.
type ReportRow struct {
	Name                  string
	Precision, Recall, F1 float64
	Support               int
}

// ClassificationReport returns per-class precision, recall, F1 and support for the classes
// "0" and "1", followed by the "accuracy", "macro avg" and "weighted avg" rows.
func ClassificationReport(labels, predictions []int) ([]ReportRow, error) {
	if len(labels) != len(predictions) {
		return nil, errors.Errorf("%d labels but %d predictions", len(labels), len(predictions))
	}
	if len(labels) == 0 {
		return nil, errors.New("no examples for the classification report")
	}
	cm := NewConfusionMatrix(labels, predictions)

	// Class 0 is the positive class of the flipped matrix.
	flipped := ConfusionMatrix{
		TrueNegatives:  cm.TruePositives,
		FalsePositives: cm.FalseNegatives,
		FalseNegatives: cm.FalsePositives,
		TruePositives:  cm.TrueNegatives,
	}
	rows := []ReportRow{
		{Name: "0", Precision: flipped.Precision(), Recall: flipped.Recall(), F1: flipped.F1(),
			Support: cm.TrueNegatives + cm.FalsePositives},
		{Name: "1", Precision: cm.Precision(), Recall: cm.Recall(), F1: cm.F1(),
			Support: cm.TruePositives + cm.FalseNegatives},
	}
	total := cm.Total()
	accuracy := cm.Accuracy()
	macro := ReportRow{Name: "macro avg", Support: total}
	weighted := ReportRow{Name: "weighted avg", Support: total}
	for _, row := range rows {
		macro.Precision += row.Precision / 2
		macro.Recall += row.Recall / 2
		macro.F1 += row.F1 / 2
		w := float64(row.Support) / float64(total)
		weighted.Precision += row.Precision * w
		weighted.Recall += row.Recall * w
		weighted.F1 += row.F1 * w
	}
	rows = append(rows,
		ReportRow{Name: "accuracy", Precision: accuracy, Recall: accuracy, F1: accuracy, Support: total},
		macro, weighted)
	return rows, nil
}

// WriteReportCSV writes the report rows as CSV, with a header.
func WriteReportCSV(w io.Writer, rows []ReportRow) error {
	cw := csv.NewWriter(w)
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	records := [][]string{{"", "precision", "recall", "f1-score", "support"}}
	for _, row := range rows {
		records = append(records, []string{
			row.Name, format(row.Precision), format(row.Recall), format(row.F1), strconv.Itoa(row.Support),
		})
	}
	if err := cw.WriteAll(records); err != nil {
		return errors.Wrap(err, "failed to write classification report")
	}
	return nil
}
