package artifacts

import (
	"cmp"
	"encoding/csv"
	"github.com/janpfeifer/screenGo/internal/ml/metrics"
	"github.com/pkg/errors"
	"io"
	"slices"
	"strconv"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// writeCSV writes the header and rows to path.
func writeCSV(path string, header []string, rows [][]string) error {
	return writeFile(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return errors.Wrap(err, "failed to write CSV header")
		}
		return errors.Wrap(cw.WriteAll(rows), "failed to write CSV rows")
	})
}

// Importance of one feature: the impurity-based importances of a random forest and of a
// gradient boosting model, and their mean.
type Importance struct {
	Feature string
	RF, GB  float64
	Mean    float64
}

// SortImportances sorts in decreasing order of mean importance, ties broken by name.
func SortImportances(importances []Importance) {
	slices.SortStableFunc(importances, func(a, b Importance) int {
		if c := cmp.Compare(b.Mean, a.Mean); c != 0 {
			return c
		}
		return cmp.Compare(a.Feature, b.Feature)
	})
}

// SaveImportances writes the importances, with columns "feature,rf_imp,gb_imp,mean_imp".
func SaveImportances(path string, importances []Importance) error {
	rows := make([][]string, len(importances))
	for ii, imp := range importances {
		rows[ii] = []string{imp.Feature, formatFloat(imp.RF), formatFloat(imp.GB), formatFloat(imp.Mean)}
	}
	return writeCSV(path, []string{"feature", "rf_imp", "gb_imp", "mean_imp"}, rows)
}

// LoadImportances reads a file written by SaveImportances. Only the "feature" and "mean_imp"
// columns are required. It wraps ErrNotFound if the file doesn't exist.
func LoadImportances(path string) ([]Importance, error) {
	file, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %q", path)
	}
	if len(records) == 0 {
		return nil, errors.Errorf("%q is empty", path)
	}
	columns := make(map[string]int)
	for ii, name := range records[0] {
		columns[name] = ii
	}
	featureCol, okFeature := columns["feature"]
	_, okMean := columns["mean_imp"]
	if !okFeature || !okMean {
		return nil, errors.Errorf("%q must have the columns \"feature\" and \"mean_imp\", got %q", path, records[0])
	}
	parse := func(record []string, lineNum int, name string) (float64, error) {
		col, found := columns[name]
		if !found {
			return 0, nil
		}
		value, err := strconv.ParseFloat(record[col], 64)
		if err != nil {
			return 0, errors.Wrapf(err, "%q line %d: invalid %s", path, lineNum, name)
		}
		return value, nil
	}
	importances := make([]Importance, 0, len(records)-1)
	for ii, record := range records[1:] {
		lineNum := ii + 2
		imp := Importance{Feature: record[featureCol]}
		if imp.Mean, err = parse(record, lineNum, "mean_imp"); err != nil {
			return nil, err
		}
		if imp.RF, err = parse(record, lineNum, "rf_imp"); err != nil {
			return nil, err
		}
		if imp.GB, err = parse(record, lineNum, "gb_imp"); err != nil {
			return nil, err
		}
		importances = append(importances, imp)
	}
	return importances, nil
}

// SamplePrediction is the prediction for one test example.
type SamplePrediction struct {
	Features    []float64
	Label       int
	Predicted   int
	Probability float64
}

// SaveSamplePredictions writes one row per prediction: the features (named by featureNames),
// followed by the columns "y_test,y_pred,y_prob".
func SaveSamplePredictions(path string, featureNames []string, predictions []SamplePrediction) error {
	header := append(slices.Clone(featureNames), "y_test", "y_pred", "y_prob")
	rows := make([][]string, len(predictions))
	for ii, p := range predictions {
		if len(p.Features) != len(featureNames) {
			return errors.Errorf("sample prediction #%d has %d features, but %d names were given",
				ii, len(p.Features), len(featureNames))
		}
		row := make([]string, 0, len(header))
		for _, v := range p.Features {
			row = append(row, formatFloat(v))
		}
		rows[ii] = append(row, strconv.Itoa(p.Label), strconv.Itoa(p.Predicted), formatFloat(p.Probability))
	}
	return writeCSV(path, header, rows)
}

// SaveROCCurve writes the points with columns "fpr,tpr,threshold".
func SaveROCCurve(path string, points []metrics.ROCPoint) error {
	rows := make([][]string, len(points))
	for ii, p := range points {
		rows[ii] = []string{formatFloat(p.FalsePositiveRate), formatFloat(p.TruePositiveRate), formatFloat(p.Threshold)}
	}
	return writeCSV(path, []string{"fpr", "tpr", "threshold"}, rows)
}

// SaveCalibrationCurve writes the bins with columns "mean_predicted,fraction_positives,count".
func SaveCalibrationCurve(path string, bins []metrics.CalibrationBin) error {
	rows := make([][]string, len(bins))
	for ii, b := range bins {
		rows[ii] = []string{formatFloat(b.MeanPredicted), formatFloat(b.FractionPositives), strconv.Itoa(b.Count)}
	}
	return writeCSV(path, []string{"mean_predicted", "fraction_positives", "count"}, rows)
}

// SaveReport writes the classification report.
func SaveReport(path string, rows []metrics.ReportRow) error {
	return writeFile(path, func(w io.Writer) error {
		return metrics.WriteReportCSV(w, rows)
	})
}
