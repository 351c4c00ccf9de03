// Package metrics computes the evaluation metrics of a binary classifier on a held-out set.
//
// Precision, recall and F1 are computed for the positive class, and are 0 when undefined
// (zero division).
package metrics

import (
	"cmp"
	"github.com/pkg/errors"
	"math"
	"slices"
)

// ConfusionMatrix counts of a binary classifier.
type ConfusionMatrix struct {
	TrueNegatives  int `json:"tn"`
	FalsePositives int `json:"fp"`
	FalseNegatives int `json:"fn"`
	TruePositives  int `json:"tp"`
}

// NewConfusionMatrix counts the predictions against the labels.
func NewConfusionMatrix(labels, predictions []int) (cm ConfusionMatrix) {
	for ii, label := range labels {
		switch {
		case label == 1 && predictions[ii] == 1:
			cm.TruePositives++
		case label == 1:
			cm.FalseNegatives++
		case predictions[ii] == 1:
			cm.FalsePositives++
		default:
			cm.TrueNegatives++
		}
	}
	return
}

// Total number of examples.
func (cm ConfusionMatrix) Total() int {
	return cm.TrueNegatives + cm.FalsePositives + cm.FalseNegatives + cm.TruePositives
}

func safeDiv(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// Accuracy is the fraction of correct predictions.
func (cm ConfusionMatrix) Accuracy() float64 {
	return safeDiv(cm.TruePositives+cm.TrueNegatives, cm.Total())
}

// Precision of the positive class.
func (cm ConfusionMatrix) Precision() float64 {
	return safeDiv(cm.TruePositives, cm.TruePositives+cm.FalsePositives)
}

// Recall of the positive class.
func (cm ConfusionMatrix) Recall() float64 {
	return safeDiv(cm.TruePositives, cm.TruePositives+cm.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (cm ConfusionMatrix) F1() float64 {
	return f1(cm.Precision(), cm.Recall())
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// Threshold returns the 0/1 predictions for the probabilities: 1 if p >= cutoff.
func Threshold(probs []float64, cutoff float64) []int {
	predictions := make([]int, len(probs))
	for ii, p := range probs {
		if p >= cutoff {
			predictions[ii] = 1
		}
	}
	return predictions
}

// ErrSingleClass is returned by ROCAUC when the labels have only one class.
var ErrSingleClass = errors.New("ROC AUC is undefined with only one class in the labels")

// ROCAUC returns the area under the ROC curve, computed as the normalized Mann-Whitney U
// statistic: the probability that a random positive scores higher than a random negative,
// counting ties as half.
func ROCAUC(labels []int, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, errors.Errorf("%d labels but %d scores", len(labels), len(scores))
	}
	order := make([]int, len(scores))
	for ii := range order {
		order[ii] = ii
	}
	slices.SortFunc(order, func(a, b int) int { return cmp.Compare(scores[a], scores[b]) })

	// Sum of the (average, for ties) ranks of the positives.
	var rankSum float64
	var positives int
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && scores[order[end]] == scores[order[start]] {
			end++
		}
		avgRank := float64(start+end+1) / 2 // Ranks are 1-based: (start+1 + end)/2.
		for _, idx := range order[start:end] {
			if labels[idx] == 1 {
				rankSum += avgRank
				positives++
			}
		}
		start = end
	}
	negatives := len(labels) - positives
	if positives == 0 || negatives == 0 {
		return 0, ErrSingleClass
	}
	u := rankSum - float64(positives*(positives+1))/2
	return u / float64(positives*negatives), nil
}

// ROCPoint is one point of the ROC curve.
type ROCPoint struct {
	FalsePositiveRate, TruePositiveRate, Threshold float64
}

// ROCCurve returns the points of the ROC curve, one per distinct score from the highest to
// the lowest, preceded by (0, 0) with an infinite threshold.
func ROCCurve(labels []int, scores []float64) ([]ROCPoint, error) {
	if len(labels) != len(scores) {
		return nil, errors.Errorf("%d labels but %d scores", len(labels), len(scores))
	}
	var positives, negatives int
	for _, label := range labels {
		if label == 1 {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return nil, ErrSingleClass
	}
	order := make([]int, len(scores))
	for ii := range order {
		order[ii] = ii
	}
	slices.SortFunc(order, func(a, b int) int { return cmp.Compare(scores[b], scores[a]) })

	points := []ROCPoint{{Threshold: math.Inf(1)}}
	var tp, fp int
	for start := 0; start < len(order); {
		end := start
		for end < len(order) && scores[order[end]] == scores[order[start]] {
			if labels[order[end]] == 1 {
				tp++
			} else {
				fp++
			}
			end++
		}
		points = append(points, ROCPoint{
			FalsePositiveRate: float64(fp) / float64(negatives),
			TruePositiveRate:  float64(tp) / float64(positives),
			Threshold:         scores[order[start]],
		})
		start = end
	}
	return points, nil
}

// CalibrationBin is one bin of a reliability diagram.
type CalibrationBin struct {
	// MeanPredicted probability and FractionPositives of the examples in the bin.
	MeanPredicted, FractionPositives float64
	Count                            int
}

// CalibrationCurve groups the probabilities into numBins uniform bins over [0, 1], and
// returns the non-empty ones in order.
func CalibrationCurve(labels []int, probs []float64, numBins int) ([]CalibrationBin, error) {
	if numBins <= 0 {
		return nil, errors.Errorf("number of bins must be positive, got %d", numBins)
	}
	if len(labels) != len(probs) {
		return nil, errors.Errorf("%d labels but %d probabilities", len(labels), len(probs))
	}
	sumProbs := make([]float64, numBins)
	positives := make([]int, numBins)
	counts := make([]int, numBins)
	for ii, p := range probs {
		bin := min(numBins-1, max(0, int(p*float64(numBins))))
		sumProbs[bin] += p
		positives[bin] += labels[ii]
		counts[bin]++
	}
	var bins []CalibrationBin
	for bin, count := range counts {
		if count == 0 {
			continue
		}
		bins = append(bins, CalibrationBin{
			MeanPredicted:     sumProbs[bin] / float64(count),
			FractionPositives: float64(positives[bin]) / float64(count),
			Count:             count,
		})
	}
	return bins, nil
}
