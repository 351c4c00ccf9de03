// Package calibration remaps classifier probabilities with isotonic regression, fitted on
// cross-validation folds so the calibrator never sees predictions on the examples the
// classifier was trained on.
package calibration

import (
	"cmp"
	"github.com/pkg/errors"
	"slices"
	"sort"
)

// Isotonic is a non-decreasing, piecewise linear function fitted with the pool adjacent
// violators algorithm (PAV). Inputs outside the fitted range are clipped to the end values.
type Isotonic struct {
	// X are the distinct fitted inputs, sorted, and Y the fitted values at each of them.
	X, Y []float64
}

// Fit the isotonic regression of y on x. Repeated x values are merged into their mean y.
func (iso *Isotonic) Fit(x, y []float64) error {
	if len(x) == 0 {
		return errors.New("isotonic regression: no examples")
	}
	if len(x) != len(y) {
		return errors.Errorf("isotonic regression: %d inputs but %d targets", len(x), len(y))
	}
	order := make([]int, len(x))
	for ii := range order {
		order[ii] = ii
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(x[a], x[b]) })

	// Merge ties into weighted points.
	type point struct{ x, sumY, weight float64 }
	points := make([]point, 0, len(x))
	for _, idx := range order {
		if n := len(points); n > 0 && points[n-1].x == x[idx] {
			points[n-1].sumY += y[idx]
			points[n-1].weight++
			continue
		}
		points = append(points, point{x: x[idx], sumY: y[idx], weight: 1})
	}

	// Pool adjacent violators: blocks of consecutive points sharing their weighted mean.
	type block struct {
		sumY, weight float64
		end          int // Exclusive index in points.
	}
	blocks := make([]block, 0, len(points))
	for ii, p := range points {
		blocks = append(blocks, block{sumY: p.sumY, weight: p.weight, end: ii + 1})
		for len(blocks) > 1 {
			last, prev := blocks[len(blocks)-1], blocks[len(blocks)-2]
			if prev.sumY/prev.weight <= last.sumY/last.weight {
				break
			}
			blocks = blocks[:len(blocks)-1]
			blocks[len(blocks)-1] = block{sumY: prev.sumY + last.sumY, weight: prev.weight + last.weight, end: last.end}
		}
	}

	iso.X = make([]float64, len(points))
	iso.Y = make([]float64, len(points))
	start := 0
	for _, b := range blocks {
		mean := b.sumY / b.weight
		for ii := start; ii < b.end; ii++ {
			iso.X[ii] = points[ii].x
			iso.Y[ii] = mean
		}
		start = b.end
	}
	return nil
}

// Predict interpolates linearly between the fitted points.
func (iso *Isotonic) Predict(x float64) float64 {
	n := len(iso.X)
	if x <= iso.X[0] {
		return iso.Y[0]
	}
	if x >= iso.X[n-1] {
		return iso.Y[n-1]
	}
	// First index with X >= x, 1 <= hi <= n-1.
	hi := sort.SearchFloat64s(iso.X, x)
	if iso.X[hi] == x {
		return iso.Y[hi]
	}
	lo := hi - 1
	ratio := (x - iso.X[lo]) / (iso.X[hi] - iso.X[lo])
	return iso.Y[lo] + ratio*(iso.Y[hi]-iso.Y[lo])
}
