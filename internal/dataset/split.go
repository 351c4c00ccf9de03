package dataset

import (
	"github.com/pkg/errors"
	"math"
	"math/rand/v2"
	"slices"
)

// NewRNG returns the random number generator used for all seeded operations.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0))
}

func checkLabels(y []int) error {
	for ii, label := range y {
		if label != 0 && label != 1 {
			return errors.Errorf("row %d: label must be 0 or 1, got %d", ii, label)
		}
	}
	return nil
}

// byClass returns the shuffled indices of each class (0 and 1).
func byClass(y []int, rng *rand.Rand) (classes [2][]int) {
	for ii, label := range y {
		classes[label] = append(classes[label], ii)
	}
	for c := range classes {
		rng.Shuffle(len(classes[c]), func(i, j int) {
			classes[c][i], classes[c][j] = classes[c][j], classes[c][i]
		})
	}
	return
}

// StratifiedSplit splits the row indices into train and test sets, keeping the
// proportion of each class. testFraction must be in (0, 1). Both returned slices are sorted.
func StratifiedSplit(y []int, testFraction float64, seed uint64) (train, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, errors.Errorf("test fraction must be in (0, 1), got %g", testFraction)
	}
	if err = checkLabels(y); err != nil {
		return nil, nil, err
	}
	classes := byClass(y, NewRNG(seed))
	for c, indices := range classes {
		if len(indices) < 2 {
			return nil, nil, errors.Errorf("class %d has %d rows, at least 2 are needed for a stratified split", c, len(indices))
		}
		numTest := int(math.Round(testFraction * float64(len(indices))))
		numTest = max(1, min(numTest, len(indices)-1))
		test = append(test, indices[:numTest]...)
		train = append(train, indices[numTest:]...)
	}
	slices.Sort(train)
	slices.Sort(test)
	return
}

// StratifiedKFold returns k folds of held-out row indices, each with about the same
// proportion of classes. Every row is held-out in exactly one fold. Each class must have
// at least k rows.
func StratifiedKFold(y []int, k int, seed uint64) (folds [][]int, err error) {
	if k < 2 {
		return nil, errors.Errorf("number of folds must be at least 2, got %d", k)
	}
	if err = checkLabels(y); err != nil {
		return nil, err
	}
	classes := byClass(y, NewRNG(seed))
	for c, indices := range classes {
		if len(indices) < k {
			return nil, errors.Errorf("class %d has %d rows, fewer than the %d folds", c, len(indices), k)
		}
	}
	folds = make([][]int, k)
	next := 0
	for _, indices := range classes {
		for _, idx := range indices {
			folds[next] = append(folds[next], idx)
			next = (next + 1) % k
		}
	}
	for _, fold := range folds {
		slices.Sort(fold)
	}
	return folds, nil
}

// Complement returns the indices in [0, n) not in heldOut, sorted.
func Complement(n int, heldOut []int) []int {
	in := make([]bool, n)
	for _, idx := range heldOut {
		in[idx] = true
	}
	out := make([]int, 0, n-len(heldOut))
	for ii := range n {
		if !in[ii] {
			out = append(out, ii)
		}
	}
	return out
}
