// Package split partitions feature rows into reproducible train/test sets.
package split

import (
	"math"
	"math/rand"
	"sort"

	"pump-predictor/internal/common"
)

// Split holds one disjoint, exhaustive train/test partition.
type Split struct {
	TrainX [][]float64
	TrainY []int
	TestX  [][]float64
	TestY  []int

	// Source row ids of each side, ascending.
	TrainIndex []int
	TestIndex  []int
}

// Partition returns row ids for the train and test sides of n rows. The test
// side holds ceil(testFraction*n) rows; the same seed always yields the same
// partition. Both sides are sorted so temporal order survives inside each.
func Partition(n int, testFraction float64, seed int64) (train, test []int, err error) {
	if math.IsNaN(testFraction) || testFraction <= 0 || testFraction >= 1 {
		return nil, nil, common.ConfigError("split.Partition", "test_fraction", testFraction, "must be in (0,1)")
	}
	if n < 2 {
		return nil, nil, common.ConfigError("split.Partition", "rows", n, "need at least 2 rows for a train and a test set")
	}

	// The tolerance keeps 0.1*30 from rounding up to 4.
	nTest := int(math.Ceil(testFraction*float64(n) - 1e-9))
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= n {
		return nil, nil, common.ConfigError("split.Partition", "test_fraction", testFraction,
			"leaves no training rows out of %d", n)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = append([]int{}, perm[:nTest]...)
	train = append([]int{}, perm[nTest:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test, nil
}

// New partitions X and y, keeping every row with its label.
func New(X [][]float64, y []int, testFraction float64, seed int64) (Split, error) {
	if len(X) != len(y) {
		return Split{}, common.DataError("split.New", "rows", len(y), "features have %d rows, labels %d", len(X), len(y))
	}
	train, test, err := Partition(len(X), testFraction, seed)
	if err != nil {
		return Split{}, err
	}
	return ByIndex(X, y, train, test)
}

// ByIndex builds a split from explicit row ids.
func ByIndex(X [][]float64, y []int, train, test []int) (Split, error) {
	if len(X) != len(y) {
		return Split{}, common.DataError("split.ByIndex", "rows", len(y), "features have %d rows, labels %d", len(X), len(y))
	}
	if len(train) == 0 || len(test) == 0 {
		return Split{}, common.ConfigError("split.ByIndex", "partition", nil, "train and test sides must be non-empty")
	}
	if len(train)+len(test) != len(X) {
		return Split{}, common.DataError("split.ByIndex", "partition", len(train)+len(test),
			"partition covers %d of %d rows", len(train)+len(test), len(X))
	}

	seen := make([]bool, len(X))
	s := Split{
		TrainIndex: append([]int{}, train...),
		TestIndex:  append([]int{}, test...),
	}
	take := func(ids []int) ([][]float64, []int, error) {
		xs := make([][]float64, 0, len(ids))
		ys := make([]int, 0, len(ids))
		for _, id := range ids {
			if id < 0 || id >= len(X) || seen[id] {
				return nil, nil, common.DataError("split.ByIndex", "row", id, "row id out of range or repeated")
			}
			seen[id] = true
			xs = append(xs, X[id])
			ys = append(ys, y[id])
		}
		return xs, ys, nil
	}

	var err error
	if s.TrainX, s.TrainY, err = take(train); err != nil {
		return Split{}, err
	}
	if s.TestX, s.TestY, err = take(test); err != nil {
		return Split{}, err
	}
	return s, nil
}
