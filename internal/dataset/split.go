package dataset

import "fmt"

// Fold is one forward-chaining cross-validation split: training rows
// [0, TrainEnd) strictly precede validation rows [ValStart, ValEnd).
type Fold struct {
	TrainEnd int
	ValStart int
	ValEnd   int
}

// TimeSeriesFolds partitions n chronological rows into k forward-chaining
// folds. Validation blocks are equally sized (n / (k+1) rows); training
// blocks grow across folds and absorb the remainder. No shuffling, ever.
func TimeSeriesFolds(n, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", k)
	}
	valSize := n / (k + 1)
	if valSize < 1 {
		return nil, fmt.Errorf("%d rows are too few for %d folds", n, k)
	}
	folds := make([]Fold, k)
	for i := 0; i < k; i++ {
		valEnd := n - (k-1-i)*valSize
		valStart := valEnd - valSize
		folds[i] = Fold{TrainEnd: valStart, ValStart: valStart, ValEnd: valEnd}
	}
	return folds, nil
}
