package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSeriesFolds(t *testing.T) {
	folds, err := TimeSeriesFolds(100, 4)
	require.NoError(t, err)
	require.Len(t, folds, 4)

	// valSize = 100/5 = 20; the first training block absorbs the remainder.
	assert.Equal(t, Fold{TrainEnd: 20, ValStart: 20, ValEnd: 40}, folds[0])
	assert.Equal(t, Fold{TrainEnd: 40, ValStart: 40, ValEnd: 60}, folds[1])
	assert.Equal(t, Fold{TrainEnd: 60, ValStart: 60, ValEnd: 80}, folds[2])
	assert.Equal(t, Fold{TrainEnd: 80, ValStart: 80, ValEnd: 100}, folds[3])
}

func TestTimeSeriesFoldsUnevenRows(t *testing.T) {
	folds, err := TimeSeriesFolds(103, 4)
	require.NoError(t, err)

	// The 3 leftover rows stay in the earliest training block.
	assert.Equal(t, 23, folds[0].TrainEnd)
	assert.Equal(t, 103, folds[3].ValEnd)
	for _, f := range folds {
		assert.Equal(t, 20, f.ValEnd-f.ValStart)
		assert.Equal(t, f.ValStart, f.TrainEnd)
	}
}

func TestTimeSeriesFoldsOrderingInvariant(t *testing.T) {
	folds, err := TimeSeriesFolds(57, 3)
	require.NoError(t, err)

	prevEnd := 0
	for _, f := range folds {
		assert.Greater(t, f.TrainEnd, 0)
		assert.LessOrEqual(t, f.TrainEnd, f.ValStart, "training rows must precede validation rows")
		assert.Greater(t, f.ValEnd, f.ValStart)
		assert.Greater(t, f.ValEnd, prevEnd)
		prevEnd = f.ValEnd
	}
}

func TestTimeSeriesFoldsErrors(t *testing.T) {
	_, err := TimeSeriesFolds(100, 1)
	assert.Error(t, err)

	// 4 rows across 4 folds leaves no room for a validation block.
	_, err = TimeSeriesFolds(4, 4)
	assert.Error(t, err)
}
