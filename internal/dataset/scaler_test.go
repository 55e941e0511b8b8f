package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardScalerFitTransform(t *testing.T) {
	x := [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
	}

	var s StandardScaler
	scaled, err := s.FitTransform(x)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, s.Mean[0], 1e-12)
	assert.InDelta(t, 20.0, s.Mean[1], 1e-12)
	assert.InDelta(t, 1.0, s.Std[0], 1e-12)
	assert.InDelta(t, 10.0, s.Std[1], 1e-12)

	assert.InDelta(t, -1.0, scaled[0][0], 1e-12)
	assert.InDelta(t, 0.0, scaled[1][0], 1e-12)
	assert.InDelta(t, 1.0, scaled[2][0], 1e-12)

	// The source matrix must not be mutated.
	assert.Equal(t, 1.0, x[0][0])
}

func TestStandardScalerZeroVariance(t *testing.T) {
	x := [][]float64{{5, 1}, {5, 2}, {5, 3}}

	var s StandardScaler
	scaled, err := s.FitTransform(x)
	require.NoError(t, err)

	// A constant column transforms to all zeros, not NaN.
	for i := range scaled {
		assert.Equal(t, 0.0, scaled[i][0])
	}
}

func TestStandardScalerTransformReusesTrainStats(t *testing.T) {
	var s StandardScaler
	_, err := s.FitTransform([][]float64{{0}, {2}})
	require.NoError(t, err)

	out, err := s.Transform([][]float64{{4}})
	require.NoError(t, err)

	// (4 - 1) / sqrt(2): statistics come from the fit rows only.
	assert.InDelta(t, 2.1213, out[0][0], 1e-4)
}

func TestStandardScalerErrors(t *testing.T) {
	var s StandardScaler

	_, err := s.Transform([][]float64{{1}})
	assert.ErrorContains(t, err, "not fitted")

	err = s.Fit(nil)
	assert.Error(t, err)

	err = s.Fit([][]float64{{1, 2}, {3}})
	assert.ErrorContains(t, err, "ragged")

	require.NoError(t, s.Fit([][]float64{{1, 2}, {3, 4}}))
	_, err = s.Transform([][]float64{{1}})
	assert.Error(t, err)
}
