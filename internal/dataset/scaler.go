package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler performs column-wise standardization: fit on training rows
// only, then reuse unmodified for validation/test/out-of-sample rows. Exported
// fields make it JSON-serializable inside an artifact bundle.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Fit computes per-column mean and standard deviation. Zero-variance columns
// get unit scale so transformed values stay finite.
func (s *StandardScaler) Fit(x [][]float64) error {
	if len(x) == 0 || len(x[0]) == 0 {
		return fmt.Errorf("cannot fit scaler on empty matrix")
	}
	nCols := len(x[0])
	s.Mean = make([]float64, nCols)
	s.Std = make([]float64, nCols)
	col := make([]float64, len(x))
	for j := 0; j < nCols; j++ {
		for i := range x {
			if len(x[i]) != nCols {
				return fmt.Errorf("ragged matrix: row %d has %d columns, want %d", i, len(x[i]), nCols)
			}
			col[i] = x[i][j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.Std[j] = sd
	}
	return nil
}

// Transform returns a standardized copy of x using the fitted parameters.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	if len(s.Mean) == 0 {
		return nil, fmt.Errorf("scaler is not fitted")
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("row %d has %d columns, scaler fitted on %d", i, len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits on x and returns its standardized copy.
func (s *StandardScaler) FitTransform(x [][]float64) ([][]float64, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}
