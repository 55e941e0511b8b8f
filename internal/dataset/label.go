package dataset

import (
	"fmt"
	"math"
)

// DynamicTarget computes the binary forward-return label for each bar:
// 1 when close[t+horizon]/close[t] - 1 > threshold, else 0. The last horizon
// entries have no forward price and come back as NaN; callers must drop them
// before training or scoring, never treat them as 0.
func DynamicTarget(close []float64, horizon int, threshold float64) ([]float64, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}
	if len(close) == 0 {
		return nil, fmt.Errorf("empty close series")
	}
	labels := make([]float64, len(close))
	for t := range close {
		if t+horizon >= len(close) || close[t] == 0 {
			labels[t] = math.NaN()
			continue
		}
		futureReturn := close[t+horizon]/close[t] - 1
		if futureReturn > threshold {
			labels[t] = 1
		} else {
			labels[t] = 0
		}
	}
	return labels, nil
}

// DefinedPrefix returns the number of leading rows with defined labels, and
// whether any undefined label appears before a defined one (which would mean
// the series has interior holes rather than just the forward-looking tail).
func DefinedPrefix(labels []float64) (int, bool) {
	n := 0
	for ; n < len(labels); n++ {
		if math.IsNaN(labels[n]) {
			break
		}
	}
	for i := n; i < len(labels); i++ {
		if !math.IsNaN(labels[i]) {
			return n, false
		}
	}
	return n, true
}
