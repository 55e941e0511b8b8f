package sim

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/omerbh/tradelab-go/internal/models"
)

const tradingDaysPerYear = 252

// computeMetrics derives the summary metrics from an equity curve and trade
// list. Degenerate inputs never raise: an empty curve or zero starting
// balance yields the -2.0 sentinel for return and Sharpe, and every
// non-finite value is replaced by its sentinel default so the optimizer
// always receives a comparable score.
func computeMetrics(equity []float64, trades []models.Trade, prices Series, initialBalance float64) models.SimulationMetrics {
	m := models.SimulationMetrics{NumTrades: len(trades)}
	if len(equity) == 0 || initialBalance == 0 {
		m.TotalReturn = models.MetricSentinel
		m.SharpeRatio = models.MetricSentinel
		return m
	}

	m.TotalReturn = equity[len(equity)-1]/initialBalance - 1
	m.SharpeRatio = sharpeRatio(equity)
	m.MaxDrawdown = maxDrawdown(equity)
	m.WinRate = winRate(trades)
	if prices.Len() > 0 && prices.Close[0] != 0 {
		m.BenchmarkReturn = prices.Close[prices.Len()-1]/prices.Close[0] - 1
	}

	if !isFinite(m.TotalReturn) {
		m.TotalReturn = models.MetricSentinel
	}
	if !isFinite(m.SharpeRatio) {
		m.SharpeRatio = models.MetricSentinel
	}
	if !isFinite(m.MaxDrawdown) {
		m.MaxDrawdown = 0
	}
	if !isFinite(m.WinRate) {
		m.WinRate = 0
	}
	if !isFinite(m.BenchmarkReturn) {
		m.BenchmarkReturn = 0
	}
	return m
}

// sharpeRatio annualizes the mean/std of per-bar simple equity returns. The
// first return is defined as 0, matching a pct-change with its leading hole
// filled. Zero or non-finite dispersion yields the sentinel.
func sharpeRatio(equity []float64) float64 {
	returns := make([]float64, len(equity))
	for i := 1; i < len(equity); i++ {
		if equity[i-1] != 0 {
			returns[i] = equity[i]/equity[i-1] - 1
		}
	}
	sd := stat.StdDev(returns, nil)
	if sd <= 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
		return models.MetricSentinel
	}
	return math.Sqrt(tradingDaysPerYear) * stat.Mean(returns, nil) / sd
}

// maxDrawdown is the most negative (equity - runningMax)/runningMax over the
// curve; 0 for a curve that never declines.
func maxDrawdown(equity []float64) float64 {
	worst := 0.0
	runningMax := math.Inf(-1)
	for _, e := range equity {
		if e > runningMax {
			runningMax = e
		}
		if runningMax != 0 {
			dd := (e - runningMax) / runningMax
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

func winRate(trades []models.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.Win() {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
