package models

// ExitReason identifies why a simulated position was closed.
type ExitReason string

const (
	// ExitStopLoss means the bar's low crossed the stop-loss price.
	ExitStopLoss ExitReason = "SL"
	// ExitTakeProfit means the bar's high crossed the take-profit price.
	ExitTakeProfit ExitReason = "TP"
	// ExitEndOfData means the position was force-closed on the last bar.
	ExitEndOfData ExitReason = "End"
)

// PositionType identifies the direction of a simulated position. Only long
// entries are generated in the current design.
type PositionType string

const (
	PositionLong PositionType = "long"
	PositionNone PositionType = "none"
)

// Trade is an immutable closed-position record produced by the simulation
// engine.
type Trade struct {
	Type       PositionType `json:"type"`
	EntryPrice float64      `json:"entry"`
	ExitPrice  float64      `json:"exit"`
	Shares     float64      `json:"shares"`
	Reason     ExitReason   `json:"reason"`
}

// Win reports whether the trade closed above its entry price.
func (t Trade) Win() bool {
	return t.ExitPrice > t.EntryPrice
}

// SimulationMetrics summarizes one simulation run. Degenerate inputs (empty
// equity curve, zero balance, zero-variance returns) produce the -2.0
// sentinel for return/Sharpe instead of NaN so that optimization always
// receives a finite, comparable score.
type SimulationMetrics struct {
	TotalReturn     float64 `json:"total_return"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	WinRate         float64 `json:"win_rate"`
	NumTrades       int     `json:"num_trades"`
	BenchmarkReturn float64 `json:"benchmark_return"`
}

// MetricSentinel is the value substituted for non-finite return/Sharpe
// metrics.
const MetricSentinel = -2.0
