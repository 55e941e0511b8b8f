package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/omerbh/tradelab-go/internal/models"
)

// Series is a chronological OHLC price window. It is the simulation engine's
// view of the price frame; volume and auxiliary columns are irrelevant here.
type Series struct {
	Dates []time.Time
	Open  []float64
	High  []float64
	Low   []float64
	Close []float64
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Close) }

// Validate checks the structural invariants the engine relies on.
func (s Series) Validate() error {
	n := len(s.Close)
	if len(s.Open) != n || len(s.High) != n || len(s.Low) != n || len(s.Dates) != n {
		return fmt.Errorf("misaligned price series: open=%d high=%d low=%d close=%d dates=%d",
			len(s.Open), len(s.High), len(s.Low), n, len(s.Dates))
	}
	for i := 1; i < n; i++ {
		if !s.Dates[i].After(s.Dates[i-1]) {
			return fmt.Errorf("price series not strictly increasing at bar %d", i)
		}
	}
	return nil
}

// Slice returns bars [i0, i1), clamped.
func (s Series) Slice(i0, i1 int) Series {
	if i0 < 0 {
		i0 = 0
	}
	if i1 > s.Len() {
		i1 = s.Len()
	}
	if i0 >= i1 {
		return Series{}
	}
	return Series{
		Dates: s.Dates[i0:i1],
		Open:  s.Open[i0:i1],
		High:  s.High[i0:i1],
		Low:   s.Low[i0:i1],
		Close: s.Close[i0:i1],
	}
}

// Config holds the trading-cost and risk parameters of one simulation run.
// All pct fields are fractions (0.02 = 2%), not percent units.
type Config struct {
	Commission     float64
	Slippage       float64
	InitialBalance float64
	StopLossPct    float64
	TakeProfitPct  float64
	RiskPerTrade   float64
}

// Result bundles the outputs of one simulation run.
type Result struct {
	EquityCurve []float64
	Trades      []models.Trade
	Metrics     models.SimulationMetrics
}

// position is the engine's single-slot position state. At most one position
// is open at any time; no pyramiding, no shorting.
type position struct {
	open       bool
	entryPrice float64
	shares     float64
	stopPrice  float64
	tpPrice    float64
}

// Align inner-joins a prediction series onto a price series by timestamp.
// Rows present in only one of the two are dropped. Both inputs must already
// be chronologically sorted with unique timestamps.
func Align(prices Series, predDates []time.Time, preds []float64) (Series, []float64) {
	idxPrices := make([]int, 0, prices.Len())
	idxPreds := make([]int, 0, len(preds))
	i, j := 0, 0
	for i < prices.Len() && j < len(predDates) {
		switch {
		case prices.Dates[i].Before(predDates[j]):
			i++
		case predDates[j].Before(prices.Dates[i]):
			j++
		default:
			idxPrices = append(idxPrices, i)
			idxPreds = append(idxPreds, j)
			i++
			j++
		}
	}
	out := Series{
		Dates: make([]time.Time, len(idxPrices)),
		Open:  make([]float64, len(idxPrices)),
		High:  make([]float64, len(idxPrices)),
		Low:   make([]float64, len(idxPrices)),
		Close: make([]float64, len(idxPrices)),
	}
	alignedPreds := make([]float64, len(idxPreds))
	for k, pi := range idxPrices {
		out.Dates[k] = prices.Dates[pi]
		out.Open[k] = prices.Open[pi]
		out.High[k] = prices.High[pi]
		out.Low[k] = prices.Low[pi]
		out.Close[k] = prices.Close[pi]
		alignedPreds[k] = preds[idxPreds[k]]
	}
	return out, alignedPreds
}

// Simulate replays the aligned price/prediction window bar by bar and returns
// the equity curve, closed trades and summary metrics. The engine is a pure
// function of its inputs; the optimizer's fold evaluation and the standalone
// backtester both call it and must see identical behavior.
//
// Per bar i (up to the second-to-last bar, since entries fill at the next
// bar's open):
//  1. exit an open position when low <= stop (SL, checked first) or
//     high >= take-profit (TP), at the trigger price degraded by slippage;
//  2. with no position and pred > 0.5, enter at open[i+1]*(1+slippage) with
//     risk-based sizing: floor(balance*riskPerTrade / (entry*stopLossPct))
//     shares, so the loss at the stop equals balance*riskPerTrade;
//  3. mark to market into the equity curve.
//
// A position still open after the last bar is force-closed at the final
// close, slippage-adjusted, with reason End.
func Simulate(prices Series, preds []float64, cfg Config) (Result, error) {
	if err := prices.Validate(); err != nil {
		return Result{}, err
	}
	if len(preds) != prices.Len() {
		return Result{}, fmt.Errorf("predictions length %d does not match %d price bars; align first", len(preds), prices.Len())
	}

	balance := cfg.InitialBalance
	var pos position
	equity := make([]float64, 0, max(prices.Len()-1, 0))
	trades := make([]models.Trade, 0)

	closeAt := func(exitPrice float64, reason models.ExitReason) {
		balance += (exitPrice - pos.entryPrice) * pos.shares
		balance -= pos.shares * exitPrice * (cfg.Commission + cfg.Slippage)
		trades = append(trades, models.Trade{
			Type:       models.PositionLong,
			EntryPrice: pos.entryPrice,
			ExitPrice:  exitPrice,
			Shares:     pos.shares,
			Reason:     reason,
		})
		pos = position{}
	}

	for i := 0; i < prices.Len()-1; i++ {
		// Exit first: SL wins over TP when both trigger on the same bar.
		if pos.open {
			if prices.Low[i] <= pos.stopPrice {
				closeAt(pos.stopPrice*(1-cfg.Slippage), models.ExitStopLoss)
			} else if prices.High[i] >= pos.tpPrice {
				closeAt(pos.tpPrice*(1-cfg.Slippage), models.ExitTakeProfit)
			}
		}

		// Entry: decision from bar i, fill at bar i+1's open.
		if !pos.open && preds[i] > 0.5 {
			entryPrice := prices.Open[i+1] * (1 + cfg.Slippage)
			shares := 0.0
			if cfg.StopLossPct > 0 && entryPrice > 0 {
				shares = math.Floor((balance * cfg.RiskPerTrade) / (entryPrice * cfg.StopLossPct))
			}
			if shares >= 1 {
				balance -= shares * entryPrice * cfg.Commission
				pos = position{
					open:       true,
					entryPrice: entryPrice,
					shares:     shares,
					stopPrice:  entryPrice * (1 - cfg.StopLossPct),
					tpPrice:    entryPrice * (1 + cfg.TakeProfitPct),
				}
			}
		}

		if pos.open {
			equity = append(equity, balance+pos.shares*(prices.Close[i]-pos.entryPrice))
		} else {
			equity = append(equity, balance)
		}
	}

	if pos.open {
		closeAt(prices.Close[prices.Len()-1]*(1-cfg.Slippage), models.ExitEndOfData)
	}

	return Result{
		EquityCurve: equity,
		Trades:      trades,
		Metrics:     computeMetrics(equity, trades, prices, cfg.InitialBalance),
	}, nil
}
