package backtest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/omerbh/tradelab-go/internal/artifact"
	"github.com/omerbh/tradelab-go/internal/config"
	"github.com/omerbh/tradelab-go/internal/database"
	"github.com/omerbh/tradelab-go/internal/dataset"
	"github.com/omerbh/tradelab-go/internal/models"
	"github.com/omerbh/tradelab-go/internal/sim"
)

// Backtester replays a saved artifact bundle over the hold-out rows the
// training run never touched and persists the resulting trade log, equity
// curve and summary report.
type Backtester struct {
	cfg   *config.Config
	log   *logrus.Logger
	store *database.Store
}

// Report is the JSON summary of one out-of-sample run. Monetary and ratio
// fields are decimals so the serialized report is stable and free of float
// formatting noise.
type Report struct {
	Timestamp       string          `json:"timestamp"`
	StudyName       string          `json:"study_name"`
	Source          string          `json:"source"`
	OOSStart        string          `json:"oos_start"`
	OOSEnd          string          `json:"oos_end"`
	Bars            int             `json:"bars"`
	InitialBalance  decimal.Decimal `json:"initial_balance"`
	FinalEquity     decimal.Decimal `json:"final_equity"`
	TotalReturn     decimal.Decimal `json:"total_return"`
	SharpeRatio     decimal.Decimal `json:"sharpe_ratio"`
	MaxDrawdown     decimal.Decimal `json:"max_drawdown"`
	WinRate         decimal.Decimal `json:"win_rate"`
	NumTrades       int             `json:"num_trades"`
	BenchmarkReturn decimal.Decimal `json:"benchmark_return"`
}

// New builds a backtester. The store is optional; pass nil to skip database
// persistence.
func New(cfg *config.Config, log *logrus.Logger, store *database.Store) *Backtester {
	return &Backtester{cfg: cfg, log: log, store: store}
}

// Run loads the champion bundle (or the candidate when useCandidate is set),
// scores the hold-out window and writes reports. The split index is computed
// exactly as the trainer computes it, so the simulated rows are the rows the
// search never saw.
func (b *Backtester) Run(ctx context.Context, useCandidate bool) (*Report, error) {
	store := artifact.NewStore(b.cfg.Paths.ModelsDir)
	var bundle *artifact.Bundle
	var err error
	source := "champion"
	if useCandidate {
		source = "candidate"
		bundle, err = store.LoadCandidate()
	} else {
		bundle, err = store.LoadChampion()
	}
	if err != nil {
		return nil, fmt.Errorf("load %s bundle: %w", source, err)
	}

	frame, err := dataset.ReadCSV(b.cfg.Paths.FeatureData)
	if err != nil {
		return nil, err
	}
	if err := frame.RequireOHLCV(); err != nil {
		return nil, err
	}
	frame = frame.TrimYears(b.cfg.Training.YearsOfData)

	selected := bundle.Config.SelectedFeatures
	for _, name := range selected {
		if !frame.HasColumn(name) {
			return nil, fmt.Errorf("data file lacks feature %q required by the bundle", name)
		}
	}
	frame.SanitizeFeatures(selected)

	splitIdx := frame.Len() * (100 - b.cfg.Training.TestSizeSplit) / 100
	oos := frame.Slice(splitIdx, frame.Len())
	if oos.Len() < 2 {
		return nil, fmt.Errorf("hold-out window has %d rows, need at least 2", oos.Len())
	}

	features, err := oos.FeatureMatrix(selected)
	if err != nil {
		return nil, err
	}
	scaled, err := bundle.Scaler.Transform(features)
	if err != nil {
		return nil, fmt.Errorf("scale hold-out features: %w", err)
	}
	preds := bundle.Model.PredictProba(scaled)

	prices, err := priceSeries(oos)
	if err != nil {
		return nil, err
	}
	prices, preds = sim.Align(prices, oos.Dates(), preds)
	risk := bundle.Config.RiskParams
	result, err := sim.Simulate(prices, preds, sim.Config{
		Commission:     b.cfg.Backtest.Commission,
		Slippage:       b.cfg.Backtest.Slippage,
		InitialBalance: b.cfg.Backtest.InitialBalance,
		StopLossPct:    risk.StopLossPct / 100,
		TakeProfitPct:  risk.TakeProfitPct / 100,
		RiskPerTrade:   risk.RiskPerTrade,
	})
	if err != nil {
		return nil, err
	}

	b.log.WithFields(logrus.Fields{
		"source":       source,
		"bars":         prices.Len(),
		"trades":       result.Metrics.NumTrades,
		"total_return": result.Metrics.TotalReturn,
		"benchmark":    result.Metrics.BenchmarkReturn,
	}).Info("out-of-sample backtest finished")

	report := b.buildReport(source, prices, result)
	if err := b.persist(report, prices, result); err != nil {
		return nil, err
	}

	if b.store != nil {
		if err := b.store.SaveBacktestRun(ctx, bundle.Config.StudyName, result.Metrics); err != nil {
			// History persistence must not invalidate a finished run.
			b.log.WithError(err).Warn("saving backtest run to database failed")
		}
	}
	return report, nil
}

func (b *Backtester) buildReport(source string, prices sim.Series, result sim.Result) *Report {
	m := result.Metrics
	finalEquity := b.cfg.Backtest.InitialBalance
	if len(result.EquityCurve) > 0 {
		finalEquity = result.EquityCurve[len(result.EquityCurve)-1]
	}
	return &Report{
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		StudyName:       b.cfg.Training.StudyName,
		Source:          source,
		OOSStart:        prices.Dates[0].Format("2006-01-02"),
		OOSEnd:          prices.Dates[prices.Len()-1].Format("2006-01-02"),
		Bars:            prices.Len(),
		InitialBalance:  decimal.NewFromFloat(b.cfg.Backtest.InitialBalance).Round(2),
		FinalEquity:     decimal.NewFromFloat(finalEquity).Round(2),
		TotalReturn:     decimal.NewFromFloat(m.TotalReturn).Round(6),
		SharpeRatio:     decimal.NewFromFloat(m.SharpeRatio).Round(6),
		MaxDrawdown:     decimal.NewFromFloat(m.MaxDrawdown).Round(6),
		WinRate:         decimal.NewFromFloat(m.WinRate).Round(6),
		NumTrades:       m.NumTrades,
		BenchmarkReturn: decimal.NewFromFloat(m.BenchmarkReturn).Round(6),
	}
}

func (b *Backtester) persist(report *Report, prices sim.Series, result sim.Result) error {
	if err := os.MkdirAll(b.cfg.Paths.ReportsDir, 0o755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}

	blob, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode backtest report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(b.cfg.Paths.ReportsDir, "backtest_report.json"), blob, 0o644); err != nil {
		return fmt.Errorf("write backtest report: %w", err)
	}
	if err := writeTradesCSV(filepath.Join(b.cfg.Paths.ReportsDir, "backtest_trades.csv"), result.Trades); err != nil {
		return err
	}
	return writeEquityCSV(filepath.Join(b.cfg.Paths.ReportsDir, "backtest_equity.csv"), prices, result.EquityCurve)
}

func writeTradesCSV(path string, trades []models.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"type", "entry", "exit", "shares", "reason", "pnl"}); err != nil {
		return err
	}
	for _, t := range trades {
		pnl := (t.ExitPrice - t.EntryPrice) * t.Shares
		rec := []string{
			string(t.Type),
			strconv.FormatFloat(t.EntryPrice, 'f', 4, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', 4, 64),
			strconv.FormatFloat(t.Shares, 'f', 0, 64),
			string(t.Reason),
			strconv.FormatFloat(pnl, 'f', 2, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeEquityCSV(path string, prices sim.Series, equity []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create equity csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "equity"}); err != nil {
		return err
	}
	for i, e := range equity {
		rec := []string{
			prices.Dates[i].Format("2006-01-02"),
			strconv.FormatFloat(e, 'f', 2, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func priceSeries(frame *dataset.Frame) (sim.Series, error) {
	s := sim.Series{Dates: frame.Dates()}
	for _, col := range []struct {
		name string
		dst  *[]float64
	}{
		{"open", &s.Open}, {"high", &s.High}, {"low", &s.Low}, {"close", &s.Close},
	} {
		v, err := frame.Column(col.name)
		if err != nil {
			return sim.Series{}, err
		}
		*col.dst = v
	}
	if err := s.Validate(); err != nil {
		return sim.Series{}, err
	}
	return s, nil
}
