package backtest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omerbh/tradelab-go/internal/artifact"
	"github.com/omerbh/tradelab-go/internal/config"
	"github.com/omerbh/tradelab-go/internal/dataset"
	"github.com/omerbh/tradelab-go/internal/ml"
	"github.com/omerbh/tradelab-go/internal/models"
)

func writeFixtureCSV(t *testing.T, dir string, rows int) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("date,open,high,low,close,volume,cycle_pos,noise_a\n")
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		c := 100 + float64(i%10)
		sb.WriteString(fmt.Sprintf("%s,%.2f,%.2f,%.2f,%.2f,%d,%d,%d\n",
			start.AddDate(0, 0, i).Format("2006-01-02"),
			c-0.2, c+0.5, c-0.5, c, 1000+i, i%10, i%4))
	}
	path := filepath.Join(dir, "features.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

// saveFixtureCandidate trains a small bundle on the fixture's training rows
// and stores it in the candidate slot.
func saveFixtureCandidate(t *testing.T, cfg *config.Config) {
	t.Helper()
	frame, err := dataset.ReadCSV(cfg.Paths.FeatureData)
	require.NoError(t, err)

	names := []string{"cycle_pos", "noise_a"}
	splitIdx := frame.Len() * (100 - cfg.Training.TestSizeSplit) / 100
	x, err := frame.Slice(0, splitIdx).FeatureMatrix(names)
	require.NoError(t, err)

	closeCol, err := frame.Column("close")
	require.NoError(t, err)
	labels, err := dataset.DynamicTarget(closeCol[:splitIdx], 3, 0.01)
	require.NoError(t, err)
	defined, _ := dataset.DefinedPrefix(labels)

	var scaler dataset.StandardScaler
	scaled, err := scaler.FitTransform(x[:defined])
	require.NoError(t, err)
	model, err := ml.TrainClassifier(scaled, labels[:defined], names, ml.DefaultHyperParams())
	require.NoError(t, err)

	bundle := &artifact.Bundle{
		Model:  model,
		Scaler: scaler,
		Config: models.BundleConfig{
			TrainingRunTimestamp: "20240101_090000",
			StudyName:            "unit_study",
			SelectedFeatures:     names,
			Params:               map[string]models.ParamValue{"horizon": {Value: 3}},
			RiskParams:           models.RiskParams{StopLossPct: 2, TakeProfitPct: 4, RiskPerTrade: 0.02},
		},
	}
	require.NoError(t, artifact.NewStore(cfg.Paths.ModelsDir).SaveCandidate(bundle))
}

func testBacktestConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	return &config.Config{
		Paths: config.PathsConfig{
			FeatureData: writeFixtureCSV(t, dir, 200),
			ModelsDir:   filepath.Join(dir, "models"),
			ReportsDir:  filepath.Join(dir, "reports"),
		},
		Training: config.TrainingConfig{
			StudyName:     "unit_study",
			TestSizeSplit: 20,
		},
		Backtest: config.BacktestConfig{
			Commission:     0.0005,
			Slippage:       0.0005,
			InitialBalance: 10000,
		},
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestBacktesterRunCandidate(t *testing.T) {
	dir := t.TempDir()
	cfg := testBacktestConfig(t, dir)
	saveFixtureCandidate(t, cfg)

	report, err := New(cfg, testLogger(), nil).Run(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, "candidate", report.Source)
	assert.Equal(t, "unit_study", report.StudyName)
	assert.Equal(t, 40, report.Bars)
	assert.GreaterOrEqual(t, report.NumTrades, 0)
	assert.False(t, report.InitialBalance.IsZero())

	// Report JSON round-trips.
	blob, err := os.ReadFile(filepath.Join(cfg.Paths.ReportsDir, "backtest_report.json"))
	require.NoError(t, err)
	var onDisk Report
	require.NoError(t, json.Unmarshal(blob, &onDisk))
	assert.Equal(t, report.OOSStart, onDisk.OOSStart)
	assert.True(t, report.TotalReturn.Equal(onDisk.TotalReturn))

	// Equity curve covers every simulated bar except the final flush bar.
	f, err := os.Open(filepath.Join(cfg.Paths.ReportsDir, "backtest_equity.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1+39)

	tradesBlob, err := os.ReadFile(filepath.Join(cfg.Paths.ReportsDir, "backtest_trades.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(tradesBlob), "type,entry,exit,shares,reason,pnl")
}

func TestBacktesterRequiresBundle(t *testing.T) {
	dir := t.TempDir()
	cfg := testBacktestConfig(t, dir)

	_, err := New(cfg, testLogger(), nil).Run(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "champion")
}

func TestBacktesterRejectsMissingFeature(t *testing.T) {
	dir := t.TempDir()
	cfg := testBacktestConfig(t, dir)
	saveFixtureCandidate(t, cfg)

	// Rewrite the data file without the cycle_pos column the bundle needs.
	var sb strings.Builder
	sb.WriteString("date,open,high,low,close,volume,noise_a\n")
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		c := 100 + float64(i%10)
		sb.WriteString(fmt.Sprintf("%s,%.2f,%.2f,%.2f,%.2f,%d,%d\n",
			start.AddDate(0, 0, i).Format("2006-01-02"),
			c-0.2, c+0.5, c-0.5, c, 1000+i, i%4))
	}
	require.NoError(t, os.WriteFile(cfg.Paths.FeatureData, []byte(sb.String()), 0o644))

	_, err := New(cfg, testLogger(), nil).Run(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle_pos")
}
