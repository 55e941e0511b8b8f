package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/omerbh/tradelab-go/internal/backtest"
	"github.com/omerbh/tradelab-go/internal/config"
	"github.com/omerbh/tradelab-go/internal/database"
	"github.com/omerbh/tradelab-go/internal/logging"
)

func main() {
	useCandidate := flag.Bool("candidate", false, "backtest the candidate bundle instead of the champion")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *database.Store
	if cfg.Database.DatabaseURL != "" {
		store, err = database.Connect(ctx, cfg.Database.DatabaseURL, log)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
	}

	report, err := backtest.New(cfg, log, store).Run(ctx, *useCandidate)
	if err != nil {
		log.Fatalf("Backtest failed: %v", err)
	}
	log.WithFields(logrus.Fields{
		"total_return": report.TotalReturn,
		"sharpe_ratio": report.SharpeRatio,
		"max_drawdown": report.MaxDrawdown,
		"trades":       report.NumTrades,
		"benchmark":    report.BenchmarkReturn,
	}).Info("backtest complete")
}
