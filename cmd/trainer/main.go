package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/omerbh/tradelab-go/internal/artifact"
	"github.com/omerbh/tradelab-go/internal/config"
	"github.com/omerbh/tradelab-go/internal/database"
	"github.com/omerbh/tradelab-go/internal/logging"
	"github.com/omerbh/tradelab-go/internal/optimize"
	"github.com/omerbh/tradelab-go/internal/trainer"
)

func main() {
	promote := flag.Bool("promote", false, "promote the trained candidate to champion on success")
	flag.Parse()

	// Optional .env for local runs; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logging.New(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var recorder optimize.Recorder
	if cfg.Database.DatabaseURL != "" {
		store, err := database.Connect(ctx, cfg.Database.DatabaseURL, log)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
		recorder = store.Recorder(cfg.Training.StudyName)
	}

	summary, err := trainer.New(cfg, log, recorder).Run(ctx)
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}
	log.WithFields(logrus.Fields{
		"best_trial":    summary.BestTrialNumber,
		"best_values":   summary.BestValues,
		"test_accuracy": summary.TestAccuracy,
	}).Info("training run complete")

	if *promote {
		if err := artifact.NewStore(cfg.Paths.ModelsDir).Promote(); err != nil {
			log.Fatalf("Promotion failed: %v", err)
		}
		log.Info("candidate promoted to champion")
	}
}
