package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/omerbh/tradelab-go/internal/models"
)

// Store persists trial and backtest history in PostgreSQL. It is optional
// infrastructure: studies run fine without a database, they just lose the
// queryable history.
type Store struct {
	Pool *pgxpool.Pool
	log  *logrus.Logger
}

// Connect opens a pooled connection and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string, log *logrus.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info("connected to PostgreSQL")
	return &Store{Pool: pool, log: log}, nil
}

// EnsureSchema creates the history tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS optimization_trials (
			id UUID PRIMARY KEY,
			study_name TEXT NOT NULL,
			trial_number INTEGER NOT NULL,
			state TEXT NOT NULL,
			params JSONB NOT NULL,
			objective_values JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trials_study ON optimization_trials (study_name, trial_number)`,
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id BIGSERIAL PRIMARY KEY,
			study_name TEXT NOT NULL,
			total_return DOUBLE PRECISION NOT NULL,
			sharpe_ratio DOUBLE PRECISION NOT NULL,
			max_drawdown DOUBLE PRECISION NOT NULL,
			win_rate DOUBLE PRECISION NOT NULL,
			num_trades INTEGER NOT NULL,
			benchmark_return DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// TrialRecorder binds a study name to the store so it satisfies the
// optimizer's Recorder interface.
type TrialRecorder struct {
	store     *Store
	studyName string
}

func (s *Store) Recorder(studyName string) *TrialRecorder {
	return &TrialRecorder{store: s, studyName: studyName}
}

// RecordTrial inserts one finished trial. Safe for concurrent use; the pool
// serializes access.
func (r *TrialRecorder) RecordTrial(ctx context.Context, trial models.Trial) error {
	params, err := json.Marshal(trial.Params)
	if err != nil {
		return fmt.Errorf("encode trial params: %w", err)
	}
	values, err := json.Marshal(trial.Values)
	if err != nil {
		return fmt.Errorf("encode trial values: %w", err)
	}
	_, err = r.store.Pool.Exec(ctx,
		`INSERT INTO optimization_trials (id, study_name, trial_number, state, params, objective_values)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		trial.ID, r.studyName, trial.Number, string(trial.State), params, values,
	)
	if err != nil {
		return fmt.Errorf("insert trial %d: %w", trial.Number, err)
	}
	return nil
}

// SaveBacktestRun stores one out-of-sample backtest summary row.
func (s *Store) SaveBacktestRun(ctx context.Context, studyName string, m models.SimulationMetrics) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO backtest_runs
		 (study_name, total_return, sharpe_ratio, max_drawdown, win_rate, num_trades, benchmark_return)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		studyName, m.TotalReturn, m.SharpeRatio, m.MaxDrawdown, m.WinRate, m.NumTrades, m.BenchmarkReturn,
	)
	if err != nil {
		return fmt.Errorf("insert backtest run: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
		s.log.Info("PostgreSQL connection closed")
	}
}
