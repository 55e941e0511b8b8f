package optimize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omerbh/tradelab-go/internal/models"
)

// Recorder persists finished trials. Implementations must tolerate being
// called from multiple goroutines during the startup phase.
type Recorder interface {
	RecordTrial(ctx context.Context, trial models.Trial) error
}

// Evaluator scores one resolved assignment. Objective is the production
// implementation.
type Evaluator interface {
	Evaluate(r Resolved) []float64
}

// Study drives a full hyperparameter search: a parallel random startup phase
// followed by sequential surrogate-guided trials. Trials are appended to the
// in-memory list, streamed to the optional JSONL history writer, and handed
// to the optional recorder.
type Study struct {
	Name      string
	Evaluator Evaluator
	Multi     bool
	Specs     map[string]Spec
	Sampler   *Sampler
	Recorder  Recorder
	History   io.Writer
	Log       *logrus.Logger

	mu     sync.Mutex
	trials []models.Trial
}

// Run executes nTrials trials. The first startup trials run concurrently
// with at most workers goroutines; guided trials run one at a time because
// each one conditions on everything observed so far. Context cancellation
// stops the study between trials and returns what finished.
func (s *Study) Run(ctx context.Context, nTrials, startup, workers int) ([]models.Trial, error) {
	if err := Validate(s.Specs); err != nil {
		return nil, err
	}
	if nTrials < 1 {
		return nil, fmt.Errorf("need at least 1 trial, got %d", nTrials)
	}
	if startup > nTrials {
		startup = nTrials
	}
	if workers < 1 {
		workers = 1
	}

	s.Log.WithFields(logrus.Fields{
		"study":          s.Name,
		"trials":         nTrials,
		"startup_trials": startup,
		"workers":        workers,
	}).Info("starting hyperparameter study")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < startup; i++ {
		number := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return s.runTrial(gctx, number)
		})
	}
	if err := g.Wait(); err != nil {
		return s.snapshot(), err
	}

	for i := startup; i < nTrials; i++ {
		if err := ctx.Err(); err != nil {
			return s.snapshot(), err
		}
		if err := s.runTrial(ctx, i); err != nil {
			return s.snapshot(), err
		}
	}

	trials := s.snapshot()
	if best, ok := BestTrial(trials, s.Multi); ok {
		s.Log.WithFields(logrus.Fields{
			"study":  s.Name,
			"trial":  best.Number,
			"values": best.Values,
		}).Info("study finished")
	} else {
		s.Log.WithField("study", s.Name).Warn("study finished with no successful trial")
	}
	return trials, nil
}

func (s *Study) runTrial(ctx context.Context, number int) error {
	sampled := s.Sampler.Sample()
	trial := models.Trial{
		ID:     uuid.NewString(),
		Number: number,
		State:  models.TrialComplete,
	}

	resolved, err := Resolve(s.Specs, sampled)
	if err != nil {
		// A resolve failure is a configuration bug, not a bad sample.
		return fmt.Errorf("trial %d: %w", number, err)
	}
	trial.Params = resolved.Map()
	trial.Values = s.Evaluator.Evaluate(resolved)
	s.Sampler.Observe(sampled, mean(trial.Values))

	failed := true
	for _, v := range trial.Values {
		if v != FailureScore {
			failed = false
			break
		}
	}
	if failed {
		trial.State = models.TrialFailed
	}

	s.Log.WithFields(logrus.Fields{
		"study":  s.Name,
		"trial":  number,
		"state":  trial.State,
		"values": trial.Values,
	}).Debug("trial finished")

	return s.record(ctx, trial)
}

func (s *Study) record(ctx context.Context, trial models.Trial) error {
	s.mu.Lock()
	s.trials = append(s.trials, trial)
	if s.History != nil {
		if line, err := json.Marshal(trial); err == nil {
			line = append(line, '\n')
			if _, err := s.History.Write(line); err != nil {
				s.Log.WithError(err).Warn("writing trial history failed")
			}
		}
	}
	s.mu.Unlock()

	if s.Recorder != nil {
		if err := s.Recorder.RecordTrial(ctx, trial); err != nil {
			// Persistence problems must not kill a long-running search.
			s.Log.WithError(err).WithField("trial", trial.Number).Warn("recording trial failed")
		}
	}
	return nil
}

func (s *Study) snapshot() []models.Trial {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Trial, len(s.trials))
	copy(out, s.trials)
	return out
}
