package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omerbh/tradelab-go/internal/artifact"
	"github.com/omerbh/tradelab-go/internal/config"
	"github.com/omerbh/tradelab-go/internal/dataset"
	"github.com/omerbh/tradelab-go/internal/ml"
	"github.com/omerbh/tradelab-go/internal/models"
	"github.com/omerbh/tradelab-go/internal/optimize"
	"github.com/omerbh/tradelab-go/internal/sim"
)

// minTrainingRows is the floor below which walk-forward validation cannot
// produce meaningful folds.
const minTrainingRows = 100

// Trainer runs the full walk-forward training pipeline: load data, search
// hyperparameters over the training window, refit the best assignment on the
// whole training window, evaluate it on the untouched hold-out rows and save
// the result as a candidate artifact bundle.
type Trainer struct {
	cfg      *config.Config
	log      *logrus.Logger
	recorder optimize.Recorder
}

// Summary is the machine-readable record of one training run, written next
// to the artifact bundle.
type Summary struct {
	Timestamp        string                  `json:"timestamp"`
	StudyName        string                  `json:"study_name"`
	Rows             int                     `json:"rows"`
	TrainRows        int                     `json:"train_rows"`
	TestRows         int                     `json:"test_rows"`
	TrialsRun        int                     `json:"trials_run"`
	BestTrialNumber  int                     `json:"best_trial_number"`
	BestValues       []float64               `json:"best_values"`
	BestParams       map[string]float64      `json:"best_params"`
	SelectedFeatures []string                `json:"selected_features"`
	TestAccuracy     float64                 `json:"test_accuracy"`
	TestReport       ml.ClassificationReport `json:"test_report"`
}

// New builds a trainer. The recorder is optional; pass nil to skip database
// persistence.
func New(cfg *config.Config, log *logrus.Logger, recorder optimize.Recorder) *Trainer {
	return &Trainer{cfg: cfg, log: log, recorder: recorder}
}

// Run executes the pipeline and returns the summary of the produced
// candidate bundle.
func (t *Trainer) Run(ctx context.Context) (*Summary, error) {
	frame, prices, featureNames, err := t.loadData()
	if err != nil {
		return nil, err
	}

	splitIdx := frame.Len() * (100 - t.cfg.Training.TestSizeSplit) / 100
	t.log.WithFields(logrus.Fields{
		"rows":       frame.Len(),
		"train_rows": splitIdx,
		"test_rows":  frame.Len() - splitIdx,
		"features":   len(featureNames),
	}).Info("data loaded")

	features, err := frame.FeatureMatrix(featureNames)
	if err != nil {
		return nil, err
	}

	trials, err := t.runStudy(ctx, prices, features, featureNames, splitIdx)
	if err != nil {
		return nil, err
	}
	best, ok := optimize.BestTrial(trials, t.cfg.Training.Multi)
	if !ok {
		return nil, fmt.Errorf("study %q produced no successful trial", t.cfg.Training.StudyName)
	}
	resolved, err := optimize.FromMap(best.Params)
	if err != nil {
		return nil, err
	}
	t.log.WithFields(logrus.Fields{
		"trial":  best.Number,
		"values": best.Values,
		"params": best.Params,
	}).Info("best trial selected")

	return t.finalize(prices, features, featureNames, splitIdx, best, resolved, len(trials))
}

func (t *Trainer) loadData() (*dataset.Frame, sim.Series, []string, error) {
	frame, err := dataset.ReadCSV(t.cfg.Paths.FeatureData)
	if err != nil {
		return nil, sim.Series{}, nil, err
	}
	if err := frame.RequireOHLCV(); err != nil {
		return nil, sim.Series{}, nil, err
	}
	frame = frame.TrimYears(t.cfg.Training.YearsOfData)
	if frame.Len() < minTrainingRows {
		return nil, sim.Series{}, nil, fmt.Errorf("only %d rows after trimming, need at least %d", frame.Len(), minTrainingRows)
	}

	featureNames := frame.FeatureColumns()
	if len(featureNames) == 0 {
		return nil, sim.Series{}, nil, fmt.Errorf("data file carries no feature columns beyond OHLCV")
	}
	frame.SanitizeFeatures(featureNames)

	prices, err := priceSeries(frame)
	if err != nil {
		return nil, sim.Series{}, nil, err
	}
	return frame, prices, featureNames, nil
}

func (t *Trainer) runStudy(ctx context.Context, prices sim.Series, features [][]float64, featureNames []string, splitIdx int) ([]models.Trial, error) {
	specs := t.cfg.ParamSpecs()
	objective := &optimize.Objective{
		Prices:       prices,
		Features:     features,
		FeatureNames: featureNames,
		TrainEnd:     splitIdx,
		CVSplits:     t.cfg.Training.CVSplits,
		SimConfig: sim.Config{
			Commission:     t.cfg.Backtest.Commission,
			Slippage:       t.cfg.Backtest.Slippage,
			InitialBalance: t.cfg.Backtest.InitialBalance,
		},
		TargetMetric: t.cfg.Training.TargetMetric,
		Multi:        t.cfg.Training.Multi,
		Seed:         t.cfg.Training.Seed,
		Log:          t.log,
	}

	if err := os.MkdirAll(t.cfg.Paths.ReportsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	historyPath := filepath.Join(t.cfg.Paths.ReportsDir, t.cfg.Training.StudyName+"_trials.jsonl")
	history, err := os.Create(historyPath)
	if err != nil {
		return nil, fmt.Errorf("create trial history: %w", err)
	}
	defer history.Close()

	study := &optimize.Study{
		Name:      t.cfg.Training.StudyName,
		Evaluator: objective,
		Multi:     t.cfg.Training.Multi,
		Specs:     specs,
		Sampler:   optimize.NewSampler(specs, t.cfg.Training.NStartup, t.cfg.Training.Seed),
		Recorder:  t.recorder,
		History:   history,
		Log:       t.log,
	}
	return study.Run(ctx, t.cfg.Training.NTrials, t.cfg.Training.NStartup, t.cfg.Training.Workers)
}

// finalize refits the winning assignment on the full training window and
// scores it once on the hold-out rows the search never saw.
func (t *Trainer) finalize(prices sim.Series, features [][]float64, featureNames []string, splitIdx int, best models.Trial, r optimize.Resolved, trialsRun int) (*Summary, error) {
	labels, err := dataset.DynamicTarget(prices.Close, r.Horizon, r.Threshold)
	if err != nil {
		return nil, err
	}
	defined, _ := dataset.DefinedPrefix(labels)
	trainRows := splitIdx
	if defined < trainRows {
		trainRows = defined
	}
	if trainRows < minTrainingRows/2 {
		return nil, fmt.Errorf("only %d labeled training rows for the final fit", trainRows)
	}

	selected, _, err := ml.RankFeatures(features[:trainRows], labels[:trainRows], featureNames, r.TopNFeatures, t.cfg.Training.Seed)
	if err != nil {
		return nil, fmt.Errorf("final feature ranking: %w", err)
	}
	cols := indexOf(featureNames, selected)

	var scaler dataset.StandardScaler
	scaledTrain, err := scaler.FitTransform(selectColumns(features[:trainRows], cols))
	if err != nil {
		return nil, err
	}

	pos, neg := countClasses(labels[:trainRows])
	if pos == 0 || neg == 0 {
		return nil, fmt.Errorf("final training window has a single class")
	}
	hp := r.HyperParams()
	hp.ScalePosWeight = float64(neg) / float64(max(1, pos))
	model, err := ml.TrainClassifier(scaledTrain, labels[:trainRows], selected, hp)
	if err != nil {
		return nil, fmt.Errorf("final fit: %w", err)
	}

	// Hold-out evaluation on the rows beyond the split that still have a
	// defined forward label.
	testEnd := defined
	if testEnd <= splitIdx {
		return nil, fmt.Errorf("hold-out window has no labeled rows")
	}
	scaledTest, err := scaler.Transform(selectColumns(features[splitIdx:testEnd], cols))
	if err != nil {
		return nil, err
	}
	testPred := model.Predict(scaledTest)
	report, err := ml.Evaluate(testPred, labels[splitIdx:testEnd])
	if err != nil {
		return nil, err
	}
	t.log.WithFields(logrus.Fields{
		"accuracy":   report.Accuracy,
		"buy_f1":     report.Buy.F1,
		"buy_recall": report.Buy.Recall,
	}).Info("hold-out evaluation")

	stamp := time.Now().UTC().Format("20060102_150405")
	bundle := &artifact.Bundle{
		Model:  model,
		Scaler: scaler,
		Config: models.BundleConfig{
			TrainingRunTimestamp: stamp,
			StudyName:            t.cfg.Training.StudyName,
			SelectedFeatures:     selected,
			Params:               t.paramValues(r),
			RiskParams: models.RiskParams{
				StopLossPct:   r.StopLossPct,
				TakeProfitPct: r.TakeProfitPct,
				RiskPerTrade:  r.RiskPerTrade,
			},
		},
	}
	if err := artifact.NewStore(t.cfg.Paths.ModelsDir).SaveCandidate(bundle); err != nil {
		return nil, err
	}

	summary := &Summary{
		Timestamp:        stamp,
		StudyName:        t.cfg.Training.StudyName,
		Rows:             prices.Len(),
		TrainRows:        trainRows,
		TestRows:         testEnd - splitIdx,
		TrialsRun:        trialsRun,
		BestTrialNumber:  best.Number,
		BestValues:       best.Values,
		BestParams:       best.Params,
		SelectedFeatures: selected,
		TestAccuracy:     report.Accuracy,
		TestReport:       report,
	}
	if err := t.writeSummary(summary); err != nil {
		return nil, err
	}
	t.log.WithField("models_dir", t.cfg.Paths.ModelsDir).Info("candidate bundle saved")
	return summary, nil
}

func (t *Trainer) paramValues(r optimize.Resolved) map[string]models.ParamValue {
	specs := t.cfg.ParamSpecs()
	out := make(map[string]models.ParamValue, len(specs))
	for name, v := range r.Map() {
		out[name] = models.ParamValue{Value: v, Optimized: specs[name].Optimize}
	}
	return out
}

func (t *Trainer) writeSummary(s *Summary) error {
	blob, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode training summary: %w", err)
	}
	path := filepath.Join(t.cfg.Paths.ReportsDir, "training_summary.json")
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("write training summary: %w", err)
	}
	return nil
}

// priceSeries extracts the OHLC columns into the simulator's shape.
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

func indexOf(all, selected []string) []int {
	idx := make([]int, 0, len(selected))
	for _, name := range selected {
		for j, cand := range all {
			if cand == name {
				idx = append(idx, j)
				break
			}
		}
	}
	return idx
}

func selectColumns(x [][]float64, cols []int) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		sub := make([]float64, len(cols))
		for j, c := range cols {
			sub[j] = row[c]
		}
		out[i] = sub
	}
	return out
}

func countClasses(labels []float64) (pos, neg int) {
	for _, v := range labels {
		if v >= 0.5 {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}
