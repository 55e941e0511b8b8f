package optimize

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/omerbh/tradelab-go/internal/dataset"
	"github.com/omerbh/tradelab-go/internal/ml"
	"github.com/omerbh/tradelab-go/internal/sim"
)

// FailureScore is returned for trials that cannot produce a single valid
// fold. It is far below any plausible real score so the optimizer ranks such
// trials last instead of crashing the study.
const FailureScore = -5.0

// Metric names accepted as single-objective targets.
const (
	MetricTotalReturn = "total_return"
	MetricSharpe      = "sharpe_ratio"
)

// Objective evaluates one parameter assignment by walk-forward
// cross-validation over the training window: label, split, rank, scale,
// fit and simulate per fold, then average the fold metrics.
//
// Prices and Features must be row-aligned over the full data frame;
// TrainEnd bounds the rows the objective may touch. Everything at TrainEnd
// and beyond is the hold-out set and is never read here.
type Objective struct {
	Prices       sim.Series
	Features     [][]float64
	FeatureNames []string
	TrainEnd     int
	CVSplits     int
	SimConfig    sim.Config
	TargetMetric string
	Multi        bool
	Seed         int64
	Log          *logrus.Logger
}

// Evaluate scores one assignment. It never returns an error: any condition
// that invalidates the whole trial yields failure scores, and per-fold
// problems skip only that fold. The returned slice has one element in
// single-objective mode and two (mean return, mean Sharpe) in multi.
func (o *Objective) Evaluate(r Resolved) []float64 {
	labels, err := dataset.DynamicTarget(o.Prices.Close, r.Horizon, r.Threshold)
	if err != nil {
		o.Log.WithError(err).Warn("trial labeling failed")
		return o.failure()
	}
	defined, _ := dataset.DefinedPrefix(labels)
	n := o.TrainEnd
	if defined < n {
		n = defined
	}
	if n < o.CVSplits*2 {
		o.Log.WithFields(logrus.Fields{
			"usable_rows": n,
			"cv_splits":   o.CVSplits,
		}).Warn("too few labeled rows for cross-validation")
		return o.failure()
	}

	folds, err := dataset.TimeSeriesFolds(n, o.CVSplits)
	if err != nil {
		o.Log.WithError(err).Warn("fold construction failed")
		return o.failure()
	}

	var returns, sharpes []float64
	for fi, fold := range folds {
		ret, sharpe, err := o.evaluateFold(r, labels, fold)
		if err != nil {
			o.Log.WithError(err).WithField("fold", fi).Debug("fold skipped")
			continue
		}
		returns = append(returns, ret)
		sharpes = append(sharpes, sharpe)
	}
	if len(returns) == 0 {
		return o.failure()
	}
	return o.scores(mean(returns), mean(sharpes))
}

// evaluateFold runs the full per-fold pipeline. Feature ranking and scaling
// are fitted on the fold's training rows only.
func (o *Objective) evaluateFold(r Resolved, labels []float64, fold dataset.Fold) (float64, float64, error) {
	trainY := labels[:fold.TrainEnd]
	pos, neg := 0, 0
	for _, v := range trainY {
		if v >= 0.5 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0, 0, fmt.Errorf("single-class training block")
	}
	if pos < 5 {
		return 0, 0, fmt.Errorf("only %d positive labels", pos)
	}

	trainX := o.Features[:fold.TrainEnd]
	selected, _, err := ml.RankFeatures(trainX, trainY, o.FeatureNames, r.TopNFeatures, o.Seed)
	if err != nil {
		return 0, 0, fmt.Errorf("rank features: %w", err)
	}
	cols := columnIndices(o.FeatureNames, selected)

	var scaler dataset.StandardScaler
	scaledTrain, err := scaler.FitTransform(project(trainX, cols))
	if err != nil {
		return 0, 0, err
	}
	scaledVal, err := scaler.Transform(project(o.Features[fold.ValStart:fold.ValEnd], cols))
	if err != nil {
		return 0, 0, err
	}

	hp := r.HyperParams()
	hp.ScalePosWeight = float64(neg) / math.Max(1, float64(pos))
	model, err := ml.TrainClassifier(scaledTrain, trainY, selected, hp)
	if err != nil {
		return 0, 0, fmt.Errorf("fit fold model: %w", err)
	}
	preds := model.Predict(scaledVal)

	cfg := o.SimConfig
	cfg.StopLossPct = r.StopLossPct / 100
	cfg.TakeProfitPct = r.TakeProfitPct / 100
	cfg.RiskPerTrade = r.RiskPerTrade
	res, err := sim.Simulate(o.Prices.Slice(fold.ValStart, fold.ValEnd), preds, cfg)
	if err != nil {
		return 0, 0, fmt.Errorf("simulate fold: %w", err)
	}
	return res.Metrics.TotalReturn, res.Metrics.SharpeRatio, nil
}

func (o *Objective) failure() []float64 {
	if o.Multi {
		return []float64{FailureScore, FailureScore}
	}
	return []float64{FailureScore}
}

func (o *Objective) scores(meanReturn, meanSharpe float64) []float64 {
	if o.Multi {
		return []float64{meanReturn, meanSharpe}
	}
	if o.TargetMetric == MetricSharpe {
		return []float64{meanSharpe}
	}
	return []float64{meanReturn}
}

// columnIndices maps selected feature names back to their column positions
// in the full feature matrix.
func columnIndices(all, selected []string) []int {
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

// project extracts the given columns from row-major x.
func project(x [][]float64, cols []int) [][]float64 {
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

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
