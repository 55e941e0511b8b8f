package ml

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/rmera/boo"
	"github.com/rmera/boo/utils"
)

// HyperParams are the tunable gradient-boosting knobs exposed to the
// optimizer. ScalePosWeight compensates for the label imbalance a forward
// return threshold produces (most bars are not buys).
type HyperParams struct {
	NEstimators    int
	MaxDepth       int
	LearningRate   float64
	ScalePosWeight float64
}

// DefaultHyperParams returns a fixed, mid-range configuration used wherever a
// model is needed but no tuned parameters exist yet (feature ranking).
func DefaultHyperParams() HyperParams {
	return HyperParams{
		NEstimators:  100,
		MaxDepth:     4,
		LearningRate: 0.1,
	}
}

// Classifier wraps a trained boosted-tree ensemble together with the feature
// names it was fitted on, so a persisted model can refuse mismatched input.
type Classifier struct {
	featureNames []string
	boost        *boo.MultiClass
}

type classifierArtifact struct {
	FeatureNames []string `json:"feature_names"`
	ModelText    string   `json:"model_text"`
}

// TrainClassifier fits a binary boosted-tree classifier. Labels must contain
// both classes; a one-class training window is the caller's signal to skip
// the fold, not something to train through.
//
// The underlying library has no per-sample weights, so ScalePosWeight is
// realized by deterministic oversampling: each positive row is repeated
// round(w)-1 extra times. This keeps the gradient contribution of the
// minority class roughly where a weighted fit would put it.
func TrainClassifier(x [][]float64, y []float64, featureNames []string, hp HyperParams) (*Classifier, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("invalid training set: %d rows, %d labels", len(x), len(y))
	}
	if len(featureNames) == 0 || len(featureNames) != len(x[0]) {
		return nil, fmt.Errorf("feature names (%d) do not match feature columns (%d)", len(featureNames), len(x[0]))
	}

	rows := make([][]float64, 0, len(x))
	labels := make([]int, 0, len(y))
	classes := map[int]bool{}
	extra := 0
	if hp.ScalePosWeight > 1 {
		extra = int(hp.ScalePosWeight+0.5) - 1
	}
	for i, v := range y {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("undefined label at row %d", i)
		}
		label := 0
		if v >= 0.5 {
			label = 1
		}
		classes[label] = true
		rows = append(rows, x[i])
		labels = append(labels, label)
		if label == 1 {
			for r := 0; r < extra; r++ {
				rows = append(rows, x[i])
				labels = append(labels, 1)
			}
		}
	}
	if len(classes) < 2 {
		return nil, fmt.Errorf("training window has a single class")
	}

	if hp.NEstimators <= 0 {
		hp.NEstimators = DefaultHyperParams().NEstimators
	}
	if hp.MaxDepth <= 0 {
		hp.MaxDepth = DefaultHyperParams().MaxDepth
	}
	if hp.LearningRate <= 0 {
		hp.LearningRate = DefaultHyperParams().LearningRate
	}

	o := boo.DefaultXOptions()
	o.Rounds = hp.NEstimators
	o.LearningRate = hp.LearningRate
	o.MaxDepth = hp.MaxDepth
	o.Verbose = false
	o.EarlyStop = 0

	model := boo.NewMultiClass(&utils.DataBunch{
		Data:   rows,
		Labels: labels,
		Keys:   append([]string(nil), featureNames...),
	}, o)
	if model == nil {
		return nil, fmt.Errorf("boosted tree training failed")
	}
	return &Classifier{
		featureNames: append([]string(nil), featureNames...),
		boost:        model,
	}, nil
}

// FeatureNames returns a copy of the fitted feature name list, in order.
func (c *Classifier) FeatureNames() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.featureNames))
	copy(out, c.featureNames)
	return out
}

// PredictProbaSingle returns the positive-class probability for one row.
func (c *Classifier) PredictProbaSingle(sample []float64) float64 {
	if c == nil || c.boost == nil {
		return 0.5
	}
	probs := c.boost.PredictSingle(sample)
	labels := c.boost.ClassLabels()
	for i := range labels {
		if labels[i] == 1 {
			return clamp01(probs[i])
		}
	}
	if len(probs) == 0 {
		return 0.5
	}
	return clamp01(probs[len(probs)-1])
}

// PredictProba returns positive-class probabilities for every row.
func (c *Classifier) PredictProba(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = c.PredictProbaSingle(x[i])
	}
	return out
}

// Predict returns hard 0/1 decisions at the 0.5 threshold.
func (c *Classifier) Predict(x [][]float64) []float64 {
	out := c.PredictProba(x)
	for i, p := range out {
		if p > 0.5 {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return out
}

// Encode serializes the classifier into a self-contained JSON blob carrying
// both the tree ensemble and the feature order it expects.
func (c *Classifier) Encode() ([]byte, error) {
	if c == nil || c.boost == nil {
		return nil, fmt.Errorf("cannot encode nil classifier")
	}
	var buf bytes.Buffer
	if err := boo.JSONMultiClass(c.boost, "softmax", &buf); err != nil {
		return nil, fmt.Errorf("encode classifier: %w", err)
	}
	return json.Marshal(classifierArtifact{
		FeatureNames: c.featureNames,
		ModelText:    buf.String(),
	})
}

// DecodeClassifier restores a classifier produced by Encode.
func DecodeClassifier(blob []byte) (*Classifier, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty classifier blob")
	}
	var a classifierArtifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, fmt.Errorf("decode classifier: %w", err)
	}
	model, err := boo.UnJSONMultiClass(bufio.NewReader(bytes.NewReader([]byte(a.ModelText))))
	if err != nil {
		return nil, fmt.Errorf("decode classifier trees: %w", err)
	}
	return &Classifier{
		featureNames: append([]string(nil), a.FeatureNames...),
		boost:        model,
	}, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
