package ml

import (
	"fmt"
	"math/rand"
	"sort"
)

// FeatureScore pairs a feature name with its permutation importance.
type FeatureScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// RankFeatures scores features by permutation importance and returns the top
// topN names in descending order. A probe model with fixed hyperparameters is
// fitted on the given rows, then each column is shuffled in turn and the drop
// in accuracy becomes that feature's score. The seed pins the shuffles so a
// rerun ranks identically.
//
// Callers must pass training rows only. Ranking on rows the model will later
// be validated against leaks the validation window into feature selection.
func RankFeatures(x [][]float64, y []float64, names []string, topN int, seed int64) ([]string, []FeatureScore, error) {
	if topN <= 0 {
		return nil, nil, fmt.Errorf("topN must be positive, got %d", topN)
	}
	probe, err := TrainClassifier(x, y, names, DefaultHyperParams())
	if err != nil {
		return nil, nil, fmt.Errorf("fit ranking probe: %w", err)
	}

	baseline := accuracy(probe.Predict(x), y)
	rng := rand.New(rand.NewSource(seed))
	scores := make([]FeatureScore, len(names))
	shuffled := make([][]float64, len(x))
	for i := range x {
		shuffled[i] = append([]float64(nil), x[i]...)
	}

	for j, name := range names {
		perm := rng.Perm(len(x))
		for i := range x {
			shuffled[i][j] = x[perm[i]][j]
		}
		scores[j] = FeatureScore{Name: name, Score: baseline - accuracy(probe.Predict(shuffled), y)}
		for i := range x {
			shuffled[i][j] = x[i][j]
		}
	}

	// Stable sort keeps the original column order for tied scores, so equal
	// importances cannot reshuffle the selection between runs.
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].Score > scores[b].Score })

	if topN > len(scores) {
		topN = len(scores)
	}
	selected := make([]string, topN)
	for i := 0; i < topN; i++ {
		selected[i] = scores[i].Name
	}
	return selected, scores, nil
}

func accuracy(pred, truth []float64) float64 {
	if len(pred) == 0 || len(pred) != len(truth) {
		return 0
	}
	hits := 0
	for i := range pred {
		p, q := 0, 0
		if pred[i] >= 0.5 {
			p = 1
		}
		if truth[i] >= 0.5 {
			q = 1
		}
		if p == q {
			hits++
		}
	}
	return float64(hits) / float64(len(pred))
}
