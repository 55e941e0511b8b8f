package optimize

import "github.com/omerbh/tradelab-go/internal/models"

// ParetoFront returns the non-dominated completed trials under maximization
// of every objective. Input order is preserved.
func ParetoFront(trials []models.Trial) []models.Trial {
	front := make([]models.Trial, 0)
	for i, t := range trials {
		if t.State != models.TrialComplete || len(t.Values) == 0 {
			continue
		}
		dominated := false
		for j, u := range trials {
			if i == j || u.State != models.TrialComplete {
				continue
			}
			if u.Dominates(t) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, t)
		}
	}
	return front
}

// BestTrial picks the champion assignment. Single-objective studies take the
// highest score outright. Multi-objective studies restrict to the Pareto
// front and break the return/Sharpe trade-off in favor of the highest Sharpe,
// preferring consistency over raw return.
func BestTrial(trials []models.Trial, multi bool) (models.Trial, bool) {
	if multi {
		trials = ParetoFront(trials)
	}
	best := models.Trial{}
	found := false
	for _, t := range trials {
		if t.State != models.TrialComplete || len(t.Values) == 0 {
			continue
		}
		key := t.Values[0]
		bestKey := 0.0
		if found {
			bestKey = best.Values[0]
		}
		if multi && len(t.Values) > 1 {
			key = t.Values[1]
			if found && len(best.Values) > 1 {
				bestKey = best.Values[1]
			}
		}
		if !found || key > bestKey {
			best, found = t, true
		}
	}
	return best, found
}
