package models

// TrialState reports how a trial evaluation ended.
type TrialState string

const (
	TrialComplete TrialState = "complete"
	TrialFailed   TrialState = "failed"
)

// Trial records one evaluation of the cross-validated objective: the fully
// resolved parameter assignment (fixed and sampled) and the resulting
// objective value(s), one scalar per objective.
type Trial struct {
	ID     string             `json:"id"`
	Number int                `json:"number"`
	State  TrialState         `json:"state"`
	Params map[string]float64 `json:"params"`
	Values []float64          `json:"values"`
	Attrs  map[string]float64 `json:"attrs,omitempty"`
}

// Dominates reports whether t is at least as good as other on every
// objective and strictly better on at least one (maximization).
func (t Trial) Dominates(other Trial) bool {
	if len(t.Values) != len(other.Values) || len(t.Values) == 0 {
		return false
	}
	strict := false
	for i := range t.Values {
		if t.Values[i] < other.Values[i] {
			return false
		}
		if t.Values[i] > other.Values[i] {
			strict = true
		}
	}
	return strict
}
