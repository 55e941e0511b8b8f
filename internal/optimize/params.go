package optimize

import (
	"fmt"
	"sort"

	"github.com/omerbh/tradelab-go/internal/ml"
)

// Param kinds control sampling and casting.
const (
	kindInt = iota
	kindFloat
	kindLogFloat
)

// Spec describes one tunable parameter: either a fixed value or a sampling
// range. Optimize=false with no FixedValue means "use the range midpoint".
type Spec struct {
	Min        float64
	Max        float64
	FixedValue *float64
	Optimize   bool
}

// paramDef binds a canonical parameter name to its kind. The table is the
// single source of truth for which names the search space accepts.
type paramDef struct {
	name string
	kind int
}

var paramTable = []paramDef{
	{"horizon", kindInt},
	{"threshold", kindFloat},
	{"top_n_features", kindInt},
	{"stop_loss_pct", kindFloat},
	{"take_profit_pct", kindFloat},
	{"risk_per_trade", kindFloat},
	{"learning_rate", kindLogFloat},
	{"n_estimators", kindInt},
	{"max_depth", kindInt},
}

func defFor(name string) (paramDef, bool) {
	for _, d := range paramTable {
		if d.name == name {
			return d, true
		}
	}
	return paramDef{}, false
}

// ParamNames returns the canonical tunable parameter names, sorted.
func ParamNames() []string {
	out := make([]string, len(paramTable))
	for i, d := range paramTable {
		out[i] = d.name
	}
	sort.Strings(out)
	return out
}

// Resolved is one fully materialized parameter assignment: labeling, feature
// selection, risk and model hyperparameters for a single trial.
// StopLossPct and TakeProfitPct are percent units here (1.5 means 1.5%) and
// are converted to fractions only at the simulation boundary.
type Resolved struct {
	Horizon       int
	Threshold     float64
	TopNFeatures  int
	StopLossPct   float64
	TakeProfitPct float64
	RiskPerTrade  float64
	LearningRate  float64
	NEstimators   int
	MaxDepth      int
}

// HyperParams extracts the model knobs; scale_pos_weight is data-dependent
// and set by the caller after counting labels.
func (r Resolved) HyperParams() ml.HyperParams {
	return ml.HyperParams{
		NEstimators:  r.NEstimators,
		MaxDepth:     r.MaxDepth,
		LearningRate: r.LearningRate,
	}
}

// Map returns the assignment as a name->value map for persistence.
func (r Resolved) Map() map[string]float64 {
	return map[string]float64{
		"horizon":         float64(r.Horizon),
		"threshold":       r.Threshold,
		"top_n_features":  float64(r.TopNFeatures),
		"stop_loss_pct":   r.StopLossPct,
		"take_profit_pct": r.TakeProfitPct,
		"risk_per_trade":  r.RiskPerTrade,
		"learning_rate":   r.LearningRate,
		"n_estimators":    float64(r.NEstimators),
		"max_depth":       float64(r.MaxDepth),
	}
}

// FromMap rebuilds a Resolved from a persisted trial's parameter map, the
// inverse of Map. Missing names fail rather than default silently.
func FromMap(m map[string]float64) (Resolved, error) {
	for _, d := range paramTable {
		if _, ok := m[d.name]; !ok {
			return Resolved{}, fmt.Errorf("parameter %q missing from trial record", d.name)
		}
	}
	return Resolved{
		Horizon:       int(m["horizon"] + 0.5),
		Threshold:     m["threshold"],
		TopNFeatures:  int(m["top_n_features"] + 0.5),
		StopLossPct:   m["stop_loss_pct"],
		TakeProfitPct: m["take_profit_pct"],
		RiskPerTrade:  m["risk_per_trade"],
		LearningRate:  m["learning_rate"],
		NEstimators:   int(m["n_estimators"] + 0.5),
		MaxDepth:      int(m["max_depth"] + 0.5),
	}, nil
}

// Resolve merges a sampled assignment with the configured specs: fixed
// parameters keep their configured value, optimized ones take the sampled
// value, and integer-kind parameters are rounded. Unknown spec names fail.
func Resolve(specs map[string]Spec, sampled map[string]float64) (Resolved, error) {
	values := make(map[string]float64, len(paramTable))
	for name, spec := range specs {
		def, ok := defFor(name)
		if !ok {
			return Resolved{}, fmt.Errorf("unknown parameter %q", name)
		}
		var v float64
		switch {
		case spec.Optimize:
			sv, ok := sampled[name]
			if !ok {
				return Resolved{}, fmt.Errorf("parameter %q marked for optimization but not sampled", name)
			}
			v = sv
		case spec.FixedValue != nil:
			v = *spec.FixedValue
		default:
			v = (spec.Min + spec.Max) / 2
		}
		if def.kind == kindInt {
			v = float64(int(v + 0.5))
		}
		values[name] = v
	}
	for _, d := range paramTable {
		if _, ok := values[d.name]; !ok {
			return Resolved{}, fmt.Errorf("parameter %q missing from configuration", d.name)
		}
	}
	return Resolved{
		Horizon:       int(values["horizon"]),
		Threshold:     values["threshold"],
		TopNFeatures:  int(values["top_n_features"]),
		StopLossPct:   values["stop_loss_pct"],
		TakeProfitPct: values["take_profit_pct"],
		RiskPerTrade:  values["risk_per_trade"],
		LearningRate:  values["learning_rate"],
		NEstimators:   int(values["n_estimators"]),
		MaxDepth:      int(values["max_depth"]),
	}, nil
}

// Validate rejects a spec table with inverted or non-positive ranges where
// positivity is required.
func Validate(specs map[string]Spec) error {
	for name, spec := range specs {
		def, ok := defFor(name)
		if !ok {
			return fmt.Errorf("unknown parameter %q", name)
		}
		if !spec.Optimize {
			continue
		}
		if spec.Min >= spec.Max {
			return fmt.Errorf("parameter %q: min %v must be below max %v", name, spec.Min, spec.Max)
		}
		if def.kind == kindLogFloat && spec.Min <= 0 {
			return fmt.Errorf("parameter %q: log-uniform range requires positive min, got %v", name, spec.Min)
		}
	}
	return nil
}
