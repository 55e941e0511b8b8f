package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(v float64) Spec {
	return Spec{FixedValue: &v}
}

// baseSpecs returns a full spec table with every parameter fixed. Tests
// flip individual entries to Optimize as needed.
func baseSpecs() map[string]Spec {
	return map[string]Spec{
		"horizon":         fixed(5),
		"threshold":       fixed(0.01),
		"top_n_features":  fixed(2),
		"stop_loss_pct":   fixed(2.0),
		"take_profit_pct": fixed(4.0),
		"risk_per_trade":  fixed(0.02),
		"learning_rate":   fixed(0.1),
		"n_estimators":    fixed(30),
		"max_depth":       fixed(3),
	}
}

func TestResolveFixedAndSampled(t *testing.T) {
	specs := baseSpecs()
	specs["horizon"] = Spec{Min: 1, Max: 20, Optimize: true}
	specs["learning_rate"] = Spec{Min: 0.001, Max: 0.3, Optimize: true}

	r, err := Resolve(specs, map[string]float64{
		"horizon":       7.6,
		"learning_rate": 0.05,
	})
	require.NoError(t, err)

	// Integer parameters round; float parameters pass through.
	assert.Equal(t, 8, r.Horizon)
	assert.InDelta(t, 0.05, r.LearningRate, 1e-12)

	// Fixed parameters ignore the sample map.
	assert.Equal(t, 2, r.TopNFeatures)
	assert.InDelta(t, 2.0, r.StopLossPct, 1e-12)
	assert.Equal(t, 30, r.NEstimators)
}

func TestResolveMidpointFallback(t *testing.T) {
	specs := baseSpecs()
	specs["threshold"] = Spec{Min: 0.0, Max: 0.04}

	r, err := Resolve(specs, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, r.Threshold, 1e-12)
}

func TestResolveErrors(t *testing.T) {
	specs := baseSpecs()
	specs["horizon"] = Spec{Min: 1, Max: 20, Optimize: true}
	_, err := Resolve(specs, map[string]float64{})
	assert.ErrorContains(t, err, "not sampled")

	specs = baseSpecs()
	specs["momentum_window"] = fixed(3)
	_, err = Resolve(specs, nil)
	assert.ErrorContains(t, err, "unknown parameter")

	specs = baseSpecs()
	delete(specs, "max_depth")
	_, err = Resolve(specs, nil)
	assert.ErrorContains(t, err, "missing from configuration")
}

func TestResolveMap(t *testing.T) {
	r, err := Resolve(baseSpecs(), nil)
	require.NoError(t, err)

	m := r.Map()
	assert.Len(t, m, 9)
	assert.Equal(t, 5.0, m["horizon"])
	assert.Equal(t, 0.02, m["risk_per_trade"])
}

func TestValidate(t *testing.T) {
	specs := baseSpecs()
	require.NoError(t, Validate(specs))

	specs["horizon"] = Spec{Min: 20, Max: 1, Optimize: true}
	assert.ErrorContains(t, Validate(specs), "below max")

	specs = baseSpecs()
	specs["learning_rate"] = Spec{Min: 0, Max: 0.3, Optimize: true}
	assert.ErrorContains(t, Validate(specs), "positive min")
}

func TestParamNamesSorted(t *testing.T) {
	names := ParamNames()
	require.Len(t, names, 9)
	assert.Equal(t, "horizon", names[0])
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}
