package optimize

import (
	"math"
	"math/rand"
	"sort"
	"sync"
)

const (
	surrogateCandidates = 24
	surrogateLR         = 0.02
	surrogateL2         = 1e-4
	surrogateClip       = 5.0
	exploreEpsilon      = 0.10
)

// Sampler draws parameter assignments for trials. The first startup trials
// are pure random exploration; afterwards a linear surrogate fitted online to
// the observed scores steers sampling toward promising regions, with an
// epsilon of residual random draws so the search never collapses early.
//
// Sampler is safe for concurrent use; the startup phase runs trials in
// parallel.
type Sampler struct {
	mu      sync.Mutex
	specs   map[string]Spec
	names   []string
	startup int
	rng     *rand.Rand

	weights  []float64
	observed int
}

// NewSampler builds a sampler over the Optimize=true entries of specs.
func NewSampler(specs map[string]Spec, startup int, seed int64) *Sampler {
	names := make([]string, 0, len(specs))
	for name, spec := range specs {
		if spec.Optimize {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if startup < 1 {
		startup = 1
	}
	return &Sampler{
		specs:   specs,
		names:   names,
		startup: startup,
		rng:     rand.New(rand.NewSource(seed)),
		weights: make([]float64, len(names)+1),
	}
}

// Sample returns one assignment for the optimized parameters.
func (s *Sampler) Sample() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.observed < s.startup || s.rng.Float64() < exploreEpsilon {
		return s.randomLocked()
	}

	best := s.randomLocked()
	bestScore := s.predictLocked(best)
	for i := 1; i < surrogateCandidates; i++ {
		cand := s.randomLocked()
		if score := s.predictLocked(cand); score > bestScore {
			best, bestScore = cand, score
		}
	}
	return best
}

// Observe feeds a finished trial's scalar score back into the surrogate.
// Non-finite scores are discarded; sentinel scores still count as (bad)
// evidence so the surrogate learns to avoid their region.
func (s *Sampler) Observe(sampled map[string]float64, score float64) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if score > surrogateClip {
		score = surrogateClip
	}
	if score < -surrogateClip {
		score = -surrogateClip
	}
	x := s.featuresLocked(sampled)
	pred := dot(s.weights, x)
	residual := pred - score
	if residual > surrogateClip {
		residual = surrogateClip
	}
	if residual < -surrogateClip {
		residual = -surrogateClip
	}
	for i := range s.weights {
		s.weights[i] -= surrogateLR * (residual*x[i] + surrogateL2*s.weights[i])
	}
	s.observed++
}

// randomLocked draws each optimized parameter uniformly over its range, in
// log space for log-uniform parameters.
func (s *Sampler) randomLocked() map[string]float64 {
	out := make(map[string]float64, len(s.names))
	for _, name := range s.names {
		spec := s.specs[name]
		def, _ := defFor(name)
		u := s.rng.Float64()
		if def.kind == kindLogFloat {
			lo, hi := math.Log(spec.Min), math.Log(spec.Max)
			out[name] = math.Exp(lo + u*(hi-lo))
		} else {
			out[name] = spec.Min + u*(spec.Max-spec.Min)
		}
	}
	return out
}

func (s *Sampler) predictLocked(sampled map[string]float64) float64 {
	return dot(s.weights, s.featuresLocked(sampled))
}

// featuresLocked maps an assignment onto [0,1] coordinates plus a bias term.
func (s *Sampler) featuresLocked(sampled map[string]float64) []float64 {
	x := make([]float64, len(s.names)+1)
	x[len(s.names)] = 1
	for i, name := range s.names {
		spec := s.specs[name]
		def, _ := defFor(name)
		v := sampled[name]
		if def.kind == kindLogFloat {
			lo, hi := math.Log(spec.Min), math.Log(spec.Max)
			if hi > lo {
				x[i] = (math.Log(v) - lo) / (hi - lo)
			}
		} else if spec.Max > spec.Min {
			x[i] = (v - spec.Min) / (spec.Max - spec.Min)
		}
	}
	return x
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
