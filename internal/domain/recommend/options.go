package recommend

import "math/rand"

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithRandom overrides the uniform [0,1) source. Tests use a fixed value
// to make rankings deterministic.
func WithRandom(fn func() float64) Option {
	return func(s *Scorer) {
		if fn != nil {
			s.random = fn
		}
	}
}

// defaultRandom draws from the shared math/rand source, which is safe for
// concurrent use.
func defaultRandom() float64 {
	return rand.Float64() //nolint:gosec // discovery jitter, not crypto
}
