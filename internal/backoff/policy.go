// Package backoff computes exponential retry delays with jitter. The
// summarization fallback chain uses it to pace per-model retry attempts.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the delay after the first failure.
	Initial time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor is the exponential multiplier applied per attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) added on top.
	Jitter float64
}

// Delay calculates the backoff for a given attempt number. Attempts start at
// 1; the formula is base = Initial * Factor^(attempt-1), plus base*Jitter*rand,
// clamped to Max.
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand computes the delay using a provided random value in [0, 1).
// Useful for deterministic tests.
func (p Policy) DelayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	jitter := base * p.Jitter * randomValue
	total := math.Min(float64(p.Max), base+jitter)
	return time.Duration(math.Round(total/float64(time.Millisecond))) * time.Millisecond
}

// DefaultPolicy returns the standard retry pacing.
// Initial: 100ms, Max: 30s, Factor: 2, Jitter: 10%
func DefaultPolicy() Policy {
	return Policy{
		Initial: 100 * time.Millisecond,
		Max:     30 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// QuickPolicy returns pacing for local, cheap retries.
// Initial: 50ms, Max: 5s, Factor: 1.5, Jitter: 5%
func QuickPolicy() Policy {
	return Policy{
		Initial: 50 * time.Millisecond,
		Max:     5 * time.Second,
		Factor:  1.5,
		Jitter:  0.05,
	}
}

// SlowPolicy returns pacing for expensive network retries.
// Initial: 500ms, Max: 60s, Factor: 2.5, Jitter: 20%
func SlowPolicy() Policy {
	return Policy{
		Initial: 500 * time.Millisecond,
		Max:     60 * time.Second,
		Factor:  2.5,
		Jitter:  0.2,
	}
}

// FromBase builds a policy around a caller-supplied initial delay, keeping
// default growth and jitter. Non-positive delays fall back to DefaultPolicy.
func FromBase(initial time.Duration) Policy {
	if initial <= 0 {
		return DefaultPolicy()
	}
	p := DefaultPolicy()
	p.Initial = initial
	return p
}
