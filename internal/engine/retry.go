package engine

import (
	"math"
	"time"
)

// Default retry policy.
const (
	DefaultRetryBase        = 500 * time.Millisecond
	DefaultRetryMax         = 30 * time.Second
	DefaultRetryMultiplier  = 2.0
	DefaultRetryMaxAttempts = 5
)

// RetryPolicy controls how tree construction is retried when a store is
// unavailable. Delays grow exponentially from Base by Multiplier, capped
// at Max. A Multiplier of 1 gives a fixed delay.
type RetryPolicy struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64

	// MaxAttempts bounds the total number of attempts, the first one
	// included. Zero means unlimited; one disables retries.
	MaxAttempts int
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        DefaultRetryBase,
		Max:         DefaultRetryMax,
		Multiplier:  DefaultRetryMultiplier,
		MaxAttempts: DefaultRetryMaxAttempts,
	}
}

// Backoff returns the delay before the retry that follows the given failed
// attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.Base) * math.Pow(mult, float64(attempt-1))
	if p.Max > 0 && (d > float64(p.Max) || math.IsInf(d, 0)) {
		return p.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Exhausted reports whether no retry may follow the given attempt.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}
