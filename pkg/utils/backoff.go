package utils

import (
	"math"
	"time"
)

// BackoffStrategy computes the wait before a retry attempt
type BackoffStrategy interface {
	// NextDelay returns the delay for the given attempt number (0-indexed)
	NextDelay(attempt int) time.Duration
}

// ConstantBackoff waits the same delay before every attempt
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns the constant delay
func (cb *ConstantBackoff) NextDelay(int) time.Duration {
	return cb.Delay
}

// LinearBackoff grows the delay by BaseDelay per attempt up to MaxDelay
type LinearBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NextDelay returns the linearly increasing delay
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	delay := lb.BaseDelay * time.Duration(attempt+1)
	if delay > lb.MaxDelay {
		return lb.MaxDelay
	}
	return delay
}

// ExponentialBackoff multiplies the delay per attempt up to MaxDelay.
// When Rand is set, the delay is scaled by a factor in [0.5, 1.5).
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Rand       *RandSource
}

// NextDelay returns the exponentially increasing delay
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	multiplier := eb.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := float64(eb.BaseDelay) * math.Pow(multiplier, float64(attempt))
	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}
	if eb.Rand != nil {
		delay *= 0.5 + eb.Rand.Float64()
	}
	return time.Duration(delay)
}

// NewBackoff returns the strategy named by kind ("constant", "linear" or
// "exponential"); unknown kinds fall back to exponential without jitter.
// A zero maxDelay is treated as 30s.
func NewBackoff(kind string, baseDelay, maxDelay time.Duration) BackoffStrategy {
	if maxDelay == 0 {
		maxDelay = 30 * time.Second
	}

	switch kind {
	case "constant":
		return &ConstantBackoff{Delay: baseDelay}
	case "linear":
		return &LinearBackoff{BaseDelay: baseDelay, MaxDelay: maxDelay}
	default:
		return &ExponentialBackoff{BaseDelay: baseDelay, Multiplier: 2.0, MaxDelay: maxDelay}
	}
}
