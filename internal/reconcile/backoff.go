package reconcile

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes exponential retry delays with symmetric jitter.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Max caps the delay before jitter is applied.
	Max time.Duration

	// Multiplier is the growth factor per attempt.
	Multiplier float64

	// Jitter is the maximum deviation as a fraction of the delay (0.0 to 1.0).
	Jitter float64
}

// DefaultBackoff returns base 1s, cap 30s, doubling, ±20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       1 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(b.Base) * math.Pow(mult, float64(attempt))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		delay += delay * b.Jitter * (2*rand.Float64() - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
