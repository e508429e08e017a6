package transport

import (
	"math/rand"
	"time"
)

// DefaultBackoff returns the reconnect backoff policy used when a session
// is not given an explicit one: 200ms up to 30s, doubling, with 20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    200 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: 0.2,
	}
}

// Next returns the delay for the given 0-indexed reconnect attempt.
func (b Backoff) Next(attempt int) time.Duration {
	d := float64(b.Min)
	for i := 0; i < attempt; i++ {
		d *= b.Factor
		if d > float64(b.Max) {
			d = float64(b.Max)
			break
		}
	}
	if b.Jitter > 0 {
		d += d * b.Jitter * (rand.Float64()*2 - 1)
	}
	if d < float64(b.Min) {
		d = float64(b.Min)
	}
	return time.Duration(d)
}
