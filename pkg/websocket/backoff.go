package websocket

import (
	"math/rand"
	"time"
)

// DefaultReconnectDelay is the fixed delay applied before redialing the feed.
const DefaultReconnectDelay = 5 * time.Second

// FixedBackoff waits the same duration on every attempt.
func FixedBackoff(d time.Duration) Backoff {
	if d <= 0 {
		d = DefaultReconnectDelay
	}
	return Backoff{Min: d, Max: d}
}

// Next is the wait after the given 1-based attempt, growing by Factor from Min
// up to Max.
func (b Backoff) Next(attempt int) time.Duration {
	lo, hi := b.Min, b.Max
	if lo <= 0 {
		lo = 100 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2
	}

	wait := lo
	for i := 1; i < attempt && wait < hi; i++ {
		wait = min(time.Duration(float64(wait)*factor), hi)
	}
	if b.Jitter <= 0 {
		return wait
	}

	spread := float64(wait) * min(b.Jitter, 1)
	return wait + time.Duration((rand.Float64()*2-1)*spread)
}
