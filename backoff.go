package wsroom

import (
	"math/rand/v2"
	"time"
)

// Backoff bounds
const (
	BackoffBase = 250 * time.Millisecond
	BackoffCap  = 15 * time.Second
)

// BackoffFloor is the smallest delay BackoffDelay can return for attempt.
// Formula: min(BackoffCap, BackoffBase * 2^attempt)
func BackoffFloor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	floor := BackoffBase
	for i := 0; i < attempt; i++ {
		floor *= 2
		if floor >= BackoffCap {
			return BackoffCap
		}
	}
	return floor
}

// BackoffDelay returns the wait before reconnect attempt number attempt:
// the floor plus up to half of it in jitter, clamped to [0, BackoffCap].
func BackoffDelay(attempt int) time.Duration {
	floor := BackoffFloor(attempt)
	delay := floor + time.Duration(rand.Int64N(int64(floor/2)+1))
	if delay > BackoffCap {
		return BackoffCap
	}
	if delay < 0 {
		return 0
	}
	return delay
}
