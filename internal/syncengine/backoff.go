package syncengine

import (
	"math/rand"
	"time"
)

// Delay is the wait before the next attempt after k transient failures:
// min(base*2^k, maxDelay).
func Delay(k int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if k < 0 {
		k = 0
	}
	d := base
	for i := 0; i < k; i++ {
		if d >= maxDelay/2 {
			return maxDelay
		}
		d *= 2
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

type jitter struct {
	src    *rand.Rand
	window time.Duration
}

func newJitter(window time.Duration) *jitter {
	return &jitter{src: rand.New(rand.NewSource(time.Now().UnixNano())), window: window}
}

// apply adds up to window of random delay to d.
func (j *jitter) apply(d time.Duration) time.Duration {
	if d <= 0 || j.window <= 0 {
		return d
	}
	return d + time.Duration(j.src.Int63n(int64(j.window)))
}
