package scheduler

import (
	"math/rand"
	"time"

	"github.com/evanofslack/ddns-sync/internal/config"
)

// delayFor returns the un-jittered backoff delay for a retry level:
// base doubled per level, capped at max.
func delayFor(level int, b config.Backoff) time.Duration {
	d := b.Base
	for i := 0; i < level; i++ {
		d *= 2
		if d >= b.Max || d <= 0 {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// withJitter spreads a delay by the configured fraction so records
// sharing echo or provider endpoints do not synchronize.
func withJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	spread := float64(d) * fraction
	jittered := float64(d) + (rand.Float64()*2-1)*spread
	if jittered < 0 {
		return 0
	}
	return time.Duration(jittered)
}

// startupJitter delays the first tick of each record by a random span
// so configured records do not all check at once on process start.
func startupJitter(interval time.Duration) time.Duration {
	max := 30 * time.Second
	if interval < max {
		max = interval
	}
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
