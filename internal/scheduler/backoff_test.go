package scheduler

import (
	"testing"
	"time"

	"github.com/evanofslack/ddns-sync/internal/config"
)

func TestDelayFor(t *testing.T) {
	b := config.Backoff{Base: 30 * time.Second, Max: time.Hour}

	tests := []struct {
		level int
		want  time.Duration
	}{
		{level: 0, want: 30 * time.Second},
		{level: 1, want: time.Minute},
		{level: 2, want: 2 * time.Minute},
		{level: 6, want: 32 * time.Minute},
		{level: 7, want: time.Hour},
		{level: 20, want: time.Hour},
		{level: 500, want: time.Hour}, // doubling must not overflow
	}
	for _, tt := range tests {
		if got := delayFor(tt.level, b); got != tt.want {
			t.Errorf("delayFor(%d) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestDelayForMonotonic(t *testing.T) {
	b := config.Backoff{Base: time.Second, Max: 10 * time.Minute}
	prev := time.Duration(0)
	for level := 0; level < 64; level++ {
		d := delayFor(level, b)
		if d < prev {
			t.Fatalf("delay decreased at level %d: %s < %s", level, d, prev)
		}
		if d > b.Max {
			t.Fatalf("delay %s exceeds max %s at level %d", d, b.Max, level)
		}
		prev = d
	}
}

func TestWithJitter(t *testing.T) {
	base := time.Minute
	for i := 0; i < 100; i++ {
		d := withJitter(base, 0.2)
		if d < 48*time.Second || d > 72*time.Second {
			t.Fatalf("jittered delay %s outside [48s, 72s]", d)
		}
	}
	if got := withJitter(base, 0); got != base {
		t.Errorf("zero jitter changed delay: %s", got)
	}
}

func TestStartupJitter(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := startupJitter(5 * time.Minute)
		if d < 0 || d >= 30*time.Second {
			t.Fatalf("startup jitter %s outside [0, 30s)", d)
		}
	}
	for i := 0; i < 100; i++ {
		d := startupJitter(10 * time.Second)
		if d < 0 || d >= 10*time.Second {
			t.Fatalf("startup jitter %s outside [0, interval)", d)
		}
	}
}
