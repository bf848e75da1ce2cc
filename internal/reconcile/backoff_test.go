package reconcile

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 30 * time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{20, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := DefaultBackoff()

	for attempt := 0; attempt < 8; attempt++ {
		nominal := Backoff{Base: b.Base, Max: b.Max, Multiplier: b.Multiplier}.Delay(attempt)
		lo := time.Duration(float64(nominal) * (1 - b.Jitter))
		hi := time.Duration(float64(nominal) * (1 + b.Jitter))
		for i := 0; i < 50; i++ {
			got := b.Delay(attempt)
			if got < lo-time.Microsecond || got > hi+time.Microsecond {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v]", attempt, got, lo, hi)
			}
		}
	}
}
