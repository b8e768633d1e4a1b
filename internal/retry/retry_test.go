package retry

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		initial time.Duration
		max     time.Duration
		factor  float64
		want    time.Duration
	}{
		{1, 100 * time.Millisecond, 10 * time.Second, 2.0, 100 * time.Millisecond},
		{2, 100 * time.Millisecond, 10 * time.Second, 2.0, 200 * time.Millisecond},
		{3, 100 * time.Millisecond, 10 * time.Second, 2.0, 400 * time.Millisecond},
		{10, 100 * time.Millisecond, 1 * time.Second, 2.0, 1 * time.Second}, // Capped at max
	}

	for _, tt := range tests {
		got := Backoff(tt.attempt, tt.initial, tt.max, tt.factor)
		if got != tt.want {
			t.Errorf("Backoff(%d, %v, %v, %v) = %v, want %v",
				tt.attempt, tt.initial, tt.max, tt.factor, got, tt.want)
		}
	}
}

func TestPolicyBackoffWithinJitterBand(t *testing.T) {
	base := 200 * time.Millisecond
	max := 10 * time.Second

	for attempt := 1; attempt <= 4; attempt++ {
		unjittered := Backoff(attempt, base, max, 2.0)
		lower := time.Duration(float64(unjittered) * 0.8)
		upper := time.Duration(float64(unjittered) * 1.2)

		for i := 0; i < 20; i++ {
			got := PolicyBackoff(attempt, base, max)
			if got < lower || got > upper {
				t.Fatalf("attempt %d: PolicyBackoff = %v, want within [%v, %v]", attempt, got, lower, upper)
			}
		}
	}
}

func TestPolicyBackoffCapsAtMax(t *testing.T) {
	max := 500 * time.Millisecond
	got := PolicyBackoff(10, 200*time.Millisecond, max)
	if got > max {
		t.Errorf("PolicyBackoff = %v, want capped at %v", got, max)
	}
}
