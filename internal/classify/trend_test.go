package classify

import (
	"testing"
	"time"
)

func TestTrendWithoutPredecessor(t *testing.T) {
	if got := temperatureTrend(sampleAt(t0, 0, 0, 50), nil, 15*time.Minute); got != nil {
		t.Fatalf("expected nil trend without predecessor, got %v", *got)
	}
}

func TestTrendZeroDelta(t *testing.T) {
	prev := sampleAt(t0, 0, 0, 50)
	current := sampleAt(t0, 0, 0, 55)
	if got := temperatureTrend(current, &prev, 15*time.Minute); got != nil {
		t.Fatalf("expected nil trend for zero time delta, got %v", *got)
	}
}

func TestTrendPredecessorOutsideLookback(t *testing.T) {
	prev := sampleAt(t0, 0, 0, 50)
	current := sampleAt(t0.Add(16*time.Minute), 0, 0, 55)
	if got := temperatureTrend(current, &prev, 15*time.Minute); got != nil {
		t.Fatalf("expected nil trend past the look-back window, got %v", *got)
	}
}

func TestTrendPerMinute(t *testing.T) {
	prev := sampleAt(t0, 0, 0, 50, 52)
	current := sampleAt(t0.Add(30*time.Second), 0, 0, 51, 53)
	got := temperatureTrend(current, &prev, 15*time.Minute)
	if got == nil {
		t.Fatalf("expected a trend")
	}
	if *got != 2 {
		t.Fatalf("expected 2 C/min, got %v", *got)
	}
}

func TestTrendStableIsZeroNotUnknown(t *testing.T) {
	prev := sampleAt(t0, 0, 0, 80, 80)
	current := sampleAt(t0.Add(time.Minute), 0, 0, 80, 80)
	got := temperatureTrend(current, &prev, 15*time.Minute)
	if got == nil || *got != 0 {
		t.Fatalf("expected measured-stable zero trend, got %v", got)
	}
}
