package engine

import (
	"testing"
	"time"
)

func TestBackoffDoublesUpToCap(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 8 * time.Second}

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for i, expected := range want {
		if got := b.Next(); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, expected, got)
		}
	}
	if b.Attempts() != len(want) {
		t.Fatalf("expected %d attempts consumed, got %d", len(want), b.Attempts())
	}
}

func TestBackoffDelaysStrictlyIncreaseBeforeCap(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: time.Minute}

	prev := time.Duration(0)
	for i := 0; i < 6; i++ {
		delay := b.Next()
		if delay <= prev {
			t.Fatalf("attempt %d: delay %s not greater than previous %s", i+1, delay, prev)
		}
		prev = delay
	}
}

func TestBackoffReset(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: time.Minute}
	b.Next()
	b.Next()
	b.Reset()

	if b.Attempts() != 0 {
		t.Fatalf("expected zero attempts after reset, got %d", b.Attempts())
	}
	if got := b.Next(); got != time.Second {
		t.Fatalf("expected base delay after reset, got %s", got)
	}
}
