package engine

import "time"

// Backoff computes the delay before each restart attempt. The delay doubles
// per attempt from Base up to Cap. It is pure state transformed by Next and
// Reset, with no scheduling of its own.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration

	attempts int
}

// Next returns the delay to wait before the upcoming attempt and advances the
// attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Base
	for i := 0; i < b.attempts; i++ {
		delay *= 2
		if delay >= b.Cap {
			delay = b.Cap
			break
		}
	}
	if delay > b.Cap {
		delay = b.Cap
	}
	b.attempts++
	return delay
}

// Attempts returns how many attempts have been consumed since the last reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Reset clears the attempt counter after a confirmed recovery.
func (b *Backoff) Reset() {
	b.attempts = 0
}
