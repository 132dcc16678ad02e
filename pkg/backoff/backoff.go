package backoff

import (
	"time"
)

/*
Backoff tracks the delay between repeated reconnection attempts for a single
transport. The delay starts at the minimum, doubles on every failed attempt
up to the maximum, and returns to the minimum on success.

A Backoff is owned by the component whose reconnection it governs and is not
safe for concurrent use.
*/
type Backoff struct {
	min   time.Duration
	max   time.Duration
	delay time.Duration
}

func New(min, max time.Duration) *Backoff {
	return &Backoff{
		min:   min,
		max:   max,
		delay: min,
	}
}

// Delay returns the time to wait before the next attempt.
func (b *Backoff) Delay() time.Duration {
	return b.delay
}

// Fail doubles the delay for the next attempt, capped at the maximum.
func (b *Backoff) Fail() {
	b.delay *= 2
	if b.delay > b.max {
		b.delay = b.max
	}
}

// Reset restores the delay to the minimum. Invoked after a successful
// connection.
func (b *Backoff) Reset() {
	b.delay = b.min
}

// For returns the delay preceding the given attempt number under the same
// doubling policy, with attempt 1 being the first retry. Used by broker
// clients that report an attempt count instead of tracking state.
func For(min, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := min
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}

	if delay > max {
		delay = max
	}

	return delay
}
