package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// ErrExhausted is returned by Do when every attempt reported not done
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy is a bounded retry policy: at most MaxAttempts tries, Delay between
// consecutive tries, plus up to Jitter of random extra wait.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Jitter      time.Duration
}

// Fixed returns a policy with a constant delay and no jitter
func Fixed(maxAttempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, Delay: delay}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Allows reports whether another attempt is permitted after `used` attempts
func (p Policy) Allows(used int) bool {
	return used < p.attempts()
}

// Backoff returns the wait before the next attempt
func (p Policy) Backoff() time.Duration {
	if p.Jitter <= 0 {
		return p.Delay
	}
	return p.Delay + time.Duration(rand.Int64N(int64(p.Jitter)+1))
}

// Do calls fn until it reports done, returns an error, or the attempts run
// out. Between attempts it waits without holding anything, and it returns
// ctx.Err() as soon as ctx is cancelled. The number of attempts made is
// always returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) (bool, error)) (int, error) {
	max := p.attempts()
	for attempt := 1; attempt <= max; attempt++ {
		done, err := fn(ctx, attempt)
		if err != nil {
			return attempt, err
		}
		if done {
			return attempt, nil
		}
		if attempt == max {
			break
		}
		if err := Sleep(ctx, p.Backoff()); err != nil {
			return attempt, err
		}
	}
	return max, ErrExhausted
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
