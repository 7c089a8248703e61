package util

import (
	"context"
	"math/rand"
	"time"
)

// Retry calls fn up to maxAttempts times with exponential backoff starting
// at baseDelay, doubling after each failure, plus up to maxJitter of random
// jitter per wait. It returns nil on the first successful call, or the last
// error if all attempts fail. Context cancellation is respected between
// attempts.
func Retry(ctx context.Context, maxAttempts int, baseDelay, maxJitter time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			wait := delay
			if maxJitter > 0 {
				wait += time.Duration(rand.Int63n(int64(maxJitter)))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			delay *= 2
		}
	}

	return err
}
