package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/aidanlsb/wikimigrate/internal/remote"
)

// retryPolicy retries transient remote failures with exponential backoff.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

// do calls fn until it succeeds, fails with a non-retryable error or the
// attempts run out. It returns the number of calls made.
func (p retryPolicy) do(ctx context.Context, desc string, fn func(attempt int) error) (int, error) {
	attempts := p.attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.backoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if !remote.IsRetryable(err) {
			return attempt, err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
			backoff *= 2
		}
	}

	if attempts > 1 {
		return attempts, fmt.Errorf("%s failed after %d attempts: %w", desc, attempts, lastErr)
	}
	return attempts, lastErr
}
