package go_nrepl

import (
	"context"
	"fmt"
	"time"
)

// maxBackoff caps the delay between retries.
const maxBackoff = 5 * time.Minute

// RetryWithBackoff executes a function with exponential backoff retry logic.
// It respects context cancellation and distinguishes between temporary and fatal errors.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - maxRetries: Maximum number of retry attempts (0 = no retries, negative = infinite)
//   - initialBackoff: Initial delay between retries (doubles each attempt, capped at 5 minutes)
//   - fn: Function to execute, should return nil on success
//
// Errors that IsFatal classifies as fatal, and errors that explicitly
// report Temporary() == false, end the loop immediately.
//
// Example:
//
//	err := RetryWithBackoff(ctx, 5, time.Second, func() error {
//	    return client.Connect(ctx, "localhost", 7888, 5*time.Second)
//	})
func RetryWithBackoff(ctx context.Context, maxRetries int, initialBackoff time.Duration, fn func() error) error {
	attempt := 0
	backoff := initialBackoff

	for {
		err := fn()
		if err == nil {
			if attempt > 0 {
				Debug("Retry succeeded after %d attempts", attempt)
			}
			return nil
		}

		attempt++

		if !retryable(err) {
			Debug("Encountered fatal error (not retrying): %v", err)
			return fmt.Errorf("fatal error: %w", err)
		}
		if maxRetries >= 0 && attempt > maxRetries {
			return &MaxRetriesExceededError{Attempts: attempt, LastErr: err}
		}

		Debug("Retry attempt %d failed: %v (waiting %v before retry)", attempt, err, backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// retryable treats unknown errors as transient; only fatal protocol errors
// and errors that opt out through Temporary() stop the loop.
func retryable(err error) bool {
	if IsFatal(err) {
		return false
	}
	type temporary interface {
		Temporary() bool
	}
	if temp, ok := err.(temporary); ok {
		return temp.Temporary()
	}
	return true
}

// MaxRetriesExceededError is returned when RetryWithBackoff gives up.
type MaxRetriesExceededError struct {
	Attempts int
	LastErr  error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("max retries (%d) exceeded: %v", e.Attempts, e.LastErr)
}

func (e *MaxRetriesExceededError) Unwrap() error {
	return e.LastErr
}
