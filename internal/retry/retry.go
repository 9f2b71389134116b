package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	// Margin is added to every server-requested wait.
	Margin time.Duration
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// waitError marks an error as retryable after a server-requested wait.
type waitError struct {
	wait time.Duration
	err  error
}

func (e *waitError) Error() string { return e.err.Error() }
func (e *waitError) Unwrap() error { return e.err }

// After marks err as retryable once wait has elapsed.
func After(wait time.Duration, err error) error {
	if err == nil {
		err = errors.New("retry requested")
	}
	return &waitError{wait: wait, err: err}
}

// RetryAfter reports the wait requested by an error built with After.
func RetryAfter(err error) (time.Duration, bool) {
	var we *waitError
	if errors.As(err, &we) {
		return we.wait, true
	}
	return 0, false
}

// WithRetry calls fn until it succeeds, returns an error not built with After,
// or MaxAttempts is reached. Between attempts it waits the requested time
// plus Margin.
func WithRetry(ctx context.Context, config RetryConfig, fn func(attempt int) error) error {
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		wait, ok := RetryAfter(err)
		if !ok {
			return err
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, wait+config.Margin); err != nil {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// Sleep blocks for d or until ctx is done.
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
