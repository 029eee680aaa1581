// Package retry provides a context-aware retry loop with configurable
// backoff. The summarization fallback chain runs each model's attempts
// through it and records per-attempt history via the OnAttempt hook.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/quill/internal/backoff"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// Policy paces the delays between attempts.
	Policy backoff.Policy

	// OnAttempt, when set, observes every finished attempt: its 1-based
	// number, the elapsed time, and the error (nil on success).
	OnAttempt func(attempt int, elapsed time.Duration, err error)
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Policy:      backoff.DefaultPolicy(),
	}
}

// Result contains the outcome of a retry operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Err is the last error (nil if successful).
	Err error
	// Duration is the total time spent.
	Duration time.Duration
}

// Do executes the operation with retries. The operation receives the 1-based
// attempt number. Permanent errors and context cancellation stop the loop.
func Do(ctx context.Context, config Config, op func(attempt int) error) Result {
	start := time.Now()
	result := Result{}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.Policy.Initial <= 0 {
		config.Policy = backoff.DefaultPolicy()
	}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if ctx.Err() != nil {
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		}

		attemptStart := time.Now()
		err := op(attempt)
		if config.OnAttempt != nil {
			config.OnAttempt(attempt, time.Since(attemptStart), err)
		}
		if err == nil {
			result.Err = nil
			result.Duration = time.Since(start)
			return result
		}
		result.Err = err

		if IsPermanent(err) || errors.Is(err, context.Canceled) {
			break
		}
		if attempt >= config.MaxAttempts {
			break
		}

		if err := backoff.SleepAttempt(ctx, config.Policy, attempt); err != nil {
			result.Err = err
			break
		}
	}

	result.Duration = time.Since(start)
	return result
}

// DoWithValue executes an operation that returns a value with retries.
func DoWithValue[T any](ctx context.Context, config Config, op func(attempt int) (T, error)) (T, Result) {
	var value T
	result := Do(ctx, config, func(attempt int) error {
		var err error
		value, err = op(attempt)
		return err
	})
	return value, result
}

// PermanentError is an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error to indicate it should not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is permanent (shouldn't retry).
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// IsRetryable checks if an error is retryable (not permanent and not nil).
func IsRetryable(err error) bool {
	return err != nil && !IsPermanent(err)
}
