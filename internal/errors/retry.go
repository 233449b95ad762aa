package errors

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration
	MaxBackoff time.Duration
	// Multiplier is the backoff multiplier for exponential backoff
	Multiplier float64
	// ShouldRetry decides whether an error is worth another attempt
	ShouldRetry func(error) bool
	// OnAttempt is called before each attempt with the 1-based attempt number
	OnAttempt func(attempt int)
}

// DefaultRetryConfig returns the retry configuration used for acquisitions
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     60 * time.Second,
		Multiplier:     2.0,
		ShouldRetry: func(err error) bool {
			return IsRetryable(err)
		},
	}
}

// Retry executes fn up to config.MaxAttempts times with exponential backoff.
// A non-retryable error stops the loop immediately and is returned as-is so
// callers can still inspect its type. After the final failed attempt the last
// error is returned unchanged.
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if config.OnAttempt != nil {
			config.OnAttempt(attempt)
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if config.ShouldRetry != nil && !config.ShouldRetry(err) {
			return err
		}

		// No sleep after the last attempt
		if attempt == config.MaxAttempts {
			break
		}

		backoff := calculateBackoff(attempt-1, config.InitialBackoff, config.MaxBackoff, config.Multiplier)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return lastErr
}

// RetryOnce executes fn and, on failure, retries exactly one more time after
// a short delay. Used for filesystem moves where a single transient failure
// (busy file, slow mount) is worth absorbing before escalating.
func RetryOnce(ctx context.Context, delay time.Duration, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-time.After(delay):
	}

	return fn()
}

// calculateBackoff calculates the backoff duration for a given attempt
func calculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	backoff := float64(initial) * math.Pow(multiplier, float64(attempt))

	if backoff > float64(max) {
		backoff = float64(max)
	}

	return time.Duration(backoff)
}
