package errors

import (
	"context"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %v, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 5*time.Second {
		t.Errorf("InitialBackoff = %v, want 5s", config.InitialBackoff)
	}
	if config.MaxBackoff != 60*time.Second {
		t.Errorf("MaxBackoff = %v, want 60s", config.MaxBackoff)
	}
	if config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", config.Multiplier)
	}
	if config.ShouldRetry == nil {
		t.Error("ShouldRetry function is nil")
	}
}

func TestRetry_Success(t *testing.T) {
	ctx := context.Background()
	config := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2.0,
		ShouldRetry: func(err error) bool {
			return IsRetryable(err)
		},
	}

	attemptCount := 0
	err := Retry(ctx, config, func() error {
		attemptCount++
		if attemptCount < 3 {
			return NewToolFailureError("temporary failure", nil)
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attemptCount != 3 {
		t.Errorf("Expected 3 attempts, got %d", attemptCount)
	}
}

func TestRetry_ExactAttemptBound(t *testing.T) {
	ctx := context.Background()
	config := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2.0,
		ShouldRetry: func(err error) bool {
			return IsRetryable(err)
		},
	}

	attemptCount := 0
	err := Retry(ctx, config, func() error {
		attemptCount++
		return NewTimeoutError("always times out", nil)
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attemptCount != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", attemptCount)
	}
	if GetErrorType(err) != ErrTypeTimeout {
		t.Errorf("GetErrorType() = %v, want %v after exhaustion", GetErrorType(err), ErrTypeTimeout)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	ctx := context.Background()
	config := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2.0,
		ShouldRetry: func(err error) bool {
			return IsRetryable(err)
		},
	}

	attemptCount := 0
	err := Retry(ctx, config, func() error {
		attemptCount++
		return NewNotFoundError("video removed")
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attemptCount != 1 {
		t.Errorf("Expected 1 attempt (no retries), got %d", attemptCount)
	}
	if !IsNotFound(err) {
		t.Errorf("Expected typed not_found error back, got %v", err)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	config := RetryConfig{
		MaxAttempts:    10,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     1 * time.Second,
		Multiplier:     2.0,
		ShouldRetry: func(err error) bool {
			return IsRetryable(err)
		},
	}

	err := Retry(ctx, config, func() error {
		return NewToolFailureError("failure", nil)
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if ctx.Err() == nil {
		t.Error("Expected context to be cancelled")
	}
}

func TestRetry_ImmediateSuccess(t *testing.T) {
	ctx := context.Background()
	config := DefaultRetryConfig()

	attemptCount := 0
	err := Retry(ctx, config, func() error {
		attemptCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attemptCount != 1 {
		t.Errorf("Expected 1 attempt, got %d", attemptCount)
	}
}

func TestRetry_OnAttempt(t *testing.T) {
	ctx := context.Background()
	var seen []int
	config := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		Multiplier:     2.0,
		ShouldRetry: func(err error) bool {
			return IsRetryable(err)
		},
		OnAttempt: func(attempt int) {
			seen = append(seen, attempt)
		},
	}

	_ = Retry(ctx, config, func() error {
		return NewTimeoutError("always times out", nil)
	})

	if len(seen) != 3 {
		t.Fatalf("OnAttempt called %d times, want 3", len(seen))
	}
	for i, got := range seen {
		if got != i+1 {
			t.Errorf("attempt number %d = %d, want %d", i, got, i+1)
		}
	}
}

func TestRetry_ZeroAttemptsClamped(t *testing.T) {
	ctx := context.Background()
	config := RetryConfig{MaxAttempts: 0}

	attemptCount := 0
	err := Retry(ctx, config, func() error {
		attemptCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attemptCount != 1 {
		t.Errorf("Expected 1 attempt, got %d", attemptCount)
	}
}

func TestRetryOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("success on first try", func(t *testing.T) {
		calls := 0
		err := RetryOnce(ctx, time.Millisecond, func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Errorf("Expected success, got error: %v", err)
		}
		if calls != 1 {
			t.Errorf("Expected 1 call, got %d", calls)
		}
	})

	t.Run("success on second try", func(t *testing.T) {
		calls := 0
		err := RetryOnce(ctx, time.Millisecond, func() error {
			calls++
			if calls == 1 {
				return NewFilesystemError("busy", nil)
			}
			return nil
		})
		if err != nil {
			t.Errorf("Expected success, got error: %v", err)
		}
		if calls != 2 {
			t.Errorf("Expected 2 calls, got %d", calls)
		}
	})

	t.Run("failure after both tries", func(t *testing.T) {
		calls := 0
		err := RetryOnce(ctx, time.Millisecond, func() error {
			calls++
			return NewFilesystemError("unwritable", nil)
		})
		if err == nil {
			t.Error("Expected error, got nil")
		}
		if calls != 2 {
			t.Errorf("Expected 2 calls, got %d", calls)
		}
		if !IsFilesystem(err) {
			t.Errorf("Expected filesystem error back, got %v", err)
		}
	})
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name       string
		attempt    int
		initial    time.Duration
		max        time.Duration
		multiplier float64
		expected   time.Duration
	}{
		{
			name:       "first retry",
			attempt:    0,
			initial:    5 * time.Second,
			max:        60 * time.Second,
			multiplier: 2.0,
			expected:   5 * time.Second,
		},
		{
			name:       "second retry",
			attempt:    1,
			initial:    5 * time.Second,
			max:        60 * time.Second,
			multiplier: 2.0,
			expected:   10 * time.Second,
		},
		{
			name:       "capped at max",
			attempt:    10,
			initial:    5 * time.Second,
			max:        60 * time.Second,
			multiplier: 2.0,
			expected:   60 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateBackoff(tt.attempt, tt.initial, tt.max, tt.multiplier); got != tt.expected {
				t.Errorf("calculateBackoff() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func BenchmarkRetry(b *testing.B) {
	ctx := context.Background()
	config := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
		ShouldRetry: func(err error) bool {
			return IsRetryable(err)
		},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Retry(ctx, config, func() error {
			return nil
		})
	}
}
