package errors

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// RetryableFunc optionally overrides IsRetryable.
	RetryableFunc func(error) bool

	// Logger receives one debug record per retry. Nil disables logging.
	Logger *slog.Logger
}

// DefaultRetry is the standard retry configuration for model calls.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry disables retries.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

// Retry calls fn until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. Failures are returned as *CategorizedError
// carrying op and the number of attempts made.
func Retry[T any](ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	backoff := cfg.InitialBackoff
	attempts := max(cfg.MaxAttempts, 1)

	isRetryable := cfg.RetryableFunc
	if isRetryable == nil {
		isRetryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, &CategorizedError{Err: err, Category: CategoryCanceled, Op: op, Attempts: attempt - 1}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, &CategorizedError{Err: err, Category: Categorize(err), Op: op, Attempts: attempt}
		}

		// Don't sleep after the last attempt
		if attempt == attempts {
			break
		}

		wait := calculateBackoff(backoff, cfg.Jitter)
		if cfg.Logger != nil {
			cfg.Logger.Debug("retrying collaborator call",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &CategorizedError{Err: ctx.Err(), Category: CategoryCanceled, Op: op, Attempts: attempt}
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return zero, &CategorizedError{Err: lastErr, Category: CategoryTransient, Op: op, Attempts: attempts}
}

// calculateBackoff returns the backoff duration with jitter applied.
func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}

	// base +/- (base * jitter * random)
	jitterAmount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + jitterAmount)
}

// RetryOption configures retry behavior.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.MaxAttempts = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.InitialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.MaxBackoff = d
	}
}

// WithJitter sets the jitter factor.
func WithJitter(j float64) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.Jitter = j
	}
}

// WithRetryableFunc sets a custom retryability check.
func WithRetryableFunc(fn func(error) bool) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.RetryableFunc = fn
	}
}

// WithRetryLogger logs each retry at debug level.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(cfg *RetryConfig) {
		cfg.Logger = logger
	}
}

// NewRetryConfig creates a retry configuration from DefaultRetry and opts.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
