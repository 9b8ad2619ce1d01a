// Package provider holds the shared adapter machinery: the retry helper,
// the provider registry, the pricing table, and the deterministic mock
// adapter used in tests.
package provider

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/fairlease/modelgate/internal/domain"
)

const (
	// DefaultMaxRetries is the number of additional attempts after the
	// first failure.
	DefaultMaxRetries = 2

	// DefaultBaseDelay is the backoff base for the first retry.
	DefaultBaseDelay = 500 * time.Millisecond

	// jitterFraction bounds the uniform random jitter added to each delay.
	jitterFraction = 0.10
)

// RetryConfig controls the shared retry-with-backoff behavior. The zero
// value selects the defaults; a negative MaxRetries disables retries.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *slog.Logger
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	} else if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// backoffDelay returns the delay before retry attempt k (k >= 1):
// baseDelay * 2^(k-1) plus up to 10% uniform random jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	delay += delay * jitterFraction * rand.Float64()
	return time.Duration(delay)
}

// Retry runs fn, retrying on retryable errors up to MaxRetries additional
// times with exponential backoff. Non-retryable errors and exhausted
// retries propagate immediately. Retryability follows domain.IsRetryable:
// the typed Retryable flag when present, the transient-marker substring
// heuristic otherwise.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg.BaseDelay, attempt)
			cfg.Logger.Debug("retrying provider call",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) {
			return zero, err
		}
	}

	return zero, lastErr
}
