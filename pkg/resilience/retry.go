// Package resilience provides reliability patterns for certmate operations:
// bounded retry with exponential backoff and a circuit breaker for remote hosts.
package resilience

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOption configures retry behavior
type RetryOption func(*retryConfig)

type retryConfig struct {
	maxElapsed   time.Duration
	maxRetries   uint64
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	onRetry      func(err error, duration time.Duration)
	classifier   func(error) bool // returns true if error is retryable
}

// WithMaxElapsed sets the maximum total time for retries
func WithMaxElapsed(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		c.maxElapsed = d
	}
}

// WithMaxRetries sets the maximum number of retry attempts
func WithMaxRetries(n uint64) RetryOption {
	return func(c *retryConfig) {
		c.maxRetries = n
	}
}

// WithInitialDelay sets the initial delay between retries
func WithInitialDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		c.initialDelay = d
	}
}

// WithMaxDelay sets the maximum delay between retries
func WithMaxDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		c.maxDelay = d
	}
}

// WithConstantDelay disables exponential growth, retrying at a fixed interval
func WithConstantDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		c.initialDelay = d
		c.maxDelay = d
		c.multiplier = 1.0
	}
}

// WithOnRetry sets a callback for each retry attempt
func WithOnRetry(fn func(err error, duration time.Duration)) RetryOption {
	return func(c *retryConfig) {
		c.onRetry = fn
	}
}

// WithRetryClassifier sets a function to determine if an error is retryable
func WithRetryClassifier(fn func(error) bool) RetryOption {
	return func(c *retryConfig) {
		c.classifier = fn
	}
}

// Retry executes an operation with exponential backoff using cenkalti/backoff.
// Supports a maximum elapsed time limit, a maximum retry count, retry
// classification and context cancellation.
func Retry(ctx context.Context, operation func() error, opts ...RetryOption) error {
	cfg := &retryConfig{
		maxElapsed:   2 * time.Minute,
		maxRetries:   0, // unlimited by default
		initialDelay: time.Second,
		maxDelay:     30 * time.Second,
		multiplier:   2.0,
		classifier:   DefaultRetryClassifier,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.initialDelay
	b.MaxInterval = cfg.maxDelay
	b.MaxElapsedTime = cfg.maxElapsed
	b.Multiplier = cfg.multiplier
	b.RandomizationFactor = 0.1 // 10% jitter

	var bo backoff.BackOff = b
	if cfg.maxRetries > 0 {
		bo = backoff.WithMaxRetries(b, cfg.maxRetries)
	}

	bo = backoff.WithContext(bo, ctx)

	wrappedOp := func() error {
		err := operation()
		if err == nil {
			return nil
		}

		if cfg.classifier != nil && !cfg.classifier(err) {
			// Permanent error - don't retry
			return backoff.Permanent(err)
		}

		return err
	}

	if cfg.onRetry != nil {
		return backoff.RetryNotify(wrappedOp, bo, cfg.onRetry)
	}

	return backoff.Retry(wrappedOp, bo)
}

// DefaultRetryClassifier determines if an error is retryable.
// Network errors and timeouts are retryable; cancelled contexts are not.
func DefaultRetryClassifier(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	if errors.Is(err, net.ErrClosed) {
		return true
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Default: retry unknown errors
	return true
}

// PermanentError wraps an error to indicate it should not be retried
func PermanentError(err error) error {
	return backoff.Permanent(err)
}
