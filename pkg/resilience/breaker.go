// This file provides a circuit breaker wrapper using sony/gobreaker.
package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the circuit breaker refuses a request
var ErrCircuitOpen = gobreaker.ErrOpenState

// HostBreaker protects command execution against a single remote host.
// Once a host stops answering, further commands fail fast instead of each
// waiting out the full connection timeout.
type HostBreaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// BreakerOption configures a HostBreaker
type BreakerOption func(*gobreaker.Settings)

// WithMaxRequests sets the maximum number of requests allowed in half-open state
func WithMaxRequests(n uint32) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.MaxRequests = n
	}
}

// WithInterval sets the cyclic period of the closed state for clearing counts
func WithInterval(d time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.Interval = d
	}
}

// WithTimeout sets the period of the open state before becoming half-open
func WithTimeout(d time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.Timeout = d
	}
}

// WithFailureThreshold sets the number of consecutive failures before opening
func WithFailureThreshold(n uint32) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

// WithOnStateChange sets a callback for state changes
func WithOnStateChange(fn func(name string, from, to string)) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.OnStateChange = func(name string, from, to gobreaker.State) {
			fn(name, from.String(), to.String())
		}
	}
}

// NewHostBreaker creates a circuit breaker for one remote host.
// Defaults:
// - MaxRequests: 3 (requests allowed in half-open state)
// - Interval: 60s (stat collection window in closed state)
// - Timeout: 30s (how long to stay open before trying half-open)
// - FailureThreshold: 5 (consecutive failures to trip)
func NewHostBreaker(name string, opts ...BreakerOption) *HostBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	for _, opt := range opts {
		opt(&settings)
	}

	return &HostBreaker{
		cb:   gobreaker.NewCircuitBreaker[any](settings),
		name: name,
	}
}

// Execute runs an operation through the circuit breaker.
// Returns an error if the circuit is open or if the operation fails.
func (b *HostBreaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// ExecuteWithResult runs an operation that returns a result through the circuit breaker.
func ExecuteWithResult[T any](b *HostBreaker, fn func() (T, error)) (T, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// State returns the current state of the circuit breaker
func (b *HostBreaker) State() string {
	return b.cb.State().String()
}

// Name returns the name of the circuit breaker
func (b *HostBreaker) Name() string {
	return b.name
}

// IsOpen returns true if the circuit is open (blocking requests)
func (b *HostBreaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// IsBreakerError reports whether err came from the breaker itself rather
// than the wrapped operation.
func IsBreakerError(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
