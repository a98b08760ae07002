// Package errdefs defines the error taxonomy shared across certmate.
// Errors are grouped into classes so callers can decide between aborting
// the run, aborting a single domain, or logging and moving on.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Wrap these with fmt.Errorf("...: %w", ...) so callers
// can classify failures with errors.Is.
var (
	// Configuration errors are fatal and never retried.
	ErrMissingEmail        = errors.New("no contact email configured")
	ErrUnsupportedProvider = errors.New("unsupported DNS provider")

	// Challenge errors abort the current issuance.
	ErrChallengeUnsupported = errors.New("authorization offers no challenge of the requested type")
	ErrProofWriteFailed     = errors.New("failed to write or confirm challenge proof")
	ErrValidationTimeout    = errors.New("challenge validation timed out")

	// Certificate errors are fatal; no partial artifacts are written.
	ErrMalformedBundle = errors.New("certificate bundle contains no certificates")

	// Deployment errors trigger restore-from-backup before surfacing.
	ErrConfigValidationFailed = errors.New("proxy configuration self-test failed")

	// Transport errors are fatal for the current domain only.
	ErrTransport = errors.New("remote transport failure")

	// ErrNotFound is returned by gateways when a file does not exist.
	ErrNotFound = errors.New("file not found")
)

// Error carries the operation being performed alongside the underlying cause.
type Error struct {
	Operation string   // What operation was being performed
	Cause     error    // The underlying error
	Details   []string // Additional context
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Operation != "" {
		parts = append(parts, e.Operation)
	}

	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	if len(e.Details) > 0 {
		parts = append(parts, strings.Join(e.Details, "; "))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new operation-scoped error
func New(operation string, cause error, details ...string) *Error {
	return &Error{
		Operation: operation,
		Cause:     cause,
		Details:   details,
	}
}

// IsTransport reports whether err is a remote transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// MultiError collects multiple errors from batch operations.
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var messages []string
	for i, err := range m.Errors {
		messages = append(messages, fmt.Sprintf("%d. %s", i+1, err.Error()))
	}
	return fmt.Sprintf("multiple errors occurred:\n%s", strings.Join(messages, "\n"))
}

// Add adds an error to the collection
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ErrorOrNil returns the error if there are any, otherwise nil
func (m *MultiError) ErrorOrNil() error {
	if m.HasErrors() {
		return m
	}
	return nil
}
