package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested verification or batch was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidTransition indicates an illegal lifecycle status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotCancellable indicates the verification is past the point of cancellation.
	ErrNotCancellable = errors.New("verification is not cancellable")
	// ErrServiceUnavailable is what exhausted retries and open circuits surface as.
	ErrServiceUnavailable = errors.New("provider service unavailable")
	// ErrCircuitOpen is the fast-fail returned while a provider's circuit breaker
	// is open. It wraps ErrServiceUnavailable so callers matching on either see it.
	ErrCircuitOpen = fmt.Errorf("circuit breaker open: %w", ErrServiceUnavailable)
	// ErrInsufficientCredit is raised by the ledger check before any provider call.
	ErrInsufficientCredit = errors.New("insufficient credit")
	// ErrInvalidQuantity indicates a bulk quantity outside the allowed range.
	ErrInvalidQuantity = errors.New("bulk quantity out of range")
)

// ErrorKind classifies a provider failure for retry/circuit decisions.
type ErrorKind string

const (
	// ErrorKindTransient covers network failures, timeouts and 5xx-equivalents;
	// safe to retry.
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindPermanent covers bad credentials, provider-side insufficient
	// funds and invalid input; never retried.
	ErrorKindPermanent ErrorKind = "permanent"
)

// ProviderError is the classified form of any failure from a provider adapter.
// Layers above the resilience boundary only ever see this classification,
// never raw provider-specific errors.
type ProviderError struct {
	Provider string
	Op       string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %s error: %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a retryable provider failure.
func NewTransientError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: ErrorKindTransient, Err: err}
}

// NewPermanentError wraps err as a non-retryable provider failure.
func NewPermanentError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Kind: ErrorKindPermanent, Err: err}
}

// IsTransient reports whether err is classified as retryable. Unclassified
// errors are treated as transient so a misbehaving adapter still gets the
// benefit of retry rather than silently failing fast.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == ErrorKindTransient
	}
	return true
}

// IsPermanent reports whether err is classified as non-retryable.
func IsPermanent(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == ErrorKindPermanent
	}
	return false
}

// FailoverAttemptError records one provider's failure during failover.
type FailoverAttemptError struct {
	Provider string
	Err      error
}

// AllProvidersFailedError aggregates every attempt's failure when failover
// runs out of providers.
type AllProvidersFailedError struct {
	Attempts []FailoverAttemptError
}

func (e *AllProvidersFailedError) Error() string {
	msg := "all providers failed:"
	for _, a := range e.Attempts {
		msg += fmt.Sprintf(" [%s: %v]", a.Provider, a.Err)
	}
	return msg
}

func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}
