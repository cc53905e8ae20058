package billingsync

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantNotFound is returned when no tenant matches the lookup key
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrSubscriptionNotFound is returned when no local subscription record
	// exists for a provider subscription id
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSignupSessionNotFound is returned when a signup session is absent
	ErrSignupSessionNotFound = errors.New("signup session not found")

	// ErrSignupSessionState is returned when a signup session exists but is
	// in a state that does not accept the requested change
	ErrSignupSessionState = errors.New("signup session in incompatible state")

	// ErrVersionConflict is returned by stores when an optimistic save loses
	// the race against a concurrent writer. Reconcilers treat this as
	// evidence of a duplicate delivery and swallow it.
	ErrVersionConflict = errors.New("version conflict")

	// ErrStoreUnavailable is returned when the store cannot be reached
	ErrStoreUnavailable = errors.New("store unavailable")
)

// RetryableError marks an error that must surface to the webhook sender so
// the delivery is retried. Everything else is logged and acknowledged.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps err so the webhook layer converts it into a 5xx response.
// Wrapping nil returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err (or anything it wraps) demands redelivery.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
