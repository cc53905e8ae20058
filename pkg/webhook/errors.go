package webhook

import "errors"

var (
	// ErrNotConfigured is returned when an endpoint is missing its secret
	// or reconciler
	ErrNotConfigured = errors.New("webhook endpoint not configured")

	// ErrInvalidSignature is returned when webhook signature validation fails
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidPayload is returned when a webhook payload cannot be parsed
	ErrInvalidPayload = errors.New("invalid webhook payload")
)
