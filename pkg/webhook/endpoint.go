// Package webhook defines the provider-agnostic surface of the inbound
// billing webhook endpoints. Provider packages (pkg/webhook/stripe) verify,
// decode, and route events; the reconciliation logic lives in
// pkg/billingsync behind collaborator interfaces.
package webhook

import "net/http"

// Endpoint is a mounted webhook receiver for one event source.
type Endpoint interface {
	// Name identifies the endpoint (e.g., "stripe-platform", "stripe-connect")
	Name() string

	// Handler returns the HTTP handler that verifies, decodes, and routes
	// incoming events. The handler owns signature verification and always
	// acknowledges events it intentionally ignores.
	Handler() http.Handler
}
