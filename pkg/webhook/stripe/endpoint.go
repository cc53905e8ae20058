// Package stripe implements the Stripe-facing webhook endpoints: signature
// verification, typed payload decoding, and routing into the reconcilers in
// pkg/billingsync. Two endpoints exist with distinct signing secrets: the
// platform billing endpoint and the Connect account endpoint.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/clubworks/billingsync/pkg/billingsync"
	"github.com/clubworks/billingsync/pkg/webhook"
	"github.com/clubworks/billingsync/pkg/webhook/internal"
)

const (
	platformEndpointName = "stripe-platform"
	connectEndpointName  = "stripe-connect"

	maxWebhookBodySize = 256 * 1024

	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
)

// Config holds the shared configuration for a Stripe webhook endpoint.
type Config struct {
	// Reconciler applies verified events to local state (required)
	Reconciler *billingsync.Reconciler

	// WebhookSecret is this endpoint's signing secret. The platform and
	// Connect endpoints use distinct secrets.
	WebhookSecret string

	// Logger is optional; defaults to NoopLogger.
	Logger billingsync.Logger

	// Metrics is optional; defaults to webhook.NoopMetrics.
	Metrics webhook.Metrics

	// RateLimitRequests caps requests per client IP per window
	// (default: 100/minute)
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Endpoint is a single Stripe webhook receiver. It verifies the signature
// before anything else runs, decodes the event into a typed payload, and
// routes it to exactly one reconciler.
type Endpoint struct {
	name          string
	webhookSecret []byte
	reconciler    *billingsync.Reconciler
	logger        billingsync.Logger
	metrics       webhook.Metrics
	rateLimiter   *internal.RateLimiter
	route         func(ctx context.Context, event *stripe.Event) (handled bool, err error)
}

// NewPlatformEndpoint creates the platform billing endpoint, handling
// checkout, invoice, and subscription lifecycle events.
func NewPlatformEndpoint(config Config) (*Endpoint, error) {
	e, err := newEndpoint(platformEndpointName, config)
	if err != nil {
		return nil, err
	}
	e.route = e.routePlatform
	return e, nil
}

// NewConnectEndpoint creates the Connect account endpoint, handling account
// capability updates.
func NewConnectEndpoint(config Config) (*Endpoint, error) {
	e, err := newEndpoint(connectEndpointName, config)
	if err != nil {
		return nil, err
	}
	e.route = e.routeConnect
	return e, nil
}

func newEndpoint(name string, config Config) (*Endpoint, error) {
	if config.Reconciler == nil {
		return nil, webhook.ErrNotConfigured
	}
	secret := strings.TrimSpace(config.WebhookSecret)
	if secret == "" {
		return nil, webhook.ErrNotConfigured
	}

	logger := config.Logger
	if logger == nil {
		logger = &billingsync.NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &webhook.NoopMetrics{}
	}

	limit := config.RateLimitRequests
	if limit <= 0 {
		limit = defaultRateLimitRequests
	}
	window := config.RateLimitWindow
	if window <= 0 {
		window = defaultRateLimitWindow
	}

	return &Endpoint{
		name:          name,
		webhookSecret: []byte(secret),
		reconciler:    config.Reconciler,
		logger:        logger,
		metrics:       metrics,
		rateLimiter:   internal.NewRateLimiter(limit, window),
	}, nil
}

// Name implements webhook.Endpoint.
func (e *Endpoint) Name() string {
	return e.name
}

// Handler implements webhook.Endpoint.
func (e *Endpoint) Handler() http.Handler {
	return e.rateLimiter.Middleware(http.HandlerFunc(e.handleWebhook))
}

// handleWebhook processes one delivery attempt. The signature check runs
// before any business logic, with no exceptions: it is the sole gate
// against spoofed requests on a public endpoint.
func (e *Endpoint) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodySize)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			e.metrics.RecordError(e.name, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			e.metrics.RecordError(e.name, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	event, err := stripe.ConstructEvent(body, sig, string(e.webhookSecret))
	if err != nil {
		e.logger.Warn("webhook signature verification failed",
			billingsync.F("endpoint", e.name), billingsync.F("error", err))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		e.metrics.RecordError(e.name, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	handled, err := e.route(r.Context(), &event)
	if err != nil {
		if billingsync.IsRetryable(err) {
			// Surface as 5xx so Stripe redelivers; the reconcilers are
			// idempotent, making the retry safe.
			e.logger.Error("webhook processing failed, requesting redelivery",
				billingsync.F("endpoint", e.name), billingsync.F("event_id", event.ID),
				billingsync.F("event_type", eventType), billingsync.F("error", err))
			http.Error(w, "failed to process webhook", http.StatusInternalServerError)
			e.metrics.RecordEvent(e.name, eventType, "error")
			e.metrics.RecordError(e.name, "processing_error")
			e.metrics.RecordProcessingDuration(e.name, eventType, time.Since(startTime))
			return
		}
		// Anything else is acknowledged: transient noise must never cause a
		// retry storm for events the system did not need.
		e.logger.Warn("webhook event acknowledged despite processing error",
			billingsync.F("endpoint", e.name), billingsync.F("event_id", event.ID),
			billingsync.F("event_type", eventType), billingsync.F("error", err))
		e.metrics.RecordError(e.name, "acknowledged_error")
	}

	if !handled {
		e.logger.Debug("webhook event type has no handler, acknowledged",
			billingsync.F("endpoint", e.name), billingsync.F("event_type", eventType))
	}

	e.metrics.RecordEvent(e.name, eventType, "success")
	e.metrics.RecordProcessingDuration(e.name, eventType, time.Since(startTime))

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// routePlatform dispatches platform billing events to the reconcilers.
// Unknown event types are acknowledged so Stripe does not retry deliveries
// the system intentionally ignores.
func (e *Endpoint) routePlatform(ctx context.Context, event *stripe.Event) (bool, error) {
	switch event.Type {
	case "checkout.session.completed":
		ev, err := decodeCheckoutCompleted(event)
		if err != nil {
			return true, err
		}
		return true, e.reconciler.ActivateFromCheckout(ctx, ev)

	case "invoice.paid", "invoice.payment_succeeded":
		ev, err := decodeInvoicePaid(event)
		if err != nil {
			return true, err
		}
		return true, e.reconciler.ActivateFromInvoice(ctx, ev)

	case "invoice.payment_failed":
		ev, err := decodePaymentFailed(event)
		if err != nil {
			return true, err
		}
		return true, e.reconciler.RecordPaymentFailure(ctx, ev)

	case "customer.subscription.updated",
		"customer.subscription.paused",
		"customer.subscription.resumed":
		ev, err := decodeSubscriptionChange(event, false)
		if err != nil {
			return true, err
		}
		return true, e.reconciler.ApplySubscriptionChange(ctx, ev)

	case "customer.subscription.deleted":
		ev, err := decodeSubscriptionChange(event, true)
		if err != nil {
			return true, err
		}
		return true, e.reconciler.ApplySubscriptionChange(ctx, ev)

	case "customer.subscription.created":
		// The local record only exists after activation, which the first
		// paid invoice drives. Nothing to reconcile yet.
		return true, nil

	default:
		return false, nil
	}
}

// routeConnect dispatches Connect account events.
func (e *Endpoint) routeConnect(ctx context.Context, event *stripe.Event) (bool, error) {
	switch event.Type {
	case "account.updated":
		ev, err := decodeAccountUpdate(event)
		if err != nil {
			return true, err
		}
		return true, e.reconciler.ApplyAccountUpdate(ctx, ev)

	default:
		return false, nil
	}
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
