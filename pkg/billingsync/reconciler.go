package billingsync

import (
	"context"
	"errors"
	"fmt"
)

// unknownFailureMessage is recorded when the processor reports no error text.
const unknownFailureMessage = "Unknown error"

// billingReasonSubscriptionCreate marks the first invoice of a subscription.
const billingReasonSubscriptionCreate = "subscription_create"

// paymentAttemptTypeIntent is the invoice payment record type the failure
// recorder looks for.
const paymentAttemptTypeIntent = "payment_intent"

// Reconciler applies verified billing events to local tenant and
// subscription state. Every operation is idempotent by side-effect shape:
// duplicate or reordered deliveries converge rather than double-apply.
type Reconciler struct {
	store      TenantStore
	onboarding Onboarding
	resolver   SubscriptionResolver
	cache      ConfigCache
	logger     Logger
	metrics    Metrics
}

// ReconcilerConfig holds the collaborators a Reconciler needs.
type ReconcilerConfig struct {
	// Store is the tenant/subscription persistence layer (required)
	Store TenantStore

	// Onboarding owns tenant activation and signup sessions (required)
	Onboarding Onboarding

	// Resolver fetches subscriptions the webhook payload omitted (required)
	Resolver SubscriptionResolver

	// Cache receives invalidation signals on tenant config changes.
	// If nil, invalidation is a no-op.
	Cache ConfigCache

	// Logger is optional; defaults to NoopLogger.
	Logger Logger

	// Metrics is optional; defaults to NoopMetrics.
	Metrics Metrics
}

// NewReconciler creates a Reconciler from the given collaborators.
func NewReconciler(config ReconcilerConfig) (*Reconciler, error) {
	if config.Store == nil {
		return nil, errors.New("store is required")
	}
	if config.Onboarding == nil {
		return nil, errors.New("onboarding is required")
	}
	if config.Resolver == nil {
		return nil, errors.New("subscription resolver is required")
	}

	cache := config.Cache
	if cache == nil {
		cache = &NoopConfigCache{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	return &Reconciler{
		store:      config.Store,
		onboarding: config.Onboarding,
		resolver:   config.Resolver,
		cache:      cache,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// ActivateFromCheckout handles a completed checkout session. One-time
// payment checkouts with a settled payment activate the tenant immediately.
// Subscription checkouts never activate here: checkout completion alone does
// not guarantee the charge succeeded, so activation waits for the first paid
// invoice.
func (r *Reconciler) ActivateFromCheckout(ctx context.Context, ev CheckoutCompleted) error {
	if ev.Mode == CheckoutModeSubscription {
		r.logger.Debug("subscription checkout completed, activation deferred to first paid invoice",
			F("event_id", ev.EventID), F("session_id", ev.SessionID))
		r.metrics.RecordReconciliation("activation", "skipped")
		return nil
	}

	if ev.PaymentStatus != "paid" {
		r.logger.Debug("checkout completed without settled payment",
			F("event_id", ev.EventID), F("payment_status", ev.PaymentStatus))
		r.metrics.RecordReconciliation("activation", "skipped")
		return nil
	}

	if ev.SignupSessionID == "" {
		r.logger.Warn("checkout session has no signup correlation id",
			F("event_id", ev.EventID), F("session_id", ev.SessionID))
		r.metrics.RecordReconciliation("activation", "skipped")
		return nil
	}

	err := r.onboarding.ActivateTenant(ctx, ActivateTenantRequest{
		CorrelationID:      ev.SignupSessionID,
		ProviderCustomerID: ev.CustomerID,
	})
	if err != nil {
		r.metrics.RecordActivation("error")
		r.logger.Error("tenant activation failed",
			F("event_id", ev.EventID), F("signup_session_id", ev.SignupSessionID), F("error", err))
		return Retryable(fmt.Errorf("activate tenant for checkout %s: %w", ev.SessionID, err))
	}

	r.metrics.RecordActivation("success")
	r.metrics.RecordReconciliation("activation", "applied")
	r.logger.Info("tenant activated from one-time payment checkout",
		F("event_id", ev.EventID), F("signup_session_id", ev.SignupSessionID))
	return nil
}

// ActivateFromInvoice handles a paid invoice. Only the first invoice of a
// subscription (billing reason "subscription_create") triggers activation;
// renewal invoices are ignored here and period dates are refreshed solely by
// subscription update events.
func (r *Reconciler) ActivateFromInvoice(ctx context.Context, ev InvoicePaid) error {
	if ev.BillingReason != billingReasonSubscriptionCreate {
		r.logger.Debug("ignoring invoice with non-initial billing reason",
			F("event_id", ev.EventID), F("invoice_id", ev.InvoiceID), F("billing_reason", ev.BillingReason))
		r.metrics.RecordReconciliation("activation", "skipped")
		return nil
	}

	if ev.SubscriptionID == "" {
		r.logger.Warn("paid invoice parent is not a subscription",
			F("event_id", ev.EventID), F("invoice_id", ev.InvoiceID))
		r.metrics.RecordReconciliation("activation", "skipped")
		return nil
	}

	snapshot := ev.Subscription
	if snapshot == nil {
		fetched, err := r.resolver.FetchSubscription(ctx, ev.SubscriptionID)
		if err != nil {
			r.logger.Warn("subscription not found at processor",
				F("event_id", ev.EventID), F("subscription_id", ev.SubscriptionID), F("error", err))
			r.metrics.RecordReconciliation("activation", "skipped")
			return nil
		}
		snapshot = fetched
	}

	if snapshot.SignupSessionID == "" {
		// Correlation lost. Customer email is not a stable unique key, so
		// there is no fallback: skip and leave the retry to the signup flow.
		r.logger.Warn("subscription metadata missing signup correlation id",
			F("event_id", ev.EventID), F("subscription_id", snapshot.ID))
		r.metrics.RecordReconciliation("activation", "skipped")
		return nil
	}

	item, ok, err := r.selectPlanItem(ctx, snapshot)
	if err != nil {
		return Retryable(fmt.Errorf("load platform plan price ids: %w", err))
	}
	if !ok {
		r.logger.Warn("no subscription item matches a platform plan",
			F("event_id", ev.EventID), F("subscription_id", snapshot.ID))
		r.metrics.RecordReconciliation("activation", "skipped")
		return nil
	}

	err = r.onboarding.ActivateTenant(ctx, ActivateTenantRequest{
		CorrelationID:          snapshot.SignupSessionID,
		ProviderSubscriptionID: snapshot.ID,
		ProviderCustomerID:     snapshot.CustomerID,
		PeriodStart:            item.PeriodStart,
		PeriodEnd:              item.PeriodEnd,
	})
	if err != nil {
		// A failed activation must not be swallowed: the event id plus the
		// idempotent activation contract makes redelivery safe.
		r.metrics.RecordActivation("error")
		r.logger.Error("tenant activation failed",
			F("event_id", ev.EventID), F("subscription_id", snapshot.ID), F("error", err))
		return Retryable(fmt.Errorf("activate tenant for subscription %s: %w", snapshot.ID, err))
	}

	r.metrics.RecordActivation("success")
	r.metrics.RecordReconciliation("activation", "applied")
	r.logger.Info("tenant activated from initial subscription invoice",
		F("event_id", ev.EventID), F("subscription_id", snapshot.ID),
		F("signup_session_id", snapshot.SignupSessionID))
	return nil
}

// selectPlanItem picks the first line item whose price id belongs to a known
// platform plan, defending against accounts carrying unrelated add-on items.
func (r *Reconciler) selectPlanItem(ctx context.Context, snapshot *SubscriptionSnapshot) (SubscriptionItem, bool, error) {
	priceIDs, err := r.store.PlanPriceIDs(ctx)
	if err != nil {
		return SubscriptionItem{}, false, err
	}
	for _, item := range snapshot.Items {
		if priceIDs[item.PriceID] {
			return item, true, nil
		}
	}
	return SubscriptionItem{}, false, nil
}

// ApplySubscriptionChange maps a subscription lifecycle event onto the
// stored subscription. Duplicate deliveries of the same status are silent
// no-ops; a deletion is terminal and also suspends the owning tenant.
func (r *Reconciler) ApplySubscriptionChange(ctx context.Context, ev SubscriptionChange) error {
	sub, err := r.store.GetSubscription(ctx, ev.Snapshot.ID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			// The event may predate the local record or belong to an
			// unrelated test account.
			r.logger.Warn("no local record for subscription event",
				F("event_id", ev.EventID), F("subscription_id", ev.Snapshot.ID))
			r.metrics.RecordReconciliation("subscription", "skipped")
			return nil
		}
		return Retryable(fmt.Errorf("load subscription %s: %w", ev.Snapshot.ID, err))
	}

	target := MapProviderStatus(ev.Snapshot.Status)
	if ev.Deleted {
		target = SubscriptionCancelled
	}

	if !ev.Deleted && target == sub.Status {
		r.logger.Debug("subscription status unchanged, duplicate delivery",
			F("event_id", ev.EventID), F("subscription_id", sub.ProviderSubscriptionID),
			F("status", string(target)))
		r.metrics.RecordReconciliation("subscription", "noop")
		return nil
	}

	previous := sub.Status
	sub.Status = target

	switch target {
	case SubscriptionPastDue:
		if previous != SubscriptionPastDue {
			t := ev.OccurredAt
			sub.PastDueAt = &t
		}
	case SubscriptionCancelled:
		cancelledAt := ev.OccurredAt
		if ev.Snapshot.CancelledAt != nil {
			cancelledAt = *ev.Snapshot.CancelledAt
		}
		endsAt := sub.CurrentPeriodEnd
		sub.CancelledAt = &cancelledAt
		sub.EndsAt = &endsAt
		sub.WillRenew = false
	}

	// The derived fields travel with their status. A stale update delivered
	// after a cancellation must not leave cancellation fields on a
	// non-cancelled record.
	if target != SubscriptionCancelled {
		sub.CancelledAt = nil
		sub.EndsAt = nil
		sub.WillRenew = !ev.Snapshot.CancelAtPeriodEnd
	}
	if target != SubscriptionPastDue && target != SubscriptionCancelled {
		sub.PastDueAt = nil
	}
	sub.TrialEnd = ev.Snapshot.TrialEnd
	sub.UpdatedAt = ev.OccurredAt

	if err := r.store.SaveSubscription(ctx, sub); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			// The competing writer already achieved the intended state.
			r.logger.Info("concurrent webhook delivery already applied subscription change",
				F("event_id", ev.EventID), F("subscription_id", sub.ProviderSubscriptionID))
			r.metrics.RecordReconciliation("subscription", "conflict")
			return nil
		}
		r.metrics.RecordReconciliation("subscription", "error")
		return Retryable(fmt.Errorf("save subscription %s: %w", sub.ProviderSubscriptionID, err))
	}

	r.metrics.RecordStatusTransition(string(previous), string(target))
	r.metrics.RecordReconciliation("subscription", "applied")
	r.logger.Info("subscription status reconciled",
		F("event_id", ev.EventID), F("subscription_id", sub.ProviderSubscriptionID),
		F("from", string(previous)), F("to", string(target)))

	if ev.Deleted {
		return r.suspendTenant(ctx, ev.EventID, sub.TenantID)
	}
	return nil
}

// suspendTenant cascades a subscription deletion onto the owning tenant.
func (r *Reconciler) suspendTenant(ctx context.Context, eventID, tenantID string) error {
	tenant, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			r.logger.Warn("deleted subscription has no owning tenant",
				F("event_id", eventID), F("tenant_id", tenantID))
			return nil
		}
		return Retryable(fmt.Errorf("load tenant %s: %w", tenantID, err))
	}

	if tenant.Status == TenantSuspended {
		return nil
	}

	tenant.Status = TenantSuspended
	if err := r.store.SaveTenant(ctx, tenant); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			r.logger.Info("concurrent delivery already suspended tenant",
				F("event_id", eventID), F("tenant_id", tenantID))
			return nil
		}
		return Retryable(fmt.Errorf("suspend tenant %s: %w", tenantID, err))
	}

	r.logger.Info("tenant suspended after subscription deletion",
		F("event_id", eventID), F("tenant_id", tenantID))
	return nil
}

// ApplyAccountUpdate maps a Connect account capability change onto the
// tenant's onboarding state and requirements status. The transition into
// OnboardingCompleted fires exactly once, on the first charges-enabled
// false to true edge, and never reverts.
func (r *Reconciler) ApplyAccountUpdate(ctx context.Context, ev AccountUpdate) error {
	tenant, err := r.store.GetTenantByConnectAccount(ctx, ev.AccountID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			r.logger.Warn("no tenant for connect account",
				F("event_id", ev.EventID), F("account_id", ev.AccountID))
			r.metrics.RecordReconciliation("account", "skipped")
			return nil
		}
		return Retryable(fmt.Errorf("load tenant by connect account %s: %w", ev.AccountID, err))
	}

	changed := false

	if tenant.ChargesEnabled != ev.ChargesEnabled {
		if ev.ChargesEnabled && tenant.OnboardingState != OnboardingCompleted {
			completedAt := ev.OccurredAt
			tenant.OnboardingState = OnboardingCompleted
			tenant.OnboardingCompletedAt = &completedAt
			r.logger.Info("connect onboarding completed",
				F("event_id", ev.EventID), F("tenant_id", tenant.ID))
		}
		tenant.ChargesEnabled = ev.ChargesEnabled
		changed = true
	}
	if tenant.PayoutsEnabled != ev.PayoutsEnabled {
		tenant.PayoutsEnabled = ev.PayoutsEnabled
		changed = true
	}
	if tenant.DetailsSubmitted != ev.DetailsSubmitted {
		tenant.DetailsSubmitted = ev.DetailsSubmitted
		changed = true
	}

	if status := ComputeRequirementsStatus(ev.Requirements); status != tenant.RequirementsStatus {
		tenant.RequirementsStatus = status
		changed = true
	}

	if !changed {
		r.logger.Debug("account update produced no changes",
			F("event_id", ev.EventID), F("tenant_id", tenant.ID))
		r.metrics.RecordReconciliation("account", "noop")
		return nil
	}

	tenant.UpdatedAt = ev.OccurredAt
	if err := r.store.SaveTenant(ctx, tenant); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			r.logger.Info("concurrent delivery already applied account update",
				F("event_id", ev.EventID), F("tenant_id", tenant.ID))
			r.metrics.RecordReconciliation("account", "conflict")
			return nil
		}
		r.metrics.RecordReconciliation("account", "error")
		return Retryable(fmt.Errorf("save tenant %s: %w", tenant.ID, err))
	}

	if err := r.cache.Invalidate(ctx, tenant.ID); err != nil {
		// Stale cache reads heal on TTL expiry; not worth a redelivery.
		r.metrics.RecordCacheInvalidation("error")
		r.logger.Error("tenant config cache invalidation failed",
			F("tenant_id", tenant.ID), F("error", err))
	} else {
		r.metrics.RecordCacheInvalidation("success")
	}

	r.metrics.RecordReconciliation("account", "applied")
	return nil
}

// RecordPaymentFailure attaches the most recent payment-intent failure
// message to the in-flight signup session. It never changes tenant or
// subscription status: the end user retries payment through the processor's
// own retry flow.
func (r *Reconciler) RecordPaymentFailure(ctx context.Context, ev PaymentFailed) error {
	attempt, ok := latestIntentAttempt(ev.Attempts)
	if !ok {
		r.logger.Debug("payment failure carries no payment_intent attempt",
			F("event_id", ev.EventID), F("invoice_id", ev.InvoiceID))
		r.metrics.RecordReconciliation("failure_recorder", "skipped")
		return nil
	}

	snapshot := ev.Subscription
	if snapshot == nil && ev.SubscriptionID != "" {
		fetched, err := r.resolver.FetchSubscription(ctx, ev.SubscriptionID)
		if err != nil {
			r.logger.Warn("subscription not found while recording payment failure",
				F("event_id", ev.EventID), F("subscription_id", ev.SubscriptionID), F("error", err))
			r.metrics.RecordReconciliation("failure_recorder", "skipped")
			return nil
		}
		snapshot = fetched
	}

	if snapshot == nil || snapshot.SignupSessionID == "" {
		r.logger.Debug("payment failure has no signup correlation id",
			F("event_id", ev.EventID), F("invoice_id", ev.InvoiceID))
		r.metrics.RecordReconciliation("failure_recorder", "skipped")
		return nil
	}

	message := attempt.FailureMessage
	if message == "" {
		message = unknownFailureMessage
	}

	err := r.onboarding.RecordBillingFailure(ctx, snapshot.SignupSessionID, message)
	if err != nil {
		if errors.Is(err, ErrSignupSessionNotFound) || errors.Is(err, ErrSignupSessionState) {
			// The session expired or moved on; the failure reason is only a
			// UX nicety, so the webhook still succeeds.
			r.logger.Warn("signup session cannot accept failure reason",
				F("event_id", ev.EventID), F("signup_session_id", snapshot.SignupSessionID), F("error", err))
			r.metrics.RecordReconciliation("failure_recorder", "skipped")
			return nil
		}
		r.metrics.RecordReconciliation("failure_recorder", "error")
		r.logger.Error("recording billing failure failed",
			F("event_id", ev.EventID), F("signup_session_id", snapshot.SignupSessionID), F("error", err))
		return Retryable(fmt.Errorf("record billing failure for session %s: %w", snapshot.SignupSessionID, err))
	}

	r.metrics.RecordReconciliation("failure_recorder", "applied")
	r.logger.Info("billing failure recorded against signup session",
		F("event_id", ev.EventID), F("signup_session_id", snapshot.SignupSessionID))
	return nil
}

// latestIntentAttempt returns the most recent payment_intent attempt.
func latestIntentAttempt(attempts []PaymentAttempt) (PaymentAttempt, bool) {
	var latest PaymentAttempt
	found := false
	for _, a := range attempts {
		if a.Type != paymentAttemptTypeIntent {
			continue
		}
		if !found || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
			found = true
		}
	}
	return latest, found
}

// MapProviderStatus maps a processor subscription status string onto the
// local status set. Paused subscriptions are treated as unpaid: payments
// have stopped and access is withheld, but the subscription is not terminal.
func MapProviderStatus(status string) SubscriptionStatus {
	switch status {
	case "active", "trialing":
		return SubscriptionActive
	case "past_due":
		return SubscriptionPastDue
	case "canceled", "cancelled":
		return SubscriptionCancelled
	case "unpaid", "paused":
		return SubscriptionUnpaid
	default:
		return SubscriptionIncomplete
	}
}
