package billingsync

import "time"

// Inbound billing events, decoded up front by event type so each reconciler
// receives a concretely-typed payload. The webhook layer owns the mapping
// from provider wire formats to these types.

// CheckoutMode distinguishes one-time-payment checkouts from subscription
// checkouts.
type CheckoutMode string

const (
	// CheckoutModePayment is a one-time payment checkout
	CheckoutModePayment CheckoutMode = "payment"
	// CheckoutModeSubscription is a recurring subscription checkout
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// CheckoutCompleted is emitted when a checkout session finishes. Only
// one-time-payment checkouts with a settled payment trigger activation here;
// subscription checkouts wait for the first paid invoice.
type CheckoutCompleted struct {
	EventID   string
	SessionID string

	Mode CheckoutMode

	// PaymentStatus is the processor's payment_status value ("paid",
	// "unpaid", "no_payment_required")
	PaymentStatus string

	// SignupSessionID correlates the checkout with an in-flight signup
	SignupSessionID string

	CustomerID string

	OccurredAt time.Time
}

// SubscriptionItem is one line item on a provider subscription. Period dates
// live on the item in current provider API versions.
type SubscriptionItem struct {
	PriceID     string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// SubscriptionSnapshot is the provider's current view of a subscription,
// either inlined in an event payload or fetched by id.
type SubscriptionSnapshot struct {
	ID         string
	CustomerID string

	// Status is the provider's status string ("active", "past_due", ...)
	Status string

	// SignupSessionID is the correlation key carried in subscription
	// metadata. Customer email is deliberately not used as a fallback.
	SignupSessionID string

	// CancelledAt is the provider-reported cancellation time, if any
	CancelledAt *time.Time

	// CancelAtPeriodEnd reports a scheduled cancellation
	CancelAtPeriodEnd bool

	TrialEnd *time.Time

	Items []SubscriptionItem
}

// InvoicePaid is emitted when an invoice settles. Only invoices with
// billing reason "subscription_create" drive tenant activation.
type InvoicePaid struct {
	EventID   string
	InvoiceID string

	// BillingReason is the provider's billing_reason ("subscription_create",
	// "subscription_cycle", ...)
	BillingReason string

	// SubscriptionID is empty when the invoice's parent is not a subscription
	SubscriptionID string

	// Subscription is the inline snapshot when the payload carried one;
	// nil means the reconciler must fetch it by SubscriptionID
	Subscription *SubscriptionSnapshot

	OccurredAt time.Time
}

// PaymentAttempt is one payment record attached to an invoice.
type PaymentAttempt struct {
	// Type is the intent type ("payment_intent", "charge", ...)
	Type string

	CreatedAt time.Time

	// FailureMessage is the processor's human-readable error, if any
	FailureMessage string
}

// PaymentFailed is emitted when an invoice payment attempt fails.
type PaymentFailed struct {
	EventID   string
	InvoiceID string

	SubscriptionID string
	Subscription   *SubscriptionSnapshot

	// Attempts are the invoice's payment records in arbitrary order; the
	// recorder picks the most recent payment_intent attempt
	Attempts []PaymentAttempt

	OccurredAt time.Time
}

// SubscriptionChange is emitted for subscription lifecycle events
// (updated, paused, resumed, deleted).
type SubscriptionChange struct {
	EventID string

	Snapshot SubscriptionSnapshot

	// Deleted marks a terminal deletion event, which forces cancellation
	// regardless of the snapshot's status
	Deleted bool

	OccurredAt time.Time
}

// RequirementSets are the outstanding Connect account requirement lists
// carried on an account update.
type RequirementSets struct {
	PendingVerification []string
	PastDue             []string
	CurrentlyDue        []string
	EventuallyDue       []string
}

// AccountUpdate is emitted when a Connect account's capabilities or
// requirements change.
type AccountUpdate struct {
	EventID   string
	AccountID string

	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool

	Requirements RequirementSets

	OccurredAt time.Time
}
