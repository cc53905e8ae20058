package billingsync

import (
	"time"
)

// SubscriptionStatus is the locally stored status of a tenant's platform
// subscription. Values mirror the processor's lifecycle states.
type SubscriptionStatus string

const (
	// SubscriptionIncomplete means the initial payment has not settled yet
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
	// SubscriptionActive means the subscription is paid and current
	SubscriptionActive SubscriptionStatus = "active"
	// SubscriptionPastDue means a renewal payment has failed and is being retried
	SubscriptionPastDue SubscriptionStatus = "past_due"
	// SubscriptionCancelled means the subscription has ended; the row is kept
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	// SubscriptionUnpaid means the processor gave up retrying payment
	SubscriptionUnpaid SubscriptionStatus = "unpaid"
)

// TenantStatus is the activation status of a tenant organization.
type TenantStatus string

const (
	// TenantPendingActivation means signup has started but billing has not completed
	TenantPendingActivation TenantStatus = "pending_activation"
	// TenantActive means the tenant is fully provisioned and billed
	TenantActive TenantStatus = "active"
	// TenantSuspended means access is blocked, typically after subscription deletion
	TenantSuspended TenantStatus = "suspended"
	// TenantCancelled means the tenant has been terminated
	TenantCancelled TenantStatus = "cancelled"
)

// OnboardingState tracks a tenant's progress through Connect account
// onboarding. The state is monotonic: once Completed it never reverts.
type OnboardingState string

const (
	// OnboardingNotStarted means no Connect account exists yet
	OnboardingNotStarted OnboardingState = "not_started"
	// OnboardingAccountCreated means the Connect account exists but onboarding has not begun
	OnboardingAccountCreated OnboardingState = "account_created"
	// OnboardingStarted means the tenant has entered the hosted onboarding flow
	OnboardingStarted OnboardingState = "started"
	// OnboardingCompleted means charges were enabled for the first time
	OnboardingCompleted OnboardingState = "completed"
)

// RequirementsStatus summarizes the most urgent outstanding Connect account
// requirement. Recomputed on every account update using strict precedence:
// PendingVerification > PastDue > CurrentlyDue > EventuallyDue > None.
type RequirementsStatus string

const (
	// RequirementsNone means no outstanding requirements
	RequirementsNone RequirementsStatus = "none"
	// RequirementsEventuallyDue means requirements exist with no deadline yet
	RequirementsEventuallyDue RequirementsStatus = "eventually_due"
	// RequirementsCurrentlyDue means requirements must be provided to keep capabilities
	RequirementsCurrentlyDue RequirementsStatus = "currently_due"
	// RequirementsPastDue means requirements are overdue and capabilities may be disabled
	RequirementsPastDue RequirementsStatus = "past_due"
	// RequirementsPendingVerification means submitted information is being verified
	RequirementsPendingVerification RequirementsStatus = "pending_verification"
)

// SignupState tracks a prospective tenant through the signup flow.
type SignupState string

const (
	// SignupStarted is the initial state of a signup session
	SignupStarted SignupState = "started"
	// SignupUserCreated means the admin user account exists
	SignupUserCreated SignupState = "user_created"
	// SignupTenantCreated means the tenant record exists but is not yet billed
	SignupTenantCreated SignupState = "tenant_created"
	// SignupBillingStarted means a checkout session has been opened
	SignupBillingStarted SignupState = "billing_started"
	// SignupBillingComplete means the first payment settled
	SignupBillingComplete SignupState = "billing_complete"
	// SignupExpired means the session timed out before completion
	SignupExpired SignupState = "expired"
	// SignupCompleted means the tenant is fully provisioned
	SignupCompleted SignupState = "completed"
)

// TenantSubscription is the locally persisted view of a tenant's platform
// subscription. Rows are never deleted; cancellation is a status.
//
// Invariant: CancelledAt and EndsAt are set if and only if
// Status == SubscriptionCancelled, and WillRenew is false whenever the
// status is cancelled.
type TenantSubscription struct {
	// ProviderSubscriptionID is the payment processor's subscription id
	ProviderSubscriptionID string

	// ProviderCustomerID is the payment processor's customer id
	ProviderCustomerID string

	// TenantID is the owning tenant
	TenantID string

	Status SubscriptionStatus

	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time

	// CancelledAt is when the subscription was cancelled (processor-reported
	// when available, otherwise the observing event's timestamp)
	CancelledAt *time.Time

	// EndsAt is when access ends; set from the period end at cancellation
	EndsAt *time.Time

	// PastDueAt approximates when the subscription went past due. The
	// processor does not expose the actual moment, so the timestamp of the
	// event that carried the transition is used.
	PastDueAt *time.Time

	// WillRenew is false once the subscription is cancelled or scheduled
	// to cancel at period end
	WillRenew bool

	// TrialEnd is set while a trial is in progress
	TrialEnd *time.Time

	// Version is the optimistic concurrency token, incremented on every save
	Version int64

	UpdatedAt time.Time
}

// Cancelled reports whether the subscription satisfies the cancellation
// invariant in full.
func (s *TenantSubscription) Cancelled() bool {
	return s.Status == SubscriptionCancelled && s.CancelledAt != nil && s.EndsAt != nil && !s.WillRenew
}

// Tenant is the reconciliation core's view of a tenant organization. Only
// the fields the reconcilers read or write are modeled here.
type Tenant struct {
	ID     string
	Status TenantStatus

	// ConnectAccountID is the tenant's payment-processor sub-account
	ConnectAccountID string

	OnboardingState       OnboardingState
	OnboardingCompletedAt *time.Time

	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool

	RequirementsStatus RequirementsStatus

	// Version is the optimistic concurrency token, incremented on every save
	Version int64

	UpdatedAt time.Time
}

// SignupSession tracks a prospective tenant through plan selection, account
// creation, and billing. The failure recorder attaches a human-readable
// reason without advancing the state.
type SignupSession struct {
	ID    string
	State SignupState

	TenantID string

	// FailureReason is the last recorded payment failure message, if any
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlatformPlan maps a processor price id to an internal plan. The set of
// known price ids is used to pick the platform-plan line item out of a
// subscription that may carry unrelated add-on items.
type PlatformPlan struct {
	ID      string
	Name    string
	PriceID string
}
