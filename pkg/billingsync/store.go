package billingsync

import (
	"context"
	"time"
)

// TenantStore defines the persistence interface the reconcilers depend on.
// Saves use optimistic concurrency: implementations compare the record's
// Version against the stored row and return ErrVersionConflict when a
// concurrent writer got there first. All methods use concrete types from
// this package to avoid import cycles.
type TenantStore interface {
	// GetTenant retrieves a tenant by id.
	// Returns ErrTenantNotFound when absent.
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)

	// GetTenantByConnectAccount retrieves a tenant by its Connect account id.
	// Returns ErrTenantNotFound when absent.
	GetTenantByConnectAccount(ctx context.Context, accountID string) (*Tenant, error)

	// SaveTenant persists a tenant, incrementing its Version.
	// Returns ErrVersionConflict on an optimistic-lock violation.
	SaveTenant(ctx context.Context, tenant *Tenant) error

	// GetSubscription retrieves a subscription by provider subscription id.
	// Returns ErrSubscriptionNotFound when absent.
	GetSubscription(ctx context.Context, providerSubscriptionID string) (*TenantSubscription, error)

	// SaveSubscription persists a subscription, incrementing its Version.
	// Returns ErrVersionConflict on an optimistic-lock violation.
	SaveSubscription(ctx context.Context, sub *TenantSubscription) error

	// PlanPriceIDs returns the set of known platform-plan price ids. Used to
	// select the platform-plan line item among possibly unrelated items.
	PlanPriceIDs(ctx context.Context) (map[string]bool, error)

	// GetSignupSession retrieves a signup session by id.
	// Returns ErrSignupSessionNotFound when absent.
	GetSignupSession(ctx context.Context, sessionID string) (*SignupSession, error)

	// SaveSignupSession persists a signup session.
	SaveSignupSession(ctx context.Context, session *SignupSession) error
}

// ActivateTenantRequest carries everything the onboarding service needs to
// activate a tenant after its first successful payment.
type ActivateTenantRequest struct {
	// CorrelationID is the signup session id from subscription metadata
	CorrelationID string

	// ProviderSubscriptionID is empty for one-time-payment activations
	ProviderSubscriptionID string

	ProviderCustomerID string

	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Onboarding is the collaborator that owns tenant provisioning and signup
// session state. Implementations live outside the reconciliation core; a
// reference TenantStore-backed implementation is provided in this package.
type Onboarding interface {
	// ActivateTenant activates the tenant behind a signup session. MUST be
	// idempotent per provider subscription id: calling it twice never
	// creates duplicate tenants or subscriptions.
	ActivateTenant(ctx context.Context, req ActivateTenantRequest) error

	// RecordBillingFailure attaches a human-readable failure reason to a
	// signup session without advancing its state. Returns
	// ErrSignupSessionNotFound or ErrSignupSessionState when the session
	// cannot accept the write; any other error is a persistence failure.
	RecordBillingFailure(ctx context.Context, correlationID, message string) error
}

// SubscriptionResolver fetches subscription detail from the payment
// processor when a webhook payload omits the inline object.
type SubscriptionResolver interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error)
}

// ConfigCache is the eviction signal for the cached tenant-configuration
// view. Invalidation failures are logged, never fatal.
type ConfigCache interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// NoopConfigCache is a no-op ConfigCache for deployments without a cache.
type NoopConfigCache struct{}

func (n *NoopConfigCache) Invalidate(_ context.Context, _ string) error { return nil }
