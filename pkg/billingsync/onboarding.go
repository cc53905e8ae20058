package billingsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StoreOnboarding is a TenantStore-backed Onboarding implementation.
// Activation is idempotent per provider subscription id: the first call
// creates the Tenant and TenantSubscription pair and completes the signup
// session; later calls for the same subscription are no-ops.
type StoreOnboarding struct {
	store  TenantStore
	logger Logger
	now    func() time.Time
}

// NewStoreOnboarding creates a StoreOnboarding over the given store.
func NewStoreOnboarding(store TenantStore, logger Logger) (*StoreOnboarding, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &StoreOnboarding{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// ActivateTenant implements Onboarding.
func (o *StoreOnboarding) ActivateTenant(ctx context.Context, req ActivateTenantRequest) error {
	if req.CorrelationID == "" {
		return fmt.Errorf("%w: activation without correlation id", ErrSignupSessionNotFound)
	}

	// Idempotency gate: an existing subscription record means a previous
	// delivery already activated this tenant.
	if req.ProviderSubscriptionID != "" {
		existing, err := o.store.GetSubscription(ctx, req.ProviderSubscriptionID)
		if err == nil {
			o.logger.Debug("activation already applied for subscription",
				F("subscription_id", req.ProviderSubscriptionID), F("tenant_id", existing.TenantID))
			return nil
		}
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return err
		}
	}

	session, err := o.store.GetSignupSession(ctx, req.CorrelationID)
	if err != nil {
		return err
	}

	now := o.now()

	tenantID := session.TenantID
	if tenantID == "" {
		tenantID = uuid.NewString()
	}

	tenant, err := o.store.GetTenant(ctx, tenantID)
	if errors.Is(err, ErrTenantNotFound) {
		tenant = &Tenant{
			ID:                 tenantID,
			Status:             TenantPendingActivation,
			OnboardingState:    OnboardingNotStarted,
			RequirementsStatus: RequirementsNone,
		}
	} else if err != nil {
		return err
	}

	if tenant.Status != TenantActive {
		tenant.Status = TenantActive
		tenant.UpdatedAt = now
		if err := o.store.SaveTenant(ctx, tenant); err != nil && !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}

	if req.ProviderSubscriptionID != "" {
		sub := &TenantSubscription{
			ProviderSubscriptionID: req.ProviderSubscriptionID,
			ProviderCustomerID:     req.ProviderCustomerID,
			TenantID:               tenantID,
			Status:                 SubscriptionActive,
			CurrentPeriodStart:     req.PeriodStart,
			CurrentPeriodEnd:       req.PeriodEnd,
			WillRenew:              true,
			UpdatedAt:              now,
		}
		if err := o.store.SaveSubscription(ctx, sub); err != nil && !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}

	if session.State != SignupCompleted && session.State != SignupBillingComplete {
		session.State = SignupBillingComplete
		session.TenantID = tenantID
		session.UpdatedAt = now
		if err := o.store.SaveSignupSession(ctx, session); err != nil {
			return err
		}
	}

	o.logger.Info("tenant activated",
		F("tenant_id", tenantID), F("signup_session_id", req.CorrelationID),
		F("subscription_id", req.ProviderSubscriptionID))
	return nil
}

// RecordBillingFailure implements Onboarding. The session state is left
// untouched so the prospective tenant can retry payment.
func (o *StoreOnboarding) RecordBillingFailure(ctx context.Context, correlationID, message string) error {
	session, err := o.store.GetSignupSession(ctx, correlationID)
	if err != nil {
		return err
	}

	switch session.State {
	case SignupExpired, SignupCompleted:
		return fmt.Errorf("%w: session %s is %s", ErrSignupSessionState, correlationID, session.State)
	}

	session.FailureReason = message
	session.UpdatedAt = o.now()
	return o.store.SaveSignupSession(ctx, session)
}
