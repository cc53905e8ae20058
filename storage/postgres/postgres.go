// Package postgres provides a PostgreSQL implementation of the
// billingsync.TenantStore interface. Saves use a version column for
// optimistic concurrency: a lost race surfaces as
// billingsync.ErrVersionConflict, which the reconcilers treat as evidence
// of a duplicate concurrent webhook delivery.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clubworks/billingsync/pkg/billingsync"
)

// Store implements billingsync.TenantStore using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store adapter.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const tenantColumns = `id, status, connect_account_id, onboarding_state, onboarding_completed_at,
		charges_enabled, payouts_enabled, details_submitted, requirements_status, version, updated_at`

// GetTenant implements billingsync.TenantStore.
func (s *Store) GetTenant(ctx context.Context, tenantID string) (*billingsync.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, tenantID)
	return scanTenant(row)
}

// GetTenantByConnectAccount implements billingsync.TenantStore.
func (s *Store) GetTenantByConnectAccount(ctx context.Context, accountID string) (*billingsync.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE connect_account_id = $1`, accountID)
	return scanTenant(row)
}

func scanTenant(row pgx.Row) (*billingsync.Tenant, error) {
	var t billingsync.Tenant
	var accountID *string

	err := row.Scan(
		&t.ID,
		&t.Status,
		&accountID,
		&t.OnboardingState,
		&t.OnboardingCompletedAt,
		&t.ChargesEnabled,
		&t.PayoutsEnabled,
		&t.DetailsSubmitted,
		&t.RequirementsStatus,
		&t.Version,
		&t.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, billingsync.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	if accountID != nil {
		t.ConnectAccountID = *accountID
	}
	return &t, nil
}

// SaveTenant implements billingsync.TenantStore. New tenants insert at
// version 1; updates require the caller's version to match the stored row.
func (s *Store) SaveTenant(ctx context.Context, tenant *billingsync.Tenant) error {
	if tenant == nil || tenant.ID == "" {
		return fmt.Errorf("invalid tenant")
	}

	var accountID *string
	if tenant.ConnectAccountID != "" {
		accountID = &tenant.ConnectAccountID
	}

	if tenant.Version == 0 {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO tenants (`+tenantColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10)`,
			tenant.ID, tenant.Status, accountID, tenant.OnboardingState, tenant.OnboardingCompletedAt,
			tenant.ChargesEnabled, tenant.PayoutsEnabled, tenant.DetailsSubmitted,
			tenant.RequirementsStatus, time.Now().UTC(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return billingsync.ErrVersionConflict
			}
			return fmt.Errorf("failed to insert tenant: %w", err)
		}
		tenant.Version = 1
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET
			status = $2, connect_account_id = $3, onboarding_state = $4, onboarding_completed_at = $5,
			charges_enabled = $6, payouts_enabled = $7, details_submitted = $8,
			requirements_status = $9, version = version + 1, updated_at = $10
		WHERE id = $1 AND version = $11`,
		tenant.ID, tenant.Status, accountID, tenant.OnboardingState, tenant.OnboardingCompletedAt,
		tenant.ChargesEnabled, tenant.PayoutsEnabled, tenant.DetailsSubmitted,
		tenant.RequirementsStatus, time.Now().UTC(), tenant.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billingsync.ErrVersionConflict
	}

	tenant.Version++
	return nil
}

const subscriptionColumns = `provider_subscription_id, provider_customer_id, tenant_id, status,
		current_period_start, current_period_end, cancelled_at, ends_at, past_due_at,
		will_renew, trial_end, version, updated_at`

// GetSubscription implements billingsync.TenantStore.
func (s *Store) GetSubscription(ctx context.Context, providerSubscriptionID string) (*billingsync.TenantSubscription, error) {
	var sub billingsync.TenantSubscription

	err := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM tenant_subscriptions WHERE provider_subscription_id = $1`,
		providerSubscriptionID).Scan(
		&sub.ProviderSubscriptionID,
		&sub.ProviderCustomerID,
		&sub.TenantID,
		&sub.Status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CancelledAt,
		&sub.EndsAt,
		&sub.PastDueAt,
		&sub.WillRenew,
		&sub.TrialEnd,
		&sub.Version,
		&sub.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, billingsync.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// SaveSubscription implements billingsync.TenantStore.
func (s *Store) SaveSubscription(ctx context.Context, sub *billingsync.TenantSubscription) error {
	if sub == nil || sub.ProviderSubscriptionID == "" {
		return fmt.Errorf("invalid subscription")
	}

	if sub.Version == 0 {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO tenant_subscriptions (`+subscriptionColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12)`,
			sub.ProviderSubscriptionID, sub.ProviderCustomerID, sub.TenantID, sub.Status,
			sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelledAt, sub.EndsAt,
			sub.PastDueAt, sub.WillRenew, sub.TrialEnd, time.Now().UTC(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return billingsync.ErrVersionConflict
			}
			return fmt.Errorf("failed to insert subscription: %w", err)
		}
		sub.Version = 1
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE tenant_subscriptions SET
			provider_customer_id = $2, tenant_id = $3, status = $4,
			current_period_start = $5, current_period_end = $6, cancelled_at = $7,
			ends_at = $8, past_due_at = $9, will_renew = $10, trial_end = $11,
			version = version + 1, updated_at = $12
		WHERE provider_subscription_id = $1 AND version = $13`,
		sub.ProviderSubscriptionID, sub.ProviderCustomerID, sub.TenantID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelledAt, sub.EndsAt,
		sub.PastDueAt, sub.WillRenew, sub.TrialEnd, time.Now().UTC(), sub.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billingsync.ErrVersionConflict
	}

	sub.Version++
	return nil
}

// PlanPriceIDs implements billingsync.TenantStore.
func (s *Store) PlanPriceIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT price_id FROM platform_plans`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan price ids: %w", err)
	}
	defer rows.Close()

	priceIDs := make(map[string]bool)
	for rows.Next() {
		var priceID string
		if err := rows.Scan(&priceID); err != nil {
			return nil, fmt.Errorf("failed to scan plan price id: %w", err)
		}
		priceIDs[priceID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list plan price ids: %w", err)
	}

	return priceIDs, nil
}

// GetSignupSession implements billingsync.TenantStore.
func (s *Store) GetSignupSession(ctx context.Context, sessionID string) (*billingsync.SignupSession, error) {
	var session billingsync.SignupSession
	var tenantID, failureReason *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, state, tenant_id, failure_reason, created_at, updated_at
			FROM signup_sessions WHERE id = $1`,
		sessionID).Scan(
		&session.ID,
		&session.State,
		&tenantID,
		&failureReason,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, billingsync.ErrSignupSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signup session: %w", err)
	}

	if tenantID != nil {
		session.TenantID = *tenantID
	}
	if failureReason != nil {
		session.FailureReason = *failureReason
	}
	return &session, nil
}

// SaveSignupSession implements billingsync.TenantStore.
func (s *Store) SaveSignupSession(ctx context.Context, session *billingsync.SignupSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("invalid signup session")
	}

	var tenantID, failureReason *string
	if session.TenantID != "" {
		tenantID = &session.TenantID
	}
	if session.FailureReason != "" {
		failureReason = &session.FailureReason
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO signup_sessions (id, state, tenant_id, failure_reason, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				state = EXCLUDED.state,
				tenant_id = EXCLUDED.tenant_id,
				failure_reason = EXCLUDED.failure_reason,
				updated_at = EXCLUDED.updated_at`,
		session.ID, session.State, tenantID, failureReason, session.CreatedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save signup session: %w", err)
	}

	return nil
}
