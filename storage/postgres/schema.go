package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the DDL for the tables this store reads and writes. Deployments
// with their own migration tooling can apply it there instead.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id                      TEXT PRIMARY KEY,
	status                  TEXT NOT NULL,
	connect_account_id      TEXT UNIQUE,
	onboarding_state        TEXT NOT NULL,
	onboarding_completed_at TIMESTAMPTZ,
	charges_enabled         BOOLEAN NOT NULL DEFAULT FALSE,
	payouts_enabled         BOOLEAN NOT NULL DEFAULT FALSE,
	details_submitted       BOOLEAN NOT NULL DEFAULT FALSE,
	requirements_status     TEXT NOT NULL DEFAULT 'none',
	version                 BIGINT NOT NULL DEFAULT 1,
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tenant_subscriptions (
	provider_subscription_id TEXT PRIMARY KEY,
	provider_customer_id     TEXT NOT NULL,
	tenant_id                TEXT NOT NULL REFERENCES tenants(id),
	status                   TEXT NOT NULL,
	current_period_start     TIMESTAMPTZ NOT NULL,
	current_period_end       TIMESTAMPTZ NOT NULL,
	cancelled_at             TIMESTAMPTZ,
	ends_at                  TIMESTAMPTZ,
	past_due_at              TIMESTAMPTZ,
	will_renew               BOOLEAN NOT NULL DEFAULT TRUE,
	trial_end                TIMESTAMPTZ,
	version                  BIGINT NOT NULL DEFAULT 1,
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS signup_sessions (
	id             TEXT PRIMARY KEY,
	state          TEXT NOT NULL,
	tenant_id      TEXT,
	failure_reason TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS platform_plans (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	price_id TEXT NOT NULL UNIQUE
);
`

// EnsureSchema creates the store's tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, which SaveTenant/SaveSubscription map to a version conflict on
// concurrent first inserts.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
