package billingsync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubworks/billingsync/pkg/billingsync"
)

func seedConnectedTenant(t *testing.T, f *reconcilerFixture) *billingsync.Tenant {
	t.Helper()
	tenant := &billingsync.Tenant{
		ID:                 "tnt_1",
		Status:             billingsync.TenantActive,
		ConnectAccountID:   "acct_1",
		OnboardingState:    billingsync.OnboardingStarted,
		RequirementsStatus: billingsync.RequirementsCurrentlyDue,
		UpdatedAt:          baseTime,
	}
	require.NoError(t, f.store.SaveTenant(context.Background(), tenant))
	return tenant
}

func TestApplyAccountUpdate_UnknownAccountAcks(t *testing.T) {
	f := newFixture(t)

	err := f.reconciler.ApplyAccountUpdate(context.Background(), billingsync.AccountUpdate{
		EventID:   "evt_1",
		AccountID: "acct_unknown",
	})

	require.NoError(t, err)
	assert.Empty(t, f.cache.invalidated)
}

func TestApplyAccountUpdate_ChargesEnabledCompletesOnboarding(t *testing.T) {
	f := newFixture(t)
	seedConnectedTenant(t, f)

	occurred := baseTime.Add(time.Hour)
	err := f.reconciler.ApplyAccountUpdate(context.Background(), billingsync.AccountUpdate{
		EventID:          "evt_1",
		AccountID:        "acct_1",
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
		DetailsSubmitted: true,
		OccurredAt:       occurred,
	})
	require.NoError(t, err)

	tenant, err := f.store.GetTenant(context.Background(), "tnt_1")
	require.NoError(t, err)
	assert.Equal(t, billingsync.OnboardingCompleted, tenant.OnboardingState)
	require.NotNil(t, tenant.OnboardingCompletedAt)
	assert.Equal(t, occurred, *tenant.OnboardingCompletedAt)
	assert.True(t, tenant.ChargesEnabled)
	assert.True(t, tenant.PayoutsEnabled)
	assert.True(t, tenant.DetailsSubmitted)
	assert.Equal(t, billingsync.RequirementsNone, tenant.RequirementsStatus)

	assert.Equal(t, []string{"tnt_1"}, f.cache.invalidated)
}

// Onboarding completion is monotonic: disabling and re-enabling charges must
// not move the completion timestamp or regress the state.
func TestApplyAccountUpdate_CompletionFiresOnce(t *testing.T) {
	f := newFixture(t)
	seedConnectedTenant(t, f)

	completedAt := baseTime.Add(time.Hour)
	require.NoError(t, f.reconciler.ApplyAccountUpdate(context.Background(), billingsync.AccountUpdate{
		EventID:        "evt_1",
		AccountID:      "acct_1",
		ChargesEnabled: true,
		OccurredAt:     completedAt,
	}))

	// Verification issue disables charges.
	require.NoError(t, f.reconciler.ApplyAccountUpdate(context.Background(), billingsync.AccountUpdate{
		EventID:   "evt_2",
		AccountID: "acct_1",
		Requirements: billingsync.RequirementSets{
			PastDue: []string{"individual.verification.document"},
		},
		OccurredAt: completedAt.Add(24 * time.Hour),
	}))

	// Issue resolved, charges come back.
	require.NoError(t, f.reconciler.ApplyAccountUpdate(context.Background(), billingsync.AccountUpdate{
		EventID:        "evt_3",
		AccountID:      "acct_1",
		ChargesEnabled: true,
		OccurredAt:     completedAt.Add(48 * time.Hour),
	}))

	tenant, err := f.store.GetTenant(context.Background(), "tnt_1")
	require.NoError(t, err)
	assert.Equal(t, billingsync.OnboardingCompleted, tenant.OnboardingState)
	require.NotNil(t, tenant.OnboardingCompletedAt)
	assert.Equal(t, completedAt, *tenant.OnboardingCompletedAt, "completion timestamp must not move")
}

func TestApplyAccountUpdate_RequirementsRecomputed(t *testing.T) {
	f := newFixture(t)
	seedConnectedTenant(t, f)

	err := f.reconciler.ApplyAccountUpdate(context.Background(), billingsync.AccountUpdate{
		EventID:   "evt_1",
		AccountID: "acct_1",
		Requirements: billingsync.RequirementSets{
			EventuallyDue:       []string{"individual.dob.day"},
			PendingVerification: []string{"individual.verification.document"},
		},
		OccurredAt: baseTime.Add(time.Hour),
	})
	require.NoError(t, err)

	tenant, err := f.store.GetTenant(context.Background(), "tnt_1")
	require.NoError(t, err)
	assert.Equal(t, billingsync.RequirementsPendingVerification, tenant.RequirementsStatus)
}

func TestApplyAccountUpdate_NoChangeSkipsSaveAndInvalidation(t *testing.T) {
	f := newFixture(t)
	seeded := seedConnectedTenant(t, f)
	versionBefore := seeded.Version

	err := f.reconciler.ApplyAccountUpdate(context.Background(), billingsync.AccountUpdate{
		EventID:   "evt_1",
		AccountID: "acct_1",
		Requirements: billingsync.RequirementSets{
			CurrentlyDue: []string{"business_profile.url"},
		},
		OccurredAt: baseTime.Add(time.Hour),
	})
	require.NoError(t, err)

	tenant, err := f.store.GetTenant(context.Background(), "tnt_1")
	require.NoError(t, err)
	assert.Equal(t, versionBefore, tenant.Version, "no-op update must not write")
	assert.Empty(t, f.cache.invalidated)
}

func TestApplyAccountUpdate_CacheInvalidationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	seedConnectedTenant(t, f)
	f.cache.err = errors.New("redis down")

	err := f.reconciler.ApplyAccountUpdate(context.Background(), billingsync.AccountUpdate{
		EventID:        "evt_1",
		AccountID:      "acct_1",
		ChargesEnabled: true,
		OccurredAt:     baseTime.Add(time.Hour),
	})

	assert.NoError(t, err, "stale cache heals on TTL, not via webhook redelivery")
}

func TestApplyAccountUpdate_PersistenceFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	seedConnectedTenant(t, f)

	flaky := &flakyStore{TenantStore: f.store, saveTenantErr: errors.New("connection reset")}
	r, err := billingsync.NewReconciler(billingsync.ReconcilerConfig{
		Store:      flaky,
		Onboarding: f.onboarding,
		Resolver:   f.resolver,
	})
	require.NoError(t, err)

	err = r.ApplyAccountUpdate(context.Background(), billingsync.AccountUpdate{
		EventID:        "evt_1",
		AccountID:      "acct_1",
		ChargesEnabled: true,
		OccurredAt:     baseTime.Add(time.Hour),
	})
	require.Error(t, err)
	assert.True(t, billingsync.IsRetryable(err))
}

func TestApplyAccountUpdate_VersionConflictIsSwallowed(t *testing.T) {
	f := newFixture(t)
	seedConnectedTenant(t, f)

	flaky := &flakyStore{TenantStore: f.store, saveTenantErr: billingsync.ErrVersionConflict}
	r, err := billingsync.NewReconciler(billingsync.ReconcilerConfig{
		Store:      flaky,
		Onboarding: f.onboarding,
		Resolver:   f.resolver,
	})
	require.NoError(t, err)

	err = r.ApplyAccountUpdate(context.Background(), billingsync.AccountUpdate{
		EventID:        "evt_1",
		AccountID:      "acct_1",
		ChargesEnabled: true,
		OccurredAt:     baseTime.Add(time.Hour),
	})
	assert.NoError(t, err)
}
