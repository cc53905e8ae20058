// Package memory provides an in-memory implementation of the
// billingsync.TenantStore interface. This implementation is primarily
// intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/clubworks/billingsync/pkg/billingsync"
)

// Store implements billingsync.TenantStore using in-memory maps with
// version-based optimistic concurrency.
type Store struct {
	mu            sync.RWMutex
	tenants       map[string]*billingsync.Tenant
	byAccount     map[string]string // connect account id -> tenant id
	subscriptions map[string]*billingsync.TenantSubscription
	sessions      map[string]*billingsync.SignupSession
	planPrices    map[string]bool
}

// New creates a new in-memory store adapter.
func New() *Store {
	return &Store{
		tenants:       make(map[string]*billingsync.Tenant),
		byAccount:     make(map[string]string),
		subscriptions: make(map[string]*billingsync.TenantSubscription),
		sessions:      make(map[string]*billingsync.SignupSession),
		planPrices:    make(map[string]bool),
	}
}

// SetPlanPrices replaces the known platform-plan price id set.
func (s *Store) SetPlanPrices(priceIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.planPrices = make(map[string]bool, len(priceIDs))
	for _, id := range priceIDs {
		s.planPrices[id] = true
	}
}

// GetTenant implements billingsync.TenantStore.
func (s *Store) GetTenant(ctx context.Context, tenantID string) (*billingsync.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, billingsync.ErrTenantNotFound
	}

	// Return a copy to prevent external mutations
	tenantCopy := *tenant
	return &tenantCopy, nil
}

// GetTenantByConnectAccount implements billingsync.TenantStore.
func (s *Store) GetTenantByConnectAccount(ctx context.Context, accountID string) (*billingsync.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID, ok := s.byAccount[accountID]
	if !ok {
		return nil, billingsync.ErrTenantNotFound
	}
	tenant, ok := s.tenants[tenantID]
	if !ok {
		return nil, billingsync.ErrTenantNotFound
	}

	tenantCopy := *tenant
	return &tenantCopy, nil
}

// SaveTenant implements billingsync.TenantStore.
func (s *Store) SaveTenant(ctx context.Context, tenant *billingsync.Tenant) error {
	if tenant == nil || tenant.ID == "" {
		return fmt.Errorf("invalid tenant")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tenants[tenant.ID]; ok {
		if existing.Version != tenant.Version {
			return billingsync.ErrVersionConflict
		}
		delete(s.byAccount, existing.ConnectAccountID)
	}

	tenantCopy := *tenant
	tenantCopy.Version++
	s.tenants[tenant.ID] = &tenantCopy
	if tenantCopy.ConnectAccountID != "" {
		s.byAccount[tenantCopy.ConnectAccountID] = tenantCopy.ID
	}

	tenant.Version = tenantCopy.Version
	return nil
}

// GetSubscription implements billingsync.TenantStore.
func (s *Store) GetSubscription(ctx context.Context, providerSubscriptionID string) (*billingsync.TenantSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[providerSubscriptionID]
	if !ok {
		return nil, billingsync.ErrSubscriptionNotFound
	}

	subCopy := *sub
	return &subCopy, nil
}

// SaveSubscription implements billingsync.TenantStore.
func (s *Store) SaveSubscription(ctx context.Context, sub *billingsync.TenantSubscription) error {
	if sub == nil || sub.ProviderSubscriptionID == "" {
		return fmt.Errorf("invalid subscription")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.subscriptions[sub.ProviderSubscriptionID]; ok {
		if existing.Version != sub.Version {
			return billingsync.ErrVersionConflict
		}
	}

	subCopy := *sub
	subCopy.Version++
	s.subscriptions[sub.ProviderSubscriptionID] = &subCopy

	sub.Version = subCopy.Version
	return nil
}

// PlanPriceIDs implements billingsync.TenantStore.
func (s *Store) PlanPriceIDs(ctx context.Context) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool, len(s.planPrices))
	for id := range s.planPrices {
		out[id] = true
	}
	return out, nil
}

// GetSignupSession implements billingsync.TenantStore.
func (s *Store) GetSignupSession(ctx context.Context, sessionID string) (*billingsync.SignupSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, billingsync.ErrSignupSessionNotFound
	}

	sessionCopy := *session
	return &sessionCopy, nil
}

// SaveSignupSession implements billingsync.TenantStore.
func (s *Store) SaveSignupSession(ctx context.Context, session *billingsync.SignupSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("invalid signup session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessionCopy := *session
	s.sessions[session.ID] = &sessionCopy
	return nil
}

// TenantCount returns the number of stored tenants. Test helper.
func (s *Store) TenantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants)
}

// SubscriptionCount returns the number of stored subscriptions. Test helper.
func (s *Store) SubscriptionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscriptions)
}
