// Package redis provides a Redis-backed tenant configuration cache. The
// Connect account reconciler evicts entries through the
// billingsync.ConfigCache interface whenever a tenant's capabilities or
// requirements change, so downstream reads are never stale past the TTL.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/clubworks/billingsync/pkg/billingsync"
)

// Loader produces the tenant configuration view on a cache miss.
type Loader func(ctx context.Context, tenantID string) (*TenantConfig, error)

// TenantConfig is the cached, read-optimized view of a tenant's billing
// configuration.
type TenantConfig struct {
	TenantID           string                         `json:"tenant_id"`
	Status             billingsync.TenantStatus       `json:"status"`
	OnboardingState    billingsync.OnboardingState    `json:"onboarding_state"`
	ChargesEnabled     bool                           `json:"charges_enabled"`
	PayoutsEnabled     bool                           `json:"payouts_enabled"`
	RequirementsStatus billingsync.RequirementsStatus `json:"requirements_status"`
}

// Cache implements billingsync.ConfigCache over Redis with a
// singleflight-guarded load path.
type Cache struct {
	client redis.UniversalClient
	config Config
	loader Loader
	group  singleflight.Group
}

// Config holds Redis cache configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "billingsync:tenantcfg:")
	KeyPrefix string

	// TTL bounds how long a stale entry can survive a missed invalidation
	// (default: 5 minutes)
	TTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "billingsync:tenantcfg:",
		TTL:       5 * time.Minute,
	}
}

// New creates a new Redis cache adapter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config, loader Loader) (*Cache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "billingsync:tenantcfg:"
	}
	if config.TTL == 0 {
		config.TTL = 5 * time.Minute
	}

	return &Cache{
		client: client,
		config: config,
		loader: loader,
	}, nil
}

func (c *Cache) key(tenantID string) string {
	return c.config.KeyPrefix + tenantID
}

// Get returns the cached config for a tenant, loading and caching it on a
// miss. Concurrent misses for the same tenant share one load.
func (c *Cache) Get(ctx context.Context, tenantID string) (*TenantConfig, error) {
	data, err := c.client.Get(ctx, c.key(tenantID)).Bytes()
	if err == nil {
		var cfg TenantConfig
		if err := json.Unmarshal(data, &cfg); err == nil {
			return &cfg, nil
		}
		// Corrupt entry; fall through to reload
	} else if err != redis.Nil {
		return nil, fmt.Errorf("failed to read tenant config: %w", err)
	}

	v, err, _ := c.group.Do(tenantID, func() (interface{}, error) {
		cfg, err := c.loader(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if err := c.set(ctx, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TenantConfig), nil
}

func (c *Cache) set(ctx context.Context, cfg *TenantConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant config: %w", err)
	}
	if err := c.client.Set(ctx, c.key(cfg.TenantID), data, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to write tenant config: %w", err)
	}
	return nil
}

// Invalidate implements billingsync.ConfigCache.
func (c *Cache) Invalidate(ctx context.Context, tenantID string) error {
	if err := c.client.Del(ctx, c.key(tenantID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate tenant config: %w", err)
	}
	return nil
}
