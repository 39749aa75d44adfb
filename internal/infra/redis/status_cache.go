package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/rpcmon/internal/core/domain"
)

// DefaultStatusTTL is used when Config.StatusTTL is unset.
const DefaultStatusTTL = 30 * time.Minute

const observeTimeout = 2 * time.Second

// ProviderStatus is the cached view of a provider's latest check.
type ProviderStatus struct {
	ProviderID string               `json:"provider_id"`
	Name       string               `json:"name"`
	Record     *domain.HealthRecord `json:"record"`
	Transition domain.Transition    `json:"transition"`
}

// StatusCache publishes the latest record of each provider to Redis so other
// services can read it without querying the database.
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatusCache creates a status cache backed by client.
func NewStatusCache(client *Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &StatusCache{rdb: client.rdb, ttl: ttl}
}

// Observe stores the record. Failures are logged; the check itself already succeeded.
func (c *StatusCache) Observe(ctx context.Context, p domain.Provider, rec *domain.HealthRecord, t domain.Transition) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), observeTimeout)
	defer cancel()

	if err := c.Set(ctx, ProviderStatus{ProviderID: p.ID, Name: p.Name, Record: rec, Transition: t}); err != nil {
		slog.Warn("Failed to cache provider status", "provider", p.Name, "error", err)
	}
}

// Set writes a status entry.
func (c *StatusCache) Set(ctx context.Context, status ProviderStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := c.rdb.Set(ctx, statusKey(status.ProviderID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

// Get returns the cached status of a provider, nil if absent or expired.
func (c *StatusCache) Get(ctx context.Context, providerID string) (*ProviderStatus, error) {
	data, err := c.rdb.Get(ctx, statusKey(providerID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	var status ProviderStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}
