package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// BalanceSnapshot is one fetched balance value. It is replaced wholesale on
// refresh, never partially mutated.
type BalanceSnapshot struct {
	Value     float64   `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

// BalanceCache caches one provider's account balance for a TTL. Concurrent
// callers during a refresh share the in-flight provider call instead of
// issuing duplicates.
type BalanceCache struct {
	client GatewayClient
	logger *slog.Logger
	ttl    time.Duration

	mu       sync.Mutex
	snapshot *BalanceSnapshot

	group singleflight.Group
	now   func() time.Time // overridable in tests
}

// NewBalanceCache creates a TTL balance cache over client.
func NewBalanceCache(client GatewayClient, ttl time.Duration, logger *slog.Logger) *BalanceCache {
	return &BalanceCache{
		client: client,
		logger: logger.With("component", "balance_cache", "provider", client.GetName()),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get returns the cached balance, refreshing it from the provider when the
// snapshot is missing or older than the TTL.
func (c *BalanceCache) Get(ctx context.Context) (float64, error) {
	c.mu.Lock()
	snap := c.snapshot
	c.mu.Unlock()

	if snap != nil && c.now().Sub(snap.FetchedAt) < c.ttl {
		return snap.Value, nil
	}

	// Single-flight: concurrent refreshers receive this call's result.
	value, err, _ := c.group.Do("balance", func() (any, error) {
		balance, err := c.client.GetBalance(ctx)
		if err != nil {
			return nil, err
		}
		fresh := &BalanceSnapshot{Value: balance, FetchedAt: c.now()}
		c.mu.Lock()
		c.snapshot = fresh
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "balance refreshed", "balance", balance)
		return balance, nil
	})
	if err != nil {
		// Serve a stale snapshot over a hard failure when we have one.
		if snap != nil {
			c.logger.WarnContext(ctx, "balance refresh failed, serving stale value", "error", err)
			return snap.Value, nil
		}
		return 0, err
	}
	return value.(float64), nil
}

// Invalidate drops the cached snapshot so the next Get refreshes.
func (c *BalanceCache) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}
