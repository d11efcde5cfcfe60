// cache/shard_cache.go
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	logger "github.com/pulsecrm/acl/logging"
	"github.com/pulsecrm/acl/model"
)

// staleRetention is how long an expired snapshot is kept around after its
// TTL so the stale-on-timeout fallback has something to serve.
const staleRetention = 5 * time.Minute

// DecisionKey identifies one cached access decision.
type DecisionKey struct {
	TenantID string
	ShardID  string
	UserID   string
	Required model.PermissionLevel
}

type shardKey struct {
	TenantID string
	ShardID  string
}

type snapshotEntry struct {
	entries  []model.ACLEntry
	storedAt time.Time
	epoch    uint64
}

type decisionEntry struct {
	result   model.AccessCheckResult
	storedAt time.Time
	epoch    uint64
}

// ShardCache holds per-shard ACL entry snapshots and per-principal access
// decisions. It is the only shared mutable state of the engine: all access
// goes through its mutex, concurrent snapshot misses for the same shard are
// coalesced through a single-flight group, and invalidation bumps a
// per-shard epoch so results computed against a pre-invalidation view are
// never stored.
type ShardCache struct {
	mu        sync.RWMutex
	snapshots map[shardKey]snapshotEntry
	decisions map[DecisionKey]decisionEntry
	epochs    map[shardKey]uint64

	group singleflight.Group

	snapshotTTL time.Duration
	decisionTTL time.Duration

	hits           int64
	misses         int64
	snapshotHits   int64
	snapshotMisses int64
	evictions      int64
}

type snapshotResult struct {
	entries []model.ACLEntry
	epoch   uint64
}

// NewShardCache creates a cache with the given snapshot and decision TTLs.
func NewShardCache(snapshotTTL, decisionTTL time.Duration) *ShardCache {
	return &ShardCache{
		snapshots:   make(map[shardKey]snapshotEntry),
		decisions:   make(map[DecisionKey]decisionEntry),
		epochs:      make(map[shardKey]uint64),
		snapshotTTL: snapshotTTL,
		decisionTTL: decisionTTL,
	}
}

// StartSweeper runs a background TTL sweep until ctx is cancelled.
func (c *ShardCache) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed := c.sweep(time.Now())
				if removed > 0 {
					logger.Debug("Cache sweep completed", zap.Int("removed", removed))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Epoch returns the current invalidation epoch for a shard. Results computed
// from a snapshot should be stored with the epoch observed before the fetch.
func (c *ShardCache) Epoch(tenantID, shardID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epochs[shardKey{TenantID: tenantID, ShardID: shardID}]
}

// GetDecision returns a cached, unexpired access decision.
func (c *ShardCache) GetDecision(key DecisionKey) (model.AccessCheckResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.decisions[key]
	if !ok || time.Since(d.storedAt) > c.decisionTTL {
		c.misses++
		return model.AccessCheckResult{}, false
	}
	c.hits++
	return d.result, true
}

// SetDecision stores a decision computed against the given epoch. If the
// shard was invalidated while the decision was being computed the store is
// a no-op, so a stale decision can never be resurrected after a write.
func (c *ShardCache) SetDecision(key DecisionKey, result model.AccessCheckResult, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sk := shardKey{TenantID: key.TenantID, ShardID: key.ShardID}
	if c.epochs[sk] != epoch {
		return
	}
	c.decisions[key] = decisionEntry{result: result, storedAt: time.Now(), epoch: epoch}
}

// GetOrComputeSnapshot returns the shard's ACL entry snapshot, fetching it
// through compute on a miss. Concurrent misses for the same shard issue
// exactly one compute call and share its result. The returned epoch is the
// shard epoch the entries were fetched under; decisions evaluated from the
// entries must be stored with that epoch, not the caller's own, so a result
// computed behind an invalidation can never enter the decision cache. The
// bool return reports whether the snapshot was served from cache.
func (c *ShardCache) GetOrComputeSnapshot(ctx context.Context, tenantID, shardID string, compute func(context.Context) ([]model.ACLEntry, error)) ([]model.ACLEntry, uint64, bool, error) {
	sk := shardKey{TenantID: tenantID, ShardID: shardID}

	c.mu.Lock()
	if snap, ok := c.snapshots[sk]; ok && time.Since(snap.storedAt) <= c.snapshotTTL {
		c.snapshotHits++
		c.mu.Unlock()
		return snap.entries, snap.epoch, true, nil
	}
	c.snapshotMisses++
	c.mu.Unlock()

	v, err, _ := c.group.Do(flightKey(tenantID, shardID), func() (interface{}, error) {
		// Another waiter may have stored a fresh snapshot between our miss
		// and this flight starting.
		c.mu.RLock()
		if snap, ok := c.snapshots[sk]; ok && time.Since(snap.storedAt) <= c.snapshotTTL {
			c.mu.RUnlock()
			return snapshotResult{entries: snap.entries, epoch: snap.epoch}, nil
		}
		epoch := c.epochs[sk]
		c.mu.RUnlock()

		entries, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.epochs[sk] == epoch {
			c.snapshots[sk] = snapshotEntry{entries: entries, storedAt: time.Now(), epoch: epoch}
		}
		c.mu.Unlock()
		return snapshotResult{entries: entries, epoch: epoch}, nil
	})
	if err != nil {
		return nil, 0, false, err
	}
	res := v.(snapshotResult)
	return res.entries, res.epoch, false, nil
}

func flightKey(tenantID, shardID string) string {
	return fmt.Sprintf("%s|%s", tenantID, shardID)
}

// StaleSnapshot returns an expired but not yet swept snapshot, if one
// exists. Used as a degraded answer when the store is unreachable.
func (c *ShardCache) StaleSnapshot(tenantID, shardID string) ([]model.ACLEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snapshots[shardKey{TenantID: tenantID, ShardID: shardID}]
	if !ok {
		return nil, false
	}
	return snap.entries, true
}

// Invalidate evicts the entry snapshot and every cached decision for the
// shard, and bumps the shard epoch so in-flight computations cannot store
// pre-invalidation results. The in-flight fetch, if any, is also forgotten
// so the next miss starts a fresh one instead of joining the doomed flight.
// Invalidating an absent or already invalidated shard is a no-op, so
// at-least-once event delivery is safe.
func (c *ShardCache) Invalidate(tenantID, shardID string) {
	sk := shardKey{TenantID: tenantID, ShardID: shardID}

	c.group.Forget(flightKey(tenantID, shardID))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.epochs[sk]++

	if _, ok := c.snapshots[sk]; ok {
		delete(c.snapshots, sk)
		c.evictions++
	}
	for key := range c.decisions {
		if key.TenantID == tenantID && key.ShardID == shardID {
			delete(c.decisions, key)
			c.evictions++
		}
	}
}

// Stats returns a snapshot of the cache counters.
func (c *ShardCache) Stats() model.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return model.CacheStats{
		Hits:           c.hits,
		Misses:         c.misses,
		SnapshotHits:   c.snapshotHits,
		SnapshotMisses: c.snapshotMisses,
		Evictions:      c.evictions,
		Size:           int64(len(c.snapshots) + len(c.decisions)),
	}
}

// sweep removes expired decisions and snapshots past their stale-retention
// window. Returns the number of removed entries.
func (c *ShardCache) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, d := range c.decisions {
		if now.Sub(d.storedAt) > c.decisionTTL {
			delete(c.decisions, key)
			removed++
		}
	}
	for key, snap := range c.snapshots {
		if now.Sub(snap.storedAt) > c.snapshotTTL+staleRetention {
			delete(c.snapshots, key)
			removed++
		}
	}
	c.evictions += int64(removed)
	return removed
}
