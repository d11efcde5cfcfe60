// engine/batch.go
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	logger "github.com/pulsecrm/acl/logging"
	"github.com/pulsecrm/acl/model"
	"github.com/pulsecrm/acl/util"
)

// BatchCoordinator fans a batch check out across shards with bounded
// parallelism. One shard's store failure never fails the batch: that shard
// gets a fail-closed, error-tagged result and the rest complete normally.
type BatchCoordinator struct {
	resolver    *Resolver
	metrics     util.MetricsSink
	concurrency int
}

func NewBatchCoordinator(resolver *Resolver, metrics util.MetricsSink, concurrency int) *BatchCoordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchCoordinator{
		resolver:    resolver,
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// BatchCheck evaluates the required permission against every shard in the
// request. Duplicate shard IDs are checked once and share a result; the
// returned map holds exactly one entry per distinct input shard.
func (b *BatchCoordinator) BatchCheck(ctx context.Context, req model.BatchCheckRequest) (*model.BatchCheckResult, error) {
	start := time.Now()
	defer func() {
		b.metrics.ObserveDuration(util.TimingBatch, time.Since(start))
	}()
	b.metrics.IncrCounter(util.MetricBatchChecks, 1)
	b.metrics.IncrCounter(util.MetricBatchShards, int64(len(req.ShardIDs)))

	unique := make([]string, 0, len(req.ShardIDs))
	seen := make(map[string]struct{}, len(req.ShardIDs))
	for _, shardID := range req.ShardIDs {
		if _, dup := seen[shardID]; dup {
			continue
		}
		seen[shardID] = struct{}{}
		unique = append(unique, shardID)
	}

	var (
		mu      sync.Mutex
		results = make(map[string]model.AccessCheckResult, len(unique))
		hits    int
		misses  int
	)

	p := pool.New().WithMaxGoroutines(b.concurrency)
	for _, shardID := range unique {
		shardID := shardID
		p.Go(func() {
			checkCtx := model.AccessCheckContext{
				UserID:             req.UserID,
				TenantID:           req.TenantID,
				ShardID:            shardID,
				Roles:              req.Roles,
				RequiredPermission: req.RequiredPermission,
			}
			result, err := b.resolver.Check(ctx, checkCtx)
			if err != nil {
				logger.Warn("Batch check shard failed, failing closed for that shard",
					zap.Error(err),
					zap.String("tenantID", req.TenantID),
					zap.String("shardID", shardID),
					zap.String("userID", req.UserID))
				result = model.AccessCheckResult{
					HasAccess:   false,
					Source:      model.SourceError,
					EvaluatedAt: time.Now(),
				}
			}

			mu.Lock()
			results[shardID] = result
			// A hit is a check that cost no snapshot evaluation: decision
			// cache or super-admin bypass. Re-evaluations from a cached
			// snapshot count as misses.
			switch result.Source {
			case model.SourceCache, model.SourceSuperAdmin:
				hits++
			default:
				misses++
			}
			mu.Unlock()
		})
	}
	p.Wait()

	return &model.BatchCheckResult{
		UserID:      req.UserID,
		TenantID:    req.TenantID,
		Results:     results,
		CacheHits:   hits,
		CacheMisses: misses,
		CheckedAt:   time.Now(),
	}, nil
}
