// engine/resolver.go
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsecrm/acl/cache"
	acl_errors "github.com/pulsecrm/acl/errors"
	logger "github.com/pulsecrm/acl/logging"
	"github.com/pulsecrm/acl/model"
	"github.com/pulsecrm/acl/util"
)

// EntryReader is the narrow read contract the resolver needs from the
// durable ACL store. A shard with no entries is an empty slice, not an error.
type EntryReader interface {
	ReadEntries(ctx context.Context, tenantID, shardID string) ([]model.ACLEntry, error)
}

// Resolver evaluates access checks against direct grants, role grants and
// the super-admin bypass, in that precedence order. It is stateless per
// call; the shared ShardCache is its only mutable collaborator.
type Resolver struct {
	store        EntryReader
	cache        *cache.ShardCache
	aliases      map[string]struct{}
	metrics      util.MetricsSink
	storeTimeout time.Duration
}

// NewResolver builds a resolver. superAdminRoles is the injected alias set;
// matching is case-insensitive and ignores hyphens and underscores, so
// "Global-Admin" and "global_admin" name the same role.
func NewResolver(store EntryReader, shardCache *cache.ShardCache, superAdminRoles []string, metrics util.MetricsSink, storeTimeout time.Duration) *Resolver {
	aliases := make(map[string]struct{}, len(superAdminRoles))
	for _, role := range superAdminRoles {
		aliases[normalizeRole(role)] = struct{}{}
	}
	return &Resolver{
		store:        store,
		cache:        shardCache,
		aliases:      aliases,
		metrics:      metrics,
		storeTimeout: storeTimeout,
	}
}

func normalizeRole(role string) string {
	role = strings.ToLower(role)
	role = strings.ReplaceAll(role, "-", "")
	role = strings.ReplaceAll(role, "_", "")
	return role
}

// IsSuperAdmin reports whether any of the roles matches the alias set.
func (r *Resolver) IsSuperAdmin(roles []string) bool {
	for _, role := range roles {
		if _, ok := r.aliases[normalizeRole(role)]; ok {
			return true
		}
	}
	return false
}

// Check evaluates a single access check. A denial is a normal result, not
// an error; an error is returned only when the store is unreachable and no
// cached snapshot exists, in which case the result fails closed.
func (r *Resolver) Check(ctx context.Context, checkCtx model.AccessCheckContext) (model.AccessCheckResult, error) {
	start := time.Now()
	defer func() {
		r.metrics.ObserveDuration(util.TimingCheck, time.Since(start))
	}()
	r.metrics.IncrCounter(util.MetricChecks, 1)

	// Super-admin bypass runs before any cache or store access.
	if r.IsSuperAdmin(checkCtx.Roles) {
		return model.AccessCheckResult{
			HasAccess:         true,
			Source:            model.SourceSuperAdmin,
			MatchedPermission: model.PermissionAdmin,
			EvaluatedAt:       time.Now(),
		}, nil
	}

	key := cache.DecisionKey{
		TenantID: checkCtx.TenantID,
		ShardID:  checkCtx.ShardID,
		UserID:   checkCtx.UserID,
		Required: checkCtx.RequiredPermission,
	}
	if cached, ok := r.cache.GetDecision(key); ok {
		r.metrics.IncrCounter(util.MetricCacheHits, 1)
		cached.Source = model.SourceCache
		return cached, nil
	}
	r.metrics.IncrCounter(util.MetricCacheMisses, 1)

	// The decision must be stored under the epoch the snapshot was fetched
	// at, not the epoch observed here: an invalidation can land between the
	// two, and joining an already in-flight fetch hands back entries from
	// before it.
	entries, epoch, _, err := r.cache.GetOrComputeSnapshot(ctx, checkCtx.TenantID, checkCtx.ShardID, func(ctx context.Context) ([]model.ACLEntry, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
		return r.store.ReadEntries(fetchCtx, checkCtx.TenantID, checkCtx.ShardID)
	})
	if err != nil {
		r.metrics.IncrCounter(util.MetricStoreErrors, 1)
		if stale, ok := r.cache.StaleSnapshot(checkCtx.TenantID, checkCtx.ShardID); ok {
			logger.Warn("Serving stale ACL snapshot after store failure",
				zap.Error(err),
				zap.String("tenantID", checkCtx.TenantID),
				zap.String("shardID", checkCtx.ShardID))
			r.metrics.IncrCounter(util.MetricStaleServed, 1)
			result := r.evaluate(checkCtx, stale)
			result.Source = model.SourceStale
			return result, nil
		}
		logger.Error("ACL store read failed with no cached snapshot, failing closed",
			zap.Error(err),
			zap.String("tenantID", checkCtx.TenantID),
			zap.String("shardID", checkCtx.ShardID))
		return model.AccessCheckResult{
			HasAccess:   false,
			Source:      model.SourceError,
			EvaluatedAt: time.Now(),
		}, fmt.Errorf("%w: %v", acl_errors.ErrStoreUnavailable, err)
	}

	result := r.evaluate(checkCtx, entries)
	r.cache.SetDecision(key, result, epoch)

	if !result.HasAccess {
		r.metrics.IncrCounter(util.MetricChecksDenied, 1)
	}
	return result, nil
}

// evaluate applies the precedence order against a shard's entry snapshot:
// direct user grant, then role grants, then deny.
func (r *Resolver) evaluate(checkCtx model.AccessCheckContext, entries []model.ACLEntry) model.AccessCheckResult {
	now := time.Now()

	for _, entry := range entries {
		if !entry.Active() || !entry.Principal.IsUser() {
			continue
		}
		if entry.Principal.UserID == checkCtx.UserID && entry.Covers(checkCtx.RequiredPermission) {
			return model.AccessCheckResult{
				HasAccess:         true,
				Source:            model.SourceDirect,
				MatchedPermission: model.HighestPermission(entry.Permissions),
				EvaluatedAt:       now,
			}
		}
	}

	roleSet := make(map[string]struct{}, len(checkCtx.Roles))
	for _, role := range checkCtx.Roles {
		roleSet[role] = struct{}{}
	}
	for _, entry := range entries {
		if !entry.Active() || entry.Principal.IsUser() {
			continue
		}
		if _, held := roleSet[entry.Principal.RoleID]; !held {
			continue
		}
		if entry.Covers(checkCtx.RequiredPermission) {
			return model.AccessCheckResult{
				HasAccess:         true,
				Source:            model.SourceRole,
				MatchedPermission: model.HighestPermission(entry.Permissions),
				EvaluatedAt:       now,
			}
		}
	}

	return model.AccessCheckResult{
		HasAccess:   false,
		Source:      model.SourceNone,
		EvaluatedAt: now,
	}
}

// UserPermissions collects the user's effective permission set on a shard:
// the union of the direct entry and every held role's entry.
func (r *Resolver) UserPermissions(ctx context.Context, tenantID, shardID, userID string, roles []string) (model.UserPermissions, error) {
	out := model.UserPermissions{
		UserID:   userID,
		TenantID: tenantID,
		ShardID:  shardID,
	}

	if r.IsSuperAdmin(roles) {
		out.SuperAdmin = true
		out.Permissions = []model.PermissionLevel{model.PermissionRead, model.PermissionWrite, model.PermissionAdmin}
		out.Highest = model.PermissionAdmin
		return out, nil
	}

	entries, _, _, err := r.cache.GetOrComputeSnapshot(ctx, tenantID, shardID, func(ctx context.Context) ([]model.ACLEntry, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
		return r.store.ReadEntries(fetchCtx, tenantID, shardID)
	})
	if err != nil {
		r.metrics.IncrCounter(util.MetricStoreErrors, 1)
		return out, fmt.Errorf("%w: %v", acl_errors.ErrStoreUnavailable, err)
	}

	roleSet := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}
	seen := make(map[model.PermissionLevel]struct{})
	for _, entry := range entries {
		if !entry.Active() {
			continue
		}
		if entry.Principal.IsUser() {
			if entry.Principal.UserID != userID {
				continue
			}
		} else if _, held := roleSet[entry.Principal.RoleID]; !held {
			continue
		}
		for _, p := range entry.Permissions {
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				out.Permissions = append(out.Permissions, p)
			}
		}
	}
	out.Highest = model.HighestPermission(out.Permissions)
	return out, nil
}
