// service/acl_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulsecrm/acl/audit"
	"github.com/pulsecrm/acl/cache"
	"github.com/pulsecrm/acl/dao"
	"github.com/pulsecrm/acl/engine"
	acl_errors "github.com/pulsecrm/acl/errors"
	logger "github.com/pulsecrm/acl/logging"
	"github.com/pulsecrm/acl/model"
	"github.com/pulsecrm/acl/util"
)

// IACLService is the surface the thin REST layer calls. Tenant scoping is
// mandatory on every operation.
type IACLService interface {
	GrantPermission(ctx context.Context, input model.GrantInput, actor model.Actor) (*model.ACLEntry, error)
	RevokePermission(ctx context.Context, input model.RevokeInput, actor model.Actor) error
	UpdateACL(ctx context.Context, input model.UpdateACLInput, actor model.Actor) error
	CheckPermission(ctx context.Context, checkCtx model.AccessCheckContext) (model.AccessCheckResult, error)
	BatchCheckPermissions(ctx context.Context, req model.BatchCheckRequest) (*model.BatchCheckResult, error)
	GetUserPermissions(ctx context.Context, tenantID, shardID, userID string, roles []string) (model.UserPermissions, error)
	GetStats(ctx context.Context) model.EngineStats
	InvalidateShardCache(ctx context.Context, tenantID, shardID string) error
}

// ACLService wires the resolution engine, cache layer and store together
// and owns the invalidation flow: store write, synchronous local eviction,
// then publish for the other instances.
type ACLService struct {
	store           dao.ACLStore
	resolver        *engine.Resolver
	batch           *engine.BatchCoordinator
	cache           *cache.ShardCache
	validationUtil  *util.ValidationUtil
	notificationSvc *util.NotificationService
	eventBus        *util.EventBus
	auditService    audit.Service
	metrics         *util.Metrics

	// publishRemote broadcasts an invalidation to other engine instances.
	// Injected so tests run without Redis.
	publishRemote func(ctx context.Context, event model.InvalidationEvent) error
	// lockShard serializes updateACL batches for one shard across instances.
	lockShard   func(ctx context.Context, tenantID, shardID string, ttl time.Duration) (bool, error)
	unlockShard func(ctx context.Context, tenantID, shardID string) error
}

var _ IACLService = &ACLService{}

// NewACLService creates the service and registers the invalidation
// subscriber on the event bus.
func NewACLService(
	store dao.ACLStore,
	resolver *engine.Resolver,
	batch *engine.BatchCoordinator,
	shardCache *cache.ShardCache,
	validationUtil *util.ValidationUtil,
	notificationSvc *util.NotificationService,
	eventBus *util.EventBus,
	auditService audit.Service,
	metrics *util.Metrics,
	publishRemote func(ctx context.Context, event model.InvalidationEvent) error,
	lockShard func(ctx context.Context, tenantID, shardID string, ttl time.Duration) (bool, error),
	unlockShard func(ctx context.Context, tenantID, shardID string) error,
) *ACLService {
	service := &ACLService{
		store:           store,
		resolver:        resolver,
		batch:           batch,
		cache:           shardCache,
		validationUtil:  validationUtil,
		notificationSvc: notificationSvc,
		eventBus:        eventBus,
		auditService:    auditService,
		metrics:         metrics,
		publishRemote:   publishRemote,
		lockShard:       lockShard,
		unlockShard:     unlockShard,
	}

	eventBus.Subscribe(util.EventACLChanged, service.handleACLChanged)

	return service
}

// handleACLChanged is the invalidation subscriber: any ACL change event
// evicts the shard's cached snapshot and decisions. At-least-once delivery
// is fine because eviction is idempotent.
func (s *ACLService) handleACLChanged(ctx context.Context, event util.Event) error {
	change, ok := event.Payload.(model.InvalidationEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", event.Payload, event.Type)
	}
	s.cache.Invalidate(change.TenantID, change.ShardID)
	s.metrics.IncrCounter(util.MetricInvalidations, 1)
	logger.Debug("Shard cache invalidated",
		zap.String("tenantID", change.TenantID),
		zap.String("shardID", change.ShardID))
	return nil
}

// HandleRemoteInvalidation processes an invalidation that another engine
// instance published.
func (s *ACLService) HandleRemoteInvalidation(ctx context.Context, event model.InvalidationEvent) {
	s.eventBus.PublishSync(ctx, util.EventACLChanged, event)
}

// invalidateShard runs the post-commit invalidation flow: evict locally on
// the calling goroutine (read-your-writes), then broadcast to the rest of
// the fleet.
func (s *ACLService) invalidateShard(ctx context.Context, tenantID, shardID string) {
	event := model.InvalidationEvent{TenantID: tenantID, ShardID: shardID}
	s.eventBus.PublishSync(ctx, util.EventACLChanged, event)

	if s.publishRemote != nil {
		if err := s.publishRemote(ctx, event); err != nil {
			// Remote eviction falls back to the cache TTL safety net.
			logger.Warn("Failed to publish invalidation to other instances",
				zap.Error(err),
				zap.String("tenantID", tenantID),
				zap.String("shardID", shardID))
		}
	}
}

// requireAdmin gates mutations: the actor must hold ADMIN on the target
// shard. Granting access requires admin access, evaluated by the same
// engine the mutation protects.
func (s *ACLService) requireAdmin(ctx context.Context, tenantID, shardID string, actor model.Actor) error {
	result, err := s.resolver.Check(ctx, model.AccessCheckContext{
		UserID:             actor.UserID,
		TenantID:           tenantID,
		ShardID:            shardID,
		Roles:              actor.Roles,
		RequiredPermission: model.PermissionAdmin,
	})
	if err != nil {
		return err
	}
	if !result.HasAccess {
		auditLog := audit.AuditLog{
			Timestamp:     time.Now(),
			TenantID:      tenantID,
			ShardID:       shardID,
			PerformedBy:   actor.UserID,
			Action:        audit.ActionAdminDenied,
			AccessGranted: false,
		}
		if err := s.auditService.LogAccess(ctx, auditLog); err != nil {
			logger.Error("Failed to write admin-gate audit log", zap.Error(err))
		}
		return fmt.Errorf("%w: %s requires ADMIN on shard %s", acl_errors.ErrInsufficientPermission, actor.UserID, shardID)
	}
	return nil
}

// GrantPermission validates and writes a grant through the store, merging
// with any existing active entry, then invalidates the shard's cache.
func (s *ACLService) GrantPermission(ctx context.Context, input model.GrantInput, actor model.Actor) (*model.ACLEntry, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveDuration(util.TimingGrant, time.Since(start))
	}()

	if err := s.validationUtil.ValidateGrantInput(input); err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, input.TenantID, input.ShardID, actor); err != nil {
		return nil, err
	}

	entry := model.ACLEntry{
		TenantID:    input.TenantID,
		ShardID:     input.ShardID,
		Principal:   input.Principal(),
		Permissions: input.Permissions,
		GrantedBy:   actor.UserID,
		GrantedAt:   time.Now().UTC(),
	}

	stored, err := s.store.UpsertEntry(ctx, entry)
	if err != nil {
		logger.Error("Error granting permission",
			zap.Error(err),
			zap.String("tenantID", input.TenantID),
			zap.String("shardID", input.ShardID),
			zap.String("grantorID", actor.UserID))
		return nil, err
	}

	// Publish-after-commit: the store write is durable before anyone is
	// told to refetch.
	s.invalidateShard(ctx, input.TenantID, input.ShardID)
	s.metrics.IncrCounter(util.MetricGrants, 1)

	if err := s.notificationSvc.NotifyACLChange(ctx, "granted", *stored); err != nil {
		logger.Warn("Failed to send grant notification", zap.Error(err), zap.String("entryID", stored.ID))
	}

	logger.Info("Permission granted",
		zap.String("entryID", stored.ID),
		zap.String("tenantID", stored.TenantID),
		zap.String("shardID", stored.ShardID),
		zap.String("principal", stored.Principal.Key()),
		zap.String("grantorID", actor.UserID))
	return stored, nil
}

// RevokePermission removes the listed permissions (or the whole entry) for
// the principal, then invalidates the shard's cache.
func (s *ACLService) RevokePermission(ctx context.Context, input model.RevokeInput, actor model.Actor) error {
	if err := s.validationUtil.ValidateRevokeInput(input); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, input.TenantID, input.ShardID, actor); err != nil {
		return err
	}

	err := s.store.RemovePermissions(ctx, input.TenantID, input.ShardID, input.Principal(), input.Permissions, actor.UserID)
	if err != nil {
		if errors.Is(err, acl_errors.ErrEntryNotFound) {
			return err
		}
		logger.Error("Error revoking permission",
			zap.Error(err),
			zap.String("tenantID", input.TenantID),
			zap.String("shardID", input.ShardID),
			zap.String("revokerID", actor.UserID))
		return err
	}

	s.invalidateShard(ctx, input.TenantID, input.ShardID)
	s.metrics.IncrCounter(util.MetricRevokes, 1)

	logger.Info("Permission revoked",
		zap.String("tenantID", input.TenantID),
		zap.String("shardID", input.ShardID),
		zap.String("principal", input.Principal().Key()),
		zap.String("revokerID", actor.UserID))
	return nil
}

// UpdateACL applies a batch of grants and revocations to one shard as a
// sequence of store operations under a shard lock, followed by exactly one
// invalidation event. Partial failures surface as errors; the invalidation
// still runs so any applied writes become visible.
func (s *ACLService) UpdateACL(ctx context.Context, input model.UpdateACLInput, actor model.Actor) error {
	if err := s.validationUtil.ValidateUpdateInput(input); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, input.TenantID, input.ShardID, actor); err != nil {
		return err
	}

	if s.lockShard != nil {
		locked, err := s.lockShard(ctx, input.TenantID, input.ShardID, 10*time.Second)
		if err != nil {
			return fmt.Errorf("%w: %v", acl_errors.ErrStoreUnavailable, err)
		}
		if !locked {
			return fmt.Errorf("%w: concurrent ACL update in progress for shard %s", acl_errors.ErrDatabaseOperation, input.ShardID)
		}
		defer func() {
			if err := s.unlockShard(ctx, input.TenantID, input.ShardID); err != nil {
				logger.Warn("Failed to release shard lock", zap.Error(err), zap.String("shardID", input.ShardID))
			}
		}()
	}

	applied := 0
	var updateErr error
	for _, grant := range input.Grants {
		entry := model.ACLEntry{
			TenantID:    input.TenantID,
			ShardID:     input.ShardID,
			Principal:   grant.Principal(),
			Permissions: grant.Permissions,
			GrantedBy:   actor.UserID,
			GrantedAt:   time.Now().UTC(),
		}
		if _, err := s.store.UpsertEntry(ctx, entry); err != nil {
			updateErr = err
			break
		}
		applied++
	}
	if updateErr == nil {
		for _, revoke := range input.Revokes {
			if err := s.store.RemovePermissions(ctx, input.TenantID, input.ShardID, revoke.Principal(), revoke.Permissions, actor.UserID); err != nil {
				updateErr = err
				break
			}
			applied++
		}
	}

	// One invalidation for the whole batch, not one per entry.
	if applied > 0 {
		s.invalidateShard(ctx, input.TenantID, input.ShardID)
	}

	if updateErr != nil {
		logger.Error("ACL update failed partway",
			zap.Error(updateErr),
			zap.Int("applied", applied),
			zap.String("tenantID", input.TenantID),
			zap.String("shardID", input.ShardID))
		return fmt.Errorf("acl update applied %d of %d operations: %w", applied, len(input.Grants)+len(input.Revokes), updateErr)
	}

	s.metrics.IncrCounter(util.MetricUpdates, 1)
	logger.Info("ACL updated",
		zap.Int("operations", applied),
		zap.String("tenantID", input.TenantID),
		zap.String("shardID", input.ShardID),
		zap.String("updaterID", actor.UserID))
	return nil
}

// CheckPermission answers a single access check. A denial is a normal
// result; an error means the store was unreachable with nothing cached.
func (s *ACLService) CheckPermission(ctx context.Context, checkCtx model.AccessCheckContext) (model.AccessCheckResult, error) {
	if err := s.validationUtil.ValidateCheckContext(checkCtx); err != nil {
		return model.AccessCheckResult{}, err
	}
	return s.resolver.Check(ctx, checkCtx)
}

// BatchCheckPermissions checks one required level against many shards.
func (s *ACLService) BatchCheckPermissions(ctx context.Context, req model.BatchCheckRequest) (*model.BatchCheckResult, error) {
	if err := s.validationUtil.ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	return s.batch.BatchCheck(ctx, req)
}

// GetUserPermissions reports a user's effective permission set on a shard.
func (s *ACLService) GetUserPermissions(ctx context.Context, tenantID, shardID, userID string, roles []string) (model.UserPermissions, error) {
	if tenantID == "" || shardID == "" || userID == "" {
		return model.UserPermissions{}, fmt.Errorf("%w: tenant, shard and user IDs are required", acl_errors.ErrInvalidACLData)
	}
	return s.resolver.UserPermissions(ctx, tenantID, shardID, userID, roles)
}

// GetStats reports cache and operation counters.
func (s *ACLService) GetStats(ctx context.Context) model.EngineStats {
	return model.EngineStats{
		Cache:    s.cache.Stats(),
		Counters: s.metrics.Snapshot(),
	}
}

// InvalidateShardCache forces an eviction for one shard, locally and across
// the fleet. Exposed for operational use after manual store surgery.
func (s *ACLService) InvalidateShardCache(ctx context.Context, tenantID, shardID string) error {
	if tenantID == "" || shardID == "" {
		return fmt.Errorf("%w: tenant and shard IDs are required", acl_errors.ErrInvalidACLData)
	}
	s.invalidateShard(ctx, tenantID, shardID)
	return nil
}
