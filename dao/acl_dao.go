// dao/acl_dao.go
package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/pulsecrm/acl/audit"
	acl_errors "github.com/pulsecrm/acl/errors"
	logger "github.com/pulsecrm/acl/logging"
	"github.com/pulsecrm/acl/model"
	acl_neo4j "github.com/pulsecrm/acl/model/neo4j"
)

// ACLStore is the durable-store contract the engine and service depend on.
// A shard with no entries reads back as an empty slice, never an error.
type ACLStore interface {
	ReadEntries(ctx context.Context, tenantID, shardID string) ([]model.ACLEntry, error)
	UpsertEntry(ctx context.Context, entry model.ACLEntry) (*model.ACLEntry, error)
	RemovePermissions(ctx context.Context, tenantID, shardID string, principal model.Principal, permissions []model.PermissionLevel, revokedBy string) error
	DeleteEntry(ctx context.Context, tenantID, shardID string, principal model.Principal) error
}

type ACLDAO struct {
	Driver       neo4j.Driver
	AuditService audit.Service
}

var _ ACLStore = &ACLDAO{}

func NewACLDAO(driver neo4j.Driver, auditService audit.Service) *ACLDAO {
	dao := &ACLDAO{Driver: driver, AuditService: auditService}
	ctx := context.Background()
	if err := dao.EnsureConstraints(ctx); err != nil {
		logger.Fatal("Failed to ensure constraints for ACLEntry", zap.Error(err))
	}
	return dao
}

func (dao *ACLDAO) EnsureConstraints(ctx context.Context) error {
	logger.Info("Ensuring unique constraint on ACLEntry ID")
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        CREATE CONSTRAINT unique_acl_entry_id IF NOT EXISTS
        FOR (e:` + acl_neo4j.LabelACLEntry + `) REQUIRE e.id IS UNIQUE
        `
		if _, err := transaction.Run(query, nil); err != nil {
			return nil, err
		}

		query = `
        CREATE INDEX acl_entry_shard IF NOT EXISTS
        FOR (e:` + acl_neo4j.LabelACLEntry + `) ON (e.tenant_id, e.shard_id)
        `
		_, err := transaction.Run(query, nil)
		return nil, err
	})

	if err != nil {
		logger.Error("Failed to ensure constraints on ACLEntry", zap.Error(err))
		return err
	}

	return nil
}

// ReadEntries returns every active entry for the shard.
func (dao *ACLDAO) ReadEntries(ctx context.Context, tenantID, shardID string) ([]model.ACLEntry, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.ReadTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (e:` + acl_neo4j.LabelACLEntry + ` {tenant_id: $tenantID, shard_id: $shardID})
        WHERE e.revoked_at IS NULL
        RETURN e
        `
		records, err := transaction.Run(query, map[string]interface{}{
			"tenantID": tenantID,
			"shardID":  shardID,
		})
		if err != nil {
			return nil, err
		}

		var entries []model.ACLEntry
		for records.Next() {
			node, ok := records.Record().Values[0].(neo4j.Node)
			if !ok {
				continue
			}
			entry, err := entryFromProps(node.Props)
			if err != nil {
				logger.Warn("Skipping malformed ACL entry node",
					zap.Error(err),
					zap.String("tenantID", tenantID),
					zap.String("shardID", shardID))
				continue
			}
			entries = append(entries, entry)
		}
		return entries, records.Err()
	})

	if err != nil {
		logger.Error("Failed to read ACL entries",
			zap.Error(err),
			zap.String("tenantID", tenantID),
			zap.String("shardID", shardID))
		return nil, fmt.Errorf("%w: %v", acl_errors.ErrDatabaseOperation, err)
	}

	entries, _ := result.([]model.ACLEntry)
	if entries == nil {
		entries = []model.ACLEntry{}
	}
	return entries, nil
}

// UpsertEntry writes a grant through to the store. If an active entry for
// the same (tenant, shard, principal) exists its permission set is merged
// with the new one. A revoked entry is reactivated with only the newly
// granted permissions: its old set stays revoked. The stored entry is
// returned.
func (dao *ACLDAO) UpsertEntry(ctx context.Context, entry model.ACLEntry) (*model.ACLEntry, error) {
	start := time.Now()
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.GrantedAt.IsZero() {
		entry.GrantedAt = time.Now().UTC()
	}

	result, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (e:` + acl_neo4j.LabelACLEntry + ` {tenant_id: $tenantID, shard_id: $shardID, principal: $principal})
        WHERE e.revoked_at IS NULL
        RETURN e.permissions AS permissions
        `
		existing, err := transaction.Run(query, map[string]interface{}{
			"tenantID":  entry.TenantID,
			"shardID":   entry.ShardID,
			"principal": entry.Principal.Key(),
		})
		if err != nil {
			return nil, err
		}

		merged := permissionSet(entry.Permissions)
		if existing.Next() {
			if raw, ok := existing.Record().Values[0].([]interface{}); ok {
				for _, p := range raw {
					if s, ok := p.(string); ok {
						if level, valid := model.ParsePermissionLevel(s); valid {
							merged[level] = struct{}{}
						}
					}
				}
			}
		}
		entry.Permissions = permissionList(merged)

		query = `
        MERGE (e:` + acl_neo4j.LabelACLEntry + ` {tenant_id: $tenantID, shard_id: $shardID, principal: $principal})
        ON CREATE SET e.id = $id
        SET e.user_id = $userID,
            e.role_id = $roleID,
            e.permissions = $permissions,
            e.granted_by = $grantedBy,
            e.granted_at = $grantedAt,
            e.revoked_by = NULL,
            e.revoked_at = NULL
        RETURN e.id AS id
        `
		records, err := transaction.Run(query, map[string]interface{}{
			"tenantID":    entry.TenantID,
			"shardID":     entry.ShardID,
			"principal":   entry.Principal.Key(),
			"id":          entry.ID,
			"userID":      entry.Principal.UserID,
			"roleID":      entry.Principal.RoleID,
			"permissions": permissionStrings(entry.Permissions),
			"grantedBy":   entry.GrantedBy,
			"grantedAt":   entry.GrantedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		if records.Next() {
			return records.Record().Values[0], nil
		}
		return nil, acl_errors.ErrInternalServer
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to upsert ACL entry",
			zap.Error(err),
			zap.String("tenantID", entry.TenantID),
			zap.String("shardID", entry.ShardID),
			zap.String("principal", entry.Principal.Key()),
			zap.Duration("duration", duration))
		return nil, fmt.Errorf("%w: %v", acl_errors.ErrDatabaseOperation, err)
	}

	entry.ID = fmt.Sprintf("%v", result)
	logger.Info("ACL entry upserted",
		zap.String("entryID", entry.ID),
		zap.String("tenantID", entry.TenantID),
		zap.String("shardID", entry.ShardID),
		zap.String("principal", entry.Principal.Key()),
		zap.Duration("duration", duration))

	dao.logAudit(ctx, audit.ActionGrant, entry.TenantID, entry.ShardID, entry.Principal.Key(), entry.GrantedBy, true)

	return &entry, nil
}

// RemovePermissions subtracts the listed permissions from the principal's
// entry. With an empty list, or when nothing remains after subtraction, the
// entry is soft-revoked.
func (dao *ACLDAO) RemovePermissions(ctx context.Context, tenantID, shardID string, principal model.Principal, permissions []model.PermissionLevel, revokedBy string) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (e:` + acl_neo4j.LabelACLEntry + ` {tenant_id: $tenantID, shard_id: $shardID, principal: $principal})
        WHERE e.revoked_at IS NULL
        RETURN e.permissions AS permissions
        `
		existing, err := transaction.Run(query, map[string]interface{}{
			"tenantID":  tenantID,
			"shardID":   shardID,
			"principal": principal.Key(),
		})
		if err != nil {
			return nil, err
		}
		if !existing.Next() {
			return nil, acl_errors.ErrEntryNotFound
		}

		remaining := make(map[model.PermissionLevel]struct{})
		if raw, ok := existing.Record().Values[0].([]interface{}); ok {
			for _, p := range raw {
				if s, ok := p.(string); ok {
					if level, valid := model.ParsePermissionLevel(s); valid {
						remaining[level] = struct{}{}
					}
				}
			}
		}
		if len(permissions) == 0 {
			remaining = map[model.PermissionLevel]struct{}{}
		} else {
			for _, p := range permissions {
				delete(remaining, p)
			}
		}

		if len(remaining) == 0 {
			query = `
            MATCH (e:` + acl_neo4j.LabelACLEntry + ` {tenant_id: $tenantID, shard_id: $shardID, principal: $principal})
            SET e.revoked_by = $revokedBy, e.revoked_at = $revokedAt
            `
			_, err = transaction.Run(query, map[string]interface{}{
				"tenantID":  tenantID,
				"shardID":   shardID,
				"principal": principal.Key(),
				"revokedBy": revokedBy,
				"revokedAt": time.Now().UTC().Format(time.RFC3339Nano),
			})
			return nil, err
		}

		query = `
        MATCH (e:` + acl_neo4j.LabelACLEntry + ` {tenant_id: $tenantID, shard_id: $shardID, principal: $principal})
        SET e.permissions = $permissions
        `
		_, err = transaction.Run(query, map[string]interface{}{
			"tenantID":    tenantID,
			"shardID":     shardID,
			"principal":   principal.Key(),
			"permissions": permissionStrings(permissionList(remaining)),
		})
		return nil, err
	})

	if err != nil {
		if err == acl_errors.ErrEntryNotFound {
			return err
		}
		logger.Error("Failed to remove permissions",
			zap.Error(err),
			zap.String("tenantID", tenantID),
			zap.String("shardID", shardID),
			zap.String("principal", principal.Key()))
		return fmt.Errorf("%w: %v", acl_errors.ErrDatabaseOperation, err)
	}

	dao.logAudit(ctx, audit.ActionRevoke, tenantID, shardID, principal.Key(), revokedBy, true)
	return nil
}

// DeleteEntry removes the principal's entry outright.
func (dao *ACLDAO) DeleteEntry(ctx context.Context, tenantID, shardID string, principal model.Principal) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (e:` + acl_neo4j.LabelACLEntry + ` {tenant_id: $tenantID, shard_id: $shardID, principal: $principal})
        DELETE e
        `
		_, err := transaction.Run(query, map[string]interface{}{
			"tenantID":  tenantID,
			"shardID":   shardID,
			"principal": principal.Key(),
		})
		return nil, err
	})

	if err != nil {
		logger.Error("Failed to delete ACL entry",
			zap.Error(err),
			zap.String("tenantID", tenantID),
			zap.String("shardID", shardID),
			zap.String("principal", principal.Key()))
		return fmt.Errorf("%w: %v", acl_errors.ErrDatabaseOperation, err)
	}
	return nil
}

func (dao *ACLDAO) logAudit(ctx context.Context, action, tenantID, shardID, principal, performedBy string, granted bool) {
	auditLog := audit.AuditLog{
		Timestamp:     time.Now(),
		TenantID:      tenantID,
		ShardID:       shardID,
		Principal:     principal,
		PerformedBy:   performedBy,
		Action:        action,
		AccessGranted: granted,
	}
	if err := dao.AuditService.LogAccess(ctx, auditLog); err != nil {
		logger.Error("Failed to create audit log", zap.Error(err))
	}
}

func entryFromProps(props map[string]interface{}) (model.ACLEntry, error) {
	entry := model.ACLEntry{
		ID:       stringProp(props, acl_neo4j.PropID),
		TenantID: stringProp(props, acl_neo4j.PropTenantID),
		ShardID:  stringProp(props, acl_neo4j.PropShardID),
		Principal: model.Principal{
			UserID: stringProp(props, acl_neo4j.PropUserID),
			RoleID: stringProp(props, acl_neo4j.PropRoleID),
		},
		GrantedBy: stringProp(props, acl_neo4j.PropGrantedBy),
	}
	if entry.ID == "" {
		return entry, fmt.Errorf("entry missing id")
	}

	if raw, ok := props[acl_neo4j.PropPermissions].([]interface{}); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				if level, valid := model.ParsePermissionLevel(s); valid {
					entry.Permissions = append(entry.Permissions, level)
				}
			}
		}
	}
	if len(entry.Permissions) == 0 {
		return entry, fmt.Errorf("entry %s has no valid permissions", entry.ID)
	}

	if raw := stringProp(props, acl_neo4j.PropGrantedAt); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			entry.GrantedAt = t
		}
	}
	if raw := stringProp(props, acl_neo4j.PropRevokedAt); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			entry.RevokedAt = &t
			entry.RevokedBy = stringProp(props, acl_neo4j.PropRevokedBy)
		}
	}
	return entry, nil
}

func stringProp(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func permissionSet(levels []model.PermissionLevel) map[model.PermissionLevel]struct{} {
	set := make(map[model.PermissionLevel]struct{}, len(levels))
	for _, l := range levels {
		set[l] = struct{}{}
	}
	return set
}

func permissionList(set map[model.PermissionLevel]struct{}) []model.PermissionLevel {
	out := make([]model.PermissionLevel, 0, len(set))
	for _, l := range []model.PermissionLevel{model.PermissionRead, model.PermissionWrite, model.PermissionAdmin} {
		if _, ok := set[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

func permissionStrings(levels []model.PermissionLevel) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}
