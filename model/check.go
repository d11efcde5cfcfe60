// model/check.go
package model

import "time"

// CheckSource records why a check was granted or denied.
type CheckSource string

const (
	SourceDirect     CheckSource = "direct"
	SourceRole       CheckSource = "role"
	SourceSuperAdmin CheckSource = "super_admin"
	SourceCache      CheckSource = "cache"
	SourceStale      CheckSource = "stale_on_timeout"
	SourceError      CheckSource = "error"
	SourceNone       CheckSource = "none"
)

// AccessCheckContext is the immutable input of a single permission check.
// Roles come from the authenticated principal's claims; the engine never
// fetches them, which keeps the super-admin bypass store-free.
type AccessCheckContext struct {
	UserID             string          `json:"user_id"`
	TenantID           string          `json:"tenant_id"`
	ShardID            string          `json:"shard_id"`
	Roles              []string        `json:"roles,omitempty"`
	RequiredPermission PermissionLevel `json:"required_permission"`
}

// AccessCheckResult is the outcome of one permission check.
type AccessCheckResult struct {
	HasAccess         bool            `json:"has_access"`
	Source            CheckSource     `json:"source"`
	MatchedPermission PermissionLevel `json:"matched_permission,omitempty"`
	EvaluatedAt       time.Time       `json:"evaluated_at"`
}

// BatchCheckRequest checks one required level against many shards for a user.
type BatchCheckRequest struct {
	UserID             string          `json:"user_id"`
	TenantID           string          `json:"tenant_id"`
	ShardIDs           []string        `json:"shard_ids"`
	Roles              []string        `json:"roles,omitempty"`
	RequiredPermission PermissionLevel `json:"required_permission"`
}

// BatchCheckResult holds exactly one result per requested shard. Duplicate
// shard IDs in the request share a single evaluation.
type BatchCheckResult struct {
	UserID      string                       `json:"user_id"`
	TenantID    string                       `json:"tenant_id"`
	Results     map[string]AccessCheckResult `json:"results"`
	CacheHits   int                          `json:"cache_hits"`
	CacheMisses int                          `json:"cache_misses"`
	CheckedAt   time.Time                    `json:"checked_at"`
}

// GrantInput is the request shape for granting permissions on a shard.
type GrantInput struct {
	TenantID    string            `json:"tenant_id"`
	ShardID     string            `json:"shard_id"`
	UserID      string            `json:"user_id,omitempty"`
	RoleID      string            `json:"role_id,omitempty"`
	Permissions []PermissionLevel `json:"permissions"`
}

// Principal builds the grant's principal from whichever ID is set.
func (in GrantInput) Principal() Principal {
	return Principal{UserID: in.UserID, RoleID: in.RoleID}
}

// RevokeInput removes the listed permissions from a principal's entry, or
// the whole entry when Permissions is empty.
type RevokeInput struct {
	TenantID    string            `json:"tenant_id"`
	ShardID     string            `json:"shard_id"`
	UserID      string            `json:"user_id,omitempty"`
	RoleID      string            `json:"role_id,omitempty"`
	Permissions []PermissionLevel `json:"permissions,omitempty"`
}

// Principal builds the revocation target from whichever ID is set.
func (in RevokeInput) Principal() Principal {
	return Principal{UserID: in.UserID, RoleID: in.RoleID}
}

// UpdateACLInput applies a batch of grants and revocations to one shard,
// followed by a single invalidation event for the shard.
type UpdateACLInput struct {
	TenantID string        `json:"tenant_id"`
	ShardID  string        `json:"shard_id"`
	Grants   []GrantInput  `json:"grants,omitempty"`
	Revokes  []RevokeInput `json:"revokes,omitempty"`
}

// UserPermissions summarizes a user's effective access on one shard.
type UserPermissions struct {
	UserID      string            `json:"user_id"`
	TenantID    string            `json:"tenant_id"`
	ShardID     string            `json:"shard_id"`
	Permissions []PermissionLevel `json:"permissions"`
	Highest     PermissionLevel   `json:"highest,omitempty"`
	SuperAdmin  bool              `json:"super_admin"`
}

// InvalidationEvent is the payload published whenever a mutation commits.
type InvalidationEvent struct {
	TenantID string `json:"tenant_id"`
	ShardID  string `json:"shard_id"`
}
