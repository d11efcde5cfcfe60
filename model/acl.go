// model/acl.go
package model

import "time"

// PermissionLevel is a closed, totally ordered set of access levels.
// Holding a higher level implies every lower level on the same shard.
type PermissionLevel string

const (
	PermissionRead  PermissionLevel = "READ"
	PermissionWrite PermissionLevel = "WRITE"
	PermissionAdmin PermissionLevel = "ADMIN"
)

var permissionRank = map[PermissionLevel]int{
	PermissionRead:  1,
	PermissionWrite: 2,
	PermissionAdmin: 3,
}

// Valid reports whether the level is one of the known permission levels.
func (p PermissionLevel) Valid() bool {
	_, ok := permissionRank[p]
	return ok
}

// Covers reports whether holding p satisfies a requirement of required
// under the monotonic ordering READ < WRITE < ADMIN.
func (p PermissionLevel) Covers(required PermissionLevel) bool {
	pr, ok := permissionRank[p]
	if !ok {
		return false
	}
	rr, ok := permissionRank[required]
	if !ok {
		return false
	}
	return pr >= rr
}

// ParsePermissionLevel normalizes and validates a raw permission string.
func ParsePermissionLevel(raw string) (PermissionLevel, bool) {
	switch PermissionLevel(raw) {
	case PermissionRead, PermissionWrite, PermissionAdmin:
		return PermissionLevel(raw), true
	}
	// Accept lowercase input from older API clients.
	switch raw {
	case "read":
		return PermissionRead, true
	case "write":
		return PermissionWrite, true
	case "admin":
		return PermissionAdmin, true
	}
	return "", false
}

// HighestPermission returns the highest level in the set, or "" for an empty set.
func HighestPermission(levels []PermissionLevel) PermissionLevel {
	var best PermissionLevel
	bestRank := 0
	for _, l := range levels {
		if r, ok := permissionRank[l]; ok && r > bestRank {
			best, bestRank = l, r
		}
	}
	return best
}

// Principal identifies the holder of a grant: exactly one of UserID or
// RoleID must be set.
type Principal struct {
	UserID string `json:"user_id,omitempty"`
	RoleID string `json:"role_id,omitempty"`
}

// IsUser reports whether the principal is a user principal.
func (p Principal) IsUser() bool {
	return p.UserID != ""
}

// Key returns a stable identity string used for entry merging and store keys.
func (p Principal) Key() string {
	if p.UserID != "" {
		return "user:" + p.UserID
	}
	return "role:" + p.RoleID
}

// ACLEntry is one durable grant record linking a principal to a permission
// set on a shard. There is at most one active entry per
// (tenant, shard, principal); re-granting merges permission sets.
type ACLEntry struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	ShardID     string            `json:"shard_id"`
	Principal   Principal         `json:"principal"`
	Permissions []PermissionLevel `json:"permissions"`
	GrantedBy   string            `json:"granted_by"`
	GrantedAt   time.Time         `json:"granted_at"`
	RevokedBy   string            `json:"revoked_by,omitempty"`
	RevokedAt   *time.Time        `json:"revoked_at,omitempty"`
}

// Active reports whether the entry has not been soft-deleted.
func (e ACLEntry) Active() bool {
	return e.RevokedAt == nil
}

// Covers reports whether the entry's permission set satisfies required.
func (e ACLEntry) Covers(required PermissionLevel) bool {
	for _, p := range e.Permissions {
		if p.Covers(required) {
			return true
		}
	}
	return false
}
