// model/neo4j/acl.go
package acl_neo4j

// Node labels
const (
	// LabelACLEntry represents one durable grant record
	LabelACLEntry = "ACLEntry"
)

// ACLEntry node properties
const (
	PropID          = "id"
	PropTenantID    = "tenant_id"
	PropShardID     = "shard_id"
	PropPrincipal   = "principal"
	PropUserID      = "user_id"
	PropRoleID      = "role_id"
	PropPermissions = "permissions"
	PropGrantedBy   = "granted_by"
	PropGrantedAt   = "granted_at"
	PropRevokedBy   = "revoked_by"
	PropRevokedAt   = "revoked_at"
)
