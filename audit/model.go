// audit/model.go
package audit

import "time"

// Actions recorded in the audit trail.
const (
	ActionGrant       = "GRANT_PERMISSION"
	ActionRevoke      = "REVOKE_PERMISSION"
	ActionUpdate      = "UPDATE_ACL"
	ActionAdminDenied = "ADMIN_GATE_DENIED"
)

type AuditLog struct {
	Timestamp     time.Time `json:"timestamp"`
	TenantID      string    `json:"tenant_id"`
	ShardID       string    `json:"shard_id"`
	Principal     string    `json:"principal"`
	PerformedBy   string    `json:"performed_by"`
	Action        string    `json:"action"`
	AccessGranted bool      `json:"access_granted"`
	Details       string    `json:"details,omitempty"`
}
