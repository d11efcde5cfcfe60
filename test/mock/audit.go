// test/mock/audit.go
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/pulsecrm/acl/audit"
)

// AuditRecorder is an in-memory audit.Service that records every log line.
type AuditRecorder struct {
	mu   sync.Mutex
	Logs []audit.AuditLog
}

var _ audit.Service = &AuditRecorder{}

func NewAuditRecorder() *AuditRecorder {
	return &AuditRecorder{}
}

func (r *AuditRecorder) LogAccess(ctx context.Context, log audit.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logs = append(r.Logs, log)
	return nil
}

func (r *AuditRecorder) QueryLogs(ctx context.Context, from, to time.Time, tenantID, shardID string) ([]audit.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.AuditLog
	for _, l := range r.Logs {
		if l.Timestamp.Before(from) || l.Timestamp.After(to) {
			continue
		}
		if tenantID != "" && l.TenantID != tenantID {
			continue
		}
		if shardID != "" && l.ShardID != shardID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// ActionsOf returns the recorded action names for one shard, in order.
func (r *AuditRecorder) ActionsOf(tenantID, shardID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.Logs {
		if l.TenantID != tenantID || l.ShardID != shardID {
			continue
		}
		out = append(out, l.Action)
	}
	return out
}
