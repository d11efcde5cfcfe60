// test/mock/store.go
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pulsecrm/acl/dao"
	acl_errors "github.com/pulsecrm/acl/errors"
	"github.com/pulsecrm/acl/model"
)

// ACLStoreStub is an in-memory dao.ACLStore with a read counter and a
// switchable failure mode, for exercising single-flight and fail-closed
// behavior without a database.
type ACLStoreStub struct {
	mu      sync.Mutex
	entries map[string]map[string]model.ACLEntry // shard key -> principal key -> entry

	ReadCount int64
	// FailReads makes ReadEntries return an error when set.
	FailReads atomic.Bool
	// FailShard makes reads of one specific shard fail.
	FailShard string
	// FailWrites makes UpsertEntry and RemovePermissions return an error.
	FailWrites atomic.Bool
	// ReadDelay simulates a slow store.
	ReadDelay time.Duration
}

var _ dao.ACLStore = &ACLStoreStub{}

func NewACLStoreStub() *ACLStoreStub {
	return &ACLStoreStub{entries: make(map[string]map[string]model.ACLEntry)}
}

func shardKey(tenantID, shardID string) string {
	return tenantID + "|" + shardID
}

func (s *ACLStoreStub) ReadEntries(ctx context.Context, tenantID, shardID string) ([]model.ACLEntry, error) {
	atomic.AddInt64(&s.ReadCount, 1)
	if s.ReadDelay > 0 {
		select {
		case <-time.After(s.ReadDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.FailReads.Load() || (s.FailShard != "" && s.FailShard == shardID) {
		return nil, fmt.Errorf("%w: store stub failure", acl_errors.ErrDatabaseOperation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ACLEntry
	for _, entry := range s.entries[shardKey(tenantID, shardID)] {
		if entry.Active() {
			out = append(out, entry)
		}
	}
	if out == nil {
		out = []model.ACLEntry{}
	}
	return out, nil
}

func (s *ACLStoreStub) UpsertEntry(ctx context.Context, entry model.ACLEntry) (*model.ACLEntry, error) {
	if s.FailWrites.Load() {
		return nil, fmt.Errorf("%w: store stub write failure", acl_errors.ErrDatabaseOperation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := shardKey(entry.TenantID, entry.ShardID)
	if s.entries[key] == nil {
		s.entries[key] = make(map[string]model.ACLEntry)
	}

	if existing, ok := s.entries[key][entry.Principal.Key()]; ok {
		// A revoked entry's old permission set stays revoked: only active
		// entries contribute to the merge.
		if existing.Active() {
			merged := make(map[model.PermissionLevel]struct{})
			for _, p := range existing.Permissions {
				merged[p] = struct{}{}
			}
			for _, p := range entry.Permissions {
				merged[p] = struct{}{}
			}
			entry.Permissions = entry.Permissions[:0]
			for _, p := range []model.PermissionLevel{model.PermissionRead, model.PermissionWrite, model.PermissionAdmin} {
				if _, ok := merged[p]; ok {
					entry.Permissions = append(entry.Permissions, p)
				}
			}
		}
		entry.ID = existing.ID
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.GrantedAt.IsZero() {
		entry.GrantedAt = time.Now().UTC()
	}
	entry.RevokedAt = nil
	entry.RevokedBy = ""

	s.entries[key][entry.Principal.Key()] = entry
	stored := entry
	return &stored, nil
}

func (s *ACLStoreStub) RemovePermissions(ctx context.Context, tenantID, shardID string, principal model.Principal, permissions []model.PermissionLevel, revokedBy string) error {
	if s.FailWrites.Load() {
		return fmt.Errorf("%w: store stub write failure", acl_errors.ErrDatabaseOperation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := shardKey(tenantID, shardID)
	entry, ok := s.entries[key][principal.Key()]
	if !ok || !entry.Active() {
		return acl_errors.ErrEntryNotFound
	}

	remaining := entry.Permissions
	if len(permissions) > 0 {
		remove := make(map[model.PermissionLevel]struct{}, len(permissions))
		for _, p := range permissions {
			remove[p] = struct{}{}
		}
		remaining = nil
		for _, p := range entry.Permissions {
			if _, gone := remove[p]; !gone {
				remaining = append(remaining, p)
			}
		}
	}

	if len(permissions) == 0 || len(remaining) == 0 {
		// Soft revoke: the permission list is kept for the audit trail but
		// the entry no longer reads back as active.
		now := time.Now().UTC()
		entry.RevokedAt = &now
		entry.RevokedBy = revokedBy
	} else {
		entry.Permissions = remaining
	}

	s.entries[key][principal.Key()] = entry
	return nil
}

func (s *ACLStoreStub) DeleteEntry(ctx context.Context, tenantID, shardID string, principal model.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[shardKey(tenantID, shardID)], principal.Key())
	return nil
}

// Reads returns the number of ReadEntries calls so far.
func (s *ACLStoreStub) Reads() int64 {
	return atomic.LoadInt64(&s.ReadCount)
}
