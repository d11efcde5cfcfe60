// engine/resolver_test.go
package engine_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/acl/cache"
	"github.com/pulsecrm/acl/engine"
	acl_errors "github.com/pulsecrm/acl/errors"
	logger "github.com/pulsecrm/acl/logging"
	"github.com/pulsecrm/acl/model"
	test_mock "github.com/pulsecrm/acl/test/mock"
	"github.com/pulsecrm/acl/util"
)

func TestMain(m *testing.M) {
	logger.InitLogger(os.TempDir())
	os.Exit(m.Run())
}

var defaultAliases = []string{"super_admin", "global_admin"}

func newResolver(store *test_mock.ACLStoreStub, ttl time.Duration) (*engine.Resolver, *cache.ShardCache) {
	c := cache.NewShardCache(ttl, ttl)
	r := engine.NewResolver(store, c, defaultAliases, util.NoopMetrics{}, time.Second)
	return r, c
}

func seedDirect(store *test_mock.ACLStoreStub, tenantID, shardID, userID string, levels ...model.PermissionLevel) {
	_, _ = store.UpsertEntry(context.Background(), model.ACLEntry{
		TenantID:    tenantID,
		ShardID:     shardID,
		Principal:   model.Principal{UserID: userID},
		Permissions: levels,
		GrantedBy:   "seed",
	})
}

func seedRole(store *test_mock.ACLStoreStub, tenantID, shardID, roleID string, levels ...model.PermissionLevel) {
	_, _ = store.UpsertEntry(context.Background(), model.ACLEntry{
		TenantID:    tenantID,
		ShardID:     shardID,
		Principal:   model.Principal{RoleID: roleID},
		Permissions: levels,
		GrantedBy:   "seed",
	})
}

func TestSuperAdminBypassSkipsStore(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)

	// Mixed case, hyphenated alias must match and must cost zero store reads.
	result, err := r.Check(context.Background(), model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "t1",
		ShardID:            "s1",
		Roles:              []string{"Global-Admin"},
		RequiredPermission: model.PermissionAdmin,
	})
	require.NoError(t, err)
	assert.True(t, result.HasAccess)
	assert.Equal(t, model.SourceSuperAdmin, result.Source)
	assert.Equal(t, int64(0), store.Reads())
}

func TestSuperAdminAliasNormalization(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)

	for _, role := range []string{"super_admin", "super-admin", "SuperAdmin", "SUPER-ADMIN", "globaladmin"} {
		assert.True(t, r.IsSuperAdmin([]string{role}), "role %q should match", role)
	}
	assert.False(t, r.IsSuperAdmin([]string{"admin"}))
	assert.False(t, r.IsSuperAdmin(nil))
}

func TestMonotonicImplication(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)
	seedDirect(store, "t1", "s1", "u1", model.PermissionAdmin)

	for _, required := range []model.PermissionLevel{model.PermissionRead, model.PermissionWrite, model.PermissionAdmin} {
		result, err := r.Check(context.Background(), model.AccessCheckContext{
			UserID:             "u1",
			TenantID:           "t1",
			ShardID:            "s1",
			RequiredPermission: required,
		})
		require.NoError(t, err)
		assert.True(t, result.HasAccess, "ADMIN grant must satisfy %s", required)
	}
}

func TestDirectGrantScenario(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)
	seedDirect(store, "T1", "S1", "u1", model.PermissionRead, model.PermissionWrite)

	result, err := r.Check(context.Background(), model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "T1",
		ShardID:            "S1",
		RequiredPermission: model.PermissionAdmin,
	})
	require.NoError(t, err)
	assert.False(t, result.HasAccess)

	result, err = r.Check(context.Background(), model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "T1",
		ShardID:            "S1",
		RequiredPermission: model.PermissionWrite,
	})
	require.NoError(t, err)
	assert.True(t, result.HasAccess)
	assert.Equal(t, model.SourceDirect, result.Source)
	assert.Equal(t, model.PermissionWrite, result.MatchedPermission)
}

func TestRoleGrant(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)
	seedRole(store, "t1", "s1", "editors", model.PermissionWrite)

	result, err := r.Check(context.Background(), model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "t1",
		ShardID:            "s1",
		Roles:              []string{"editors"},
		RequiredPermission: model.PermissionWrite,
	})
	require.NoError(t, err)
	assert.True(t, result.HasAccess)
	assert.Equal(t, model.SourceRole, result.Source)
}

func TestDirectGrantTakesPrecedenceOverRole(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)
	seedDirect(store, "t1", "s1", "u1", model.PermissionWrite)
	seedRole(store, "t1", "s1", "editors", model.PermissionWrite)

	result, err := r.Check(context.Background(), model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "t1",
		ShardID:            "s1",
		Roles:              []string{"editors"},
		RequiredPermission: model.PermissionWrite,
	})
	require.NoError(t, err)
	assert.True(t, result.HasAccess)
	assert.Equal(t, model.SourceDirect, result.Source)
}

func TestDenyWithoutGrants(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)

	result, err := r.Check(context.Background(), model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "t1",
		ShardID:            "s1",
		RequiredPermission: model.PermissionRead,
	})
	require.NoError(t, err)
	assert.False(t, result.HasAccess)
	assert.Equal(t, model.SourceNone, result.Source)
}

func TestTenantIsolation(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)
	seedDirect(store, "t1", "s1", "u1", model.PermissionAdmin)

	result, err := r.Check(context.Background(), model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "t2",
		ShardID:            "s1",
		RequiredPermission: model.PermissionRead,
	})
	require.NoError(t, err)
	assert.False(t, result.HasAccess, "a grant in t1 must not leak into t2")
}

func TestSecondCheckServedFromCache(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)
	seedDirect(store, "t1", "s1", "u1", model.PermissionRead)

	checkCtx := model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "t1",
		ShardID:            "s1",
		RequiredPermission: model.PermissionRead,
	}

	first, err := r.Check(context.Background(), checkCtx)
	require.NoError(t, err)
	assert.Equal(t, model.SourceDirect, first.Source)

	second, err := r.Check(context.Background(), checkCtx)
	require.NoError(t, err)
	assert.True(t, second.HasAccess)
	assert.Equal(t, model.SourceCache, second.Source)
	assert.Equal(t, int64(1), store.Reads())
}

func TestFailClosedWithoutSnapshot(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	store.FailReads.Store(true)
	r, _ := newResolver(store, time.Minute)

	result, err := r.Check(context.Background(), model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "t1",
		ShardID:            "s1",
		RequiredPermission: model.PermissionRead,
	})
	require.ErrorIs(t, err, acl_errors.ErrStoreUnavailable)
	assert.False(t, result.HasAccess)
	assert.Equal(t, model.SourceError, result.Source)
}

func TestStaleSnapshotServedOnStoreFailure(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, 20*time.Millisecond)
	seedDirect(store, "t1", "s1", "u1", model.PermissionWrite)

	// Warm the snapshot, let it expire, then kill the store.
	_, err := r.Check(context.Background(), model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "t1",
		ShardID:            "s1",
		RequiredPermission: model.PermissionWrite,
	})
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	store.FailReads.Store(true)

	result, err := r.Check(context.Background(), model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "t1",
		ShardID:            "s1",
		RequiredPermission: model.PermissionWrite,
	})
	require.NoError(t, err)
	assert.True(t, result.HasAccess)
	assert.Equal(t, model.SourceStale, result.Source)
}

func TestSingleFlightUnderConcurrentChecks(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	store.ReadDelay = 50 * time.Millisecond
	r, _ := newResolver(store, time.Minute)
	seedDirect(store, "t1", "s1", "u1", model.PermissionRead)

	checkCtx := model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "t1",
		ShardID:            "s1",
		RequiredPermission: model.PermissionRead,
	}

	const workers = 50
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]model.AccessCheckResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = r.Check(context.Background(), checkCtx)
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), store.Reads(), "concurrent cold-cache checks must coalesce to one store read")
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i].HasAccess)
	}
}

func TestRevokedEntryIsIgnored(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)
	seedDirect(store, "t1", "s1", "u1", model.PermissionAdmin)
	require.NoError(t, store.RemovePermissions(context.Background(), "t1", "s1", model.Principal{UserID: "u1"}, nil, "seed"))

	result, err := r.Check(context.Background(), model.AccessCheckContext{
		UserID:             "u1",
		TenantID:           "t1",
		ShardID:            "s1",
		RequiredPermission: model.PermissionRead,
	})
	require.NoError(t, err)
	assert.False(t, result.HasAccess)
}

func TestUserPermissionsUnion(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)
	seedDirect(store, "t1", "s1", "u1", model.PermissionRead)
	seedRole(store, "t1", "s1", "editors", model.PermissionWrite)
	seedRole(store, "t1", "s1", "viewers", model.PermissionRead)

	perms, err := r.UserPermissions(context.Background(), "t1", "s1", "u1", []string{"editors"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.PermissionLevel{model.PermissionRead, model.PermissionWrite}, perms.Permissions)
	assert.Equal(t, model.PermissionWrite, perms.Highest)
	assert.False(t, perms.SuperAdmin)
}

func TestUserPermissionsSuperAdmin(t *testing.T) {
	store := test_mock.NewACLStoreStub()
	r, _ := newResolver(store, time.Minute)

	perms, err := r.UserPermissions(context.Background(), "t1", "s1", "u1", []string{"Super_Admin"})
	require.NoError(t, err)
	assert.True(t, perms.SuperAdmin)
	assert.Equal(t, model.PermissionAdmin, perms.Highest)
	assert.Equal(t, int64(0), store.Reads())
}
