// controller/acl_controller_test.go
package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/acl/audit"
	"github.com/pulsecrm/acl/controller"
	acl_errors "github.com/pulsecrm/acl/errors"
	logger "github.com/pulsecrm/acl/logging"
	"github.com/pulsecrm/acl/model"
	test_mock "github.com/pulsecrm/acl/test/mock"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.InitLogger(os.TempDir())
	os.Exit(m.Run())
}

func setupRouter(svc *test_mock.MockACLService, auditSvc audit.Service) *gin.Engine {
	if auditSvc == nil {
		auditSvc = test_mock.NewAuditRecorder()
	}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "admin-1")
		c.Set("tenantID", "t1")
		c.Set("roles", []string{"super_admin"})
		c.Next()
	})
	api := r.Group("/api/v1")
	controller.NewACLController(svc, auditSvc).RegisterRoutes(api)
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGrantPermissionEndpoint(t *testing.T) {
	svc := new(test_mock.MockACLService)
	entry := &model.ACLEntry{
		ID:          "e1",
		TenantID:    "t1",
		ShardID:     "s1",
		Principal:   model.Principal{UserID: "u1"},
		Permissions: []model.PermissionLevel{model.PermissionRead},
	}
	svc.On("GrantPermission", mock.Anything,
		mock.MatchedBy(func(in model.GrantInput) bool {
			// Tenant scope always comes from the auth context, not the body.
			return in.TenantID == "t1" && in.UserID == "u1"
		}),
		model.Actor{UserID: "admin-1", Roles: []string{"super_admin"}},
	).Return(entry, nil)

	r := setupRouter(svc, nil)
	w := doJSON(r, http.MethodPost, "/api/v1/acl/grant", gin.H{
		"tenant_id":   "spoofed-tenant",
		"shard_id":    "s1",
		"user_id":     "u1",
		"permissions": []string{"READ"},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	var got model.ACLEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "e1", got.ID)
	svc.AssertExpectations(t)
}

func TestGrantPermissionForbidden(t *testing.T) {
	svc := new(test_mock.MockACLService)
	svc.On("GrantPermission", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, acl_errors.ErrInsufficientPermission)

	r := setupRouter(svc, nil)
	w := doJSON(r, http.MethodPost, "/api/v1/acl/grant", gin.H{
		"shard_id":    "s1",
		"user_id":     "u1",
		"permissions": []string{"READ"},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGrantPermissionMalformedBody(t *testing.T) {
	svc := new(test_mock.MockACLService)
	r := setupRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/acl/grant", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "GrantPermission")
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	svc := new(test_mock.MockACLService)
	r := gin.New()
	api := r.Group("/api/v1")
	controller.NewACLController(svc, test_mock.NewAuditRecorder()).RegisterRoutes(api)

	w := doJSON(r, http.MethodPost, "/api/v1/acl/grant", gin.H{
		"shard_id":    "s1",
		"user_id":     "u1",
		"permissions": []string{"READ"},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	svc.AssertNotCalled(t, "GrantPermission")
}

func TestRevokePermissionEndpoint(t *testing.T) {
	svc := new(test_mock.MockACLService)
	svc.On("RevokePermission", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	r := setupRouter(svc, nil)
	w := doJSON(r, http.MethodPost, "/api/v1/acl/revoke", gin.H{
		"shard_id": "s1",
		"user_id":  "u1",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRevokePermissionNotFound(t *testing.T) {
	svc := new(test_mock.MockACLService)
	svc.On("RevokePermission", mock.Anything, mock.Anything, mock.Anything).
		Return(acl_errors.ErrEntryNotFound)

	r := setupRouter(svc, nil)
	w := doJSON(r, http.MethodPost, "/api/v1/acl/revoke", gin.H{
		"shard_id": "s1",
		"user_id":  "ghost",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckPermissionEndpoint(t *testing.T) {
	svc := new(test_mock.MockACLService)
	svc.On("CheckPermission", mock.Anything,
		mock.MatchedBy(func(checkCtx model.AccessCheckContext) bool {
			// No user in the body: the check targets the caller with the
			// caller's gateway roles.
			return checkCtx.UserID == "admin-1" &&
				checkCtx.TenantID == "t1" &&
				checkCtx.ShardID == "s1" &&
				len(checkCtx.Roles) == 1 && checkCtx.Roles[0] == "super_admin" &&
				checkCtx.RequiredPermission == model.PermissionWrite
		}),
	).Return(model.AccessCheckResult{HasAccess: true, Source: model.SourceSuperAdmin}, nil)

	r := setupRouter(svc, nil)
	w := doJSON(r, http.MethodPost, "/api/v1/acl/check", gin.H{
		"shard_id":            "s1",
		"required_permission": "WRITE",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var result model.AccessCheckResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.HasAccess)
	assert.Equal(t, model.SourceSuperAdmin, result.Source)
	svc.AssertExpectations(t)
}

func TestCheckPermissionUnknownLevel(t *testing.T) {
	svc := new(test_mock.MockACLService)
	r := setupRouter(svc, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/acl/check", gin.H{
		"shard_id":            "s1",
		"required_permission": "OWNER",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "CheckPermission")
}

func TestCheckPermissionStoreUnavailable(t *testing.T) {
	svc := new(test_mock.MockACLService)
	svc.On("CheckPermission", mock.Anything, mock.Anything).
		Return(model.AccessCheckResult{Source: model.SourceError}, acl_errors.ErrStoreUnavailable)

	r := setupRouter(svc, nil)
	w := doJSON(r, http.MethodPost, "/api/v1/acl/check", gin.H{
		"shard_id":            "s1",
		"required_permission": "READ",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBatchCheckEndpoint(t *testing.T) {
	svc := new(test_mock.MockACLService)
	svc.On("BatchCheckPermissions", mock.Anything,
		mock.MatchedBy(func(req model.BatchCheckRequest) bool {
			return req.TenantID == "t1" && req.UserID == "u7" && len(req.ShardIDs) == 2
		}),
	).Return(&model.BatchCheckResult{
		UserID:   "u7",
		TenantID: "t1",
		Results: map[string]model.AccessCheckResult{
			"s1": {HasAccess: true, Source: model.SourceCache},
			"s2": {HasAccess: false, Source: model.SourceNone},
		},
		CacheHits:   1,
		CacheMisses: 1,
	}, nil)

	r := setupRouter(svc, nil)
	w := doJSON(r, http.MethodPost, "/api/v1/acl/batch-check", gin.H{
		"shard_ids":           []string{"s1", "s2"},
		"required_permission": "READ",
		"user_id":             "u7",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var result model.BatchCheckResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Len(t, result.Results, 2)
	assert.Equal(t, 1, result.CacheHits)
}

func TestGetUserPermissionsEndpoint(t *testing.T) {
	svc := new(test_mock.MockACLService)
	svc.On("GetUserPermissions", mock.Anything, "t1", "s1", "u1", []string{"editors"}).
		Return(model.UserPermissions{
			UserID:      "u1",
			TenantID:    "t1",
			ShardID:     "s1",
			Permissions: []model.PermissionLevel{model.PermissionRead},
			Highest:     model.PermissionRead,
		}, nil)

	r := setupRouter(svc, nil)
	w := doJSON(r, http.MethodGet, "/api/v1/acl/shards/s1/users/u1/permissions?role=editors", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var perms model.UserPermissions
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &perms))
	assert.Equal(t, model.PermissionRead, perms.Highest)
}

func TestInvalidateShardCacheEndpoint(t *testing.T) {
	svc := new(test_mock.MockACLService)
	svc.On("InvalidateShardCache", mock.Anything, "t1", "s1").Return(nil)

	r := setupRouter(svc, nil)
	w := doJSON(r, http.MethodPost, "/api/v1/acl/shards/s1/invalidate", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	svc.AssertExpectations(t)
}

func TestGetStatsEndpoint(t *testing.T) {
	svc := new(test_mock.MockACLService)
	svc.On("GetStats", mock.Anything).Return(model.EngineStats{
		Cache:    model.CacheStats{Hits: 10, Misses: 2},
		Counters: map[string]int64{"acl.checks": 12},
	})

	r := setupRouter(svc, nil)
	w := doJSON(r, http.MethodGet, "/api/v1/acl/stats", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var stats model.EngineStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(10), stats.Cache.Hits)
}

func TestQueryAuditLogsEndpoint(t *testing.T) {
	svc := new(test_mock.MockACLService)
	recorder := test_mock.NewAuditRecorder()
	require.NoError(t, recorder.LogAccess(context.Background(), audit.AuditLog{
		Timestamp: time.Now(),
		TenantID:  "t1",
		ShardID:   "s1",
		Action:    audit.ActionGrant,
	}))
	require.NoError(t, recorder.LogAccess(context.Background(), audit.AuditLog{
		Timestamp: time.Now(),
		TenantID:  "t2",
		ShardID:   "s1",
		Action:    audit.ActionGrant,
	}))

	r := setupRouter(svc, recorder)
	w := doJSON(r, http.MethodGet, "/api/v1/acl/audit?shardId=s1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var logs []audit.AuditLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 1, "audit queries are tenant scoped")
	assert.Equal(t, "t1", logs[0].TenantID)
}

func TestQueryAuditLogsBadPagination(t *testing.T) {
	svc := new(test_mock.MockACLService)
	r := setupRouter(svc, nil)

	w := doJSON(r, http.MethodGet, "/api/v1/acl/audit?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
