// controller/acl_controller.go
package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulsecrm/acl/audit"
	acl_errors "github.com/pulsecrm/acl/errors"
	"github.com/pulsecrm/acl/model"
	"github.com/pulsecrm/acl/service"
	"github.com/pulsecrm/acl/util"
	helper_util "github.com/pulsecrm/acl/util/helper"
)

type ACLController struct {
	aclService   service.IACLService
	auditService audit.Service
}

func NewACLController(aclService service.IACLService, auditService audit.Service) *ACLController {
	return &ACLController{
		aclService:   aclService,
		auditService: auditService,
	}
}

// RegisterRoutes registers the API routes for ACL operations
func (ac *ACLController) RegisterRoutes(r *gin.RouterGroup) {
	acl := r.Group("/acl")
	{
		acl.POST("/grant", ac.GrantPermission)
		acl.POST("/revoke", ac.RevokePermission)
		acl.POST("/update", ac.UpdateACL)
		acl.POST("/check", ac.CheckPermission)
		acl.POST("/batch-check", ac.BatchCheckPermissions)
		acl.GET("/shards/:shardId/users/:userId/permissions", ac.GetUserPermissions)
		acl.GET("/stats", ac.GetStats)
		acl.POST("/shards/:shardId/invalidate", ac.InvalidateShardCache)
		acl.GET("/audit", ac.QueryAuditLogs)
	}
}

func (ac *ACLController) actor(c *gin.Context) (model.Actor, bool) {
	userID, err := util.GetUserIDFromContext(c)
	if err != nil || userID == "" {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", acl_errors.ErrUnauthorized)
		return model.Actor{}, false
	}
	return model.Actor{UserID: userID, Roles: util.GetRolesFromContext(c)}, true
}

func (ac *ACLController) tenant(c *gin.Context) (string, bool) {
	tenantID, err := util.GetTenantIDFromContext(c)
	if err != nil || tenantID == "" {
		util.RespondWithError(c, http.StatusUnauthorized, "Missing tenant scope", acl_errors.ErrUnauthorized)
		return "", false
	}
	return tenantID, true
}

func respondACLError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, acl_errors.ErrInvalidACLData):
		util.RespondWithError(c, http.StatusBadRequest, "Invalid ACL data", err)
	case errors.Is(err, acl_errors.ErrInsufficientPermission):
		util.RespondWithError(c, http.StatusForbidden, "Insufficient permission", err)
	case errors.Is(err, acl_errors.ErrEntryNotFound):
		util.RespondWithError(c, http.StatusNotFound, "ACL entry not found", err)
	case errors.Is(err, acl_errors.ErrStoreUnavailable):
		util.RespondWithError(c, http.StatusServiceUnavailable, "ACL store unavailable", err)
	case errors.Is(err, acl_errors.ErrDatabaseOperation):
		util.RespondWithError(c, http.StatusInternalServerError, "Database operation failed", err)
	default:
		util.RespondWithError(c, http.StatusInternalServerError, "Internal server error", acl_errors.ErrInternalServer)
	}
}

// GrantPermission endpoint
func (ac *ACLController) GrantPermission(c *gin.Context) {
	var input model.GrantInput
	if err := c.ShouldBindJSON(&input); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid grant data", acl_errors.ErrInvalidACLData)
		return
	}
	actor, ok := ac.actor(c)
	if !ok {
		return
	}
	tenantID, ok := ac.tenant(c)
	if !ok {
		return
	}
	input.TenantID = tenantID

	entry, err := ac.aclService.GrantPermission(c, input, actor)
	if err != nil {
		respondACLError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// RevokePermission endpoint
func (ac *ACLController) RevokePermission(c *gin.Context) {
	var input model.RevokeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid revoke data", acl_errors.ErrInvalidACLData)
		return
	}
	actor, ok := ac.actor(c)
	if !ok {
		return
	}
	tenantID, ok := ac.tenant(c)
	if !ok {
		return
	}
	input.TenantID = tenantID

	if err := ac.aclService.RevokePermission(c, input, actor); err != nil {
		respondACLError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateACL endpoint
func (ac *ACLController) UpdateACL(c *gin.Context) {
	var input model.UpdateACLInput
	if err := c.ShouldBindJSON(&input); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid update data", acl_errors.ErrInvalidACLData)
		return
	}
	actor, ok := ac.actor(c)
	if !ok {
		return
	}
	tenantID, ok := ac.tenant(c)
	if !ok {
		return
	}
	input.TenantID = tenantID

	if err := ac.aclService.UpdateACL(c, input, actor); err != nil {
		respondACLError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CheckPermission endpoint. The checked user defaults to the caller; when a
// different user is named the caller must supply that user's roles, since
// only the gateway knows the caller's own.
func (ac *ACLController) CheckPermission(c *gin.Context) {
	var body struct {
		ShardID            string   `json:"shard_id" binding:"required"`
		RequiredPermission string   `json:"required_permission" binding:"required"`
		UserID             string   `json:"user_id"`
		Roles              []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid check data", acl_errors.ErrInvalidACLData)
		return
	}
	actor, ok := ac.actor(c)
	if !ok {
		return
	}
	tenantID, ok := ac.tenant(c)
	if !ok {
		return
	}

	level, valid := model.ParsePermissionLevel(body.RequiredPermission)
	if !valid {
		util.RespondWithError(c, http.StatusBadRequest, "Unknown permission level", acl_errors.ErrInvalidACLData)
		return
	}

	checkCtx := model.AccessCheckContext{
		UserID:             body.UserID,
		TenantID:           tenantID,
		ShardID:            body.ShardID,
		Roles:              body.Roles,
		RequiredPermission: level,
	}
	if checkCtx.UserID == "" {
		checkCtx.UserID = actor.UserID
		checkCtx.Roles = actor.Roles
	}

	result, err := ac.aclService.CheckPermission(c, checkCtx)
	if err != nil {
		respondACLError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BatchCheckPermissions endpoint
func (ac *ACLController) BatchCheckPermissions(c *gin.Context) {
	var body struct {
		ShardIDs           []string `json:"shard_ids" binding:"required"`
		RequiredPermission string   `json:"required_permission" binding:"required"`
		UserID             string   `json:"user_id"`
		Roles              []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid batch check data", acl_errors.ErrInvalidACLData)
		return
	}
	actor, ok := ac.actor(c)
	if !ok {
		return
	}
	tenantID, ok := ac.tenant(c)
	if !ok {
		return
	}

	level, valid := model.ParsePermissionLevel(body.RequiredPermission)
	if !valid {
		util.RespondWithError(c, http.StatusBadRequest, "Unknown permission level", acl_errors.ErrInvalidACLData)
		return
	}

	req := model.BatchCheckRequest{
		UserID:             body.UserID,
		TenantID:           tenantID,
		ShardIDs:           body.ShardIDs,
		Roles:              body.Roles,
		RequiredPermission: level,
	}
	if req.UserID == "" {
		req.UserID = actor.UserID
		req.Roles = actor.Roles
	}

	result, err := ac.aclService.BatchCheckPermissions(c, req)
	if err != nil {
		respondACLError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetUserPermissions endpoint
func (ac *ACLController) GetUserPermissions(c *gin.Context) {
	shardID := c.Param("shardId")
	userID := c.Param("userId")
	actor, ok := ac.actor(c)
	if !ok {
		return
	}
	tenantID, ok := ac.tenant(c)
	if !ok {
		return
	}

	roles := c.QueryArray("role")
	if userID == actor.UserID {
		roles = actor.Roles
	}

	permissions, err := ac.aclService.GetUserPermissions(c, tenantID, shardID, userID, roles)
	if err != nil {
		respondACLError(c, err)
		return
	}

	c.JSON(http.StatusOK, permissions)
}

// GetStats endpoint
func (ac *ACLController) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, ac.aclService.GetStats(c))
}

// InvalidateShardCache endpoint
func (ac *ACLController) InvalidateShardCache(c *gin.Context) {
	shardID := c.Param("shardId")
	tenantID, ok := ac.tenant(c)
	if !ok {
		return
	}

	if err := ac.aclService.InvalidateShardCache(c, tenantID, shardID); err != nil {
		respondACLError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// QueryAuditLogs endpoint
func (ac *ACLController) QueryAuditLogs(c *gin.Context) {
	tenantID, ok := ac.tenant(c)
	if !ok {
		return
	}

	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", acl_errors.ErrInvalidPagination)
		return
	}

	from := time.Now().Add(-24 * time.Hour)
	to := time.Now()
	if raw := c.Query("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			from = t
		}
	}
	if raw := c.Query("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			to = t
		}
	}

	logs, err := ac.auditService.QueryLogs(c, from, to, tenantID, c.Query("shardId"))
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to query audit logs", err)
		return
	}

	if offset > len(logs) {
		offset = len(logs)
	}
	end := offset + limit
	if end > len(logs) {
		end = len(logs)
	}

	c.JSON(http.StatusOK, logs[offset:end])
}
