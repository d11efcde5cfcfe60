// util/validation_util.go

package util

import (
	"fmt"

	acl_errors "github.com/pulsecrm/acl/errors"
	"github.com/pulsecrm/acl/model"
)

type ValidationUtil struct{}

func NewValidationUtil() *ValidationUtil {
	return &ValidationUtil{}
}

func validatePrincipal(userID, roleID string) error {
	if userID == "" && roleID == "" {
		return fmt.Errorf("%w: either user ID or role ID must be set", acl_errors.ErrInvalidACLData)
	}
	if userID != "" && roleID != "" {
		return fmt.Errorf("%w: user ID and role ID are mutually exclusive", acl_errors.ErrInvalidACLData)
	}
	return nil
}

func validatePermissions(permissions []model.PermissionLevel) error {
	for _, p := range permissions {
		if !p.Valid() {
			return fmt.Errorf("%w: unknown permission level %q", acl_errors.ErrInvalidACLData, p)
		}
	}
	return nil
}

func (v *ValidationUtil) ValidateGrantInput(input model.GrantInput) error {
	if input.TenantID == "" {
		return fmt.Errorf("%w: tenant ID cannot be empty", acl_errors.ErrInvalidACLData)
	}
	if input.ShardID == "" {
		return fmt.Errorf("%w: shard ID cannot be empty", acl_errors.ErrInvalidACLData)
	}
	if err := validatePrincipal(input.UserID, input.RoleID); err != nil {
		return err
	}
	if len(input.Permissions) == 0 {
		return fmt.Errorf("%w: at least one permission level is required", acl_errors.ErrInvalidACLData)
	}
	return validatePermissions(input.Permissions)
}

func (v *ValidationUtil) ValidateRevokeInput(input model.RevokeInput) error {
	if input.TenantID == "" {
		return fmt.Errorf("%w: tenant ID cannot be empty", acl_errors.ErrInvalidACLData)
	}
	if input.ShardID == "" {
		return fmt.Errorf("%w: shard ID cannot be empty", acl_errors.ErrInvalidACLData)
	}
	if err := validatePrincipal(input.UserID, input.RoleID); err != nil {
		return err
	}
	// Empty permission list means the whole entry is revoked.
	return validatePermissions(input.Permissions)
}

func (v *ValidationUtil) ValidateUpdateInput(input model.UpdateACLInput) error {
	if input.TenantID == "" {
		return fmt.Errorf("%w: tenant ID cannot be empty", acl_errors.ErrInvalidACLData)
	}
	if input.ShardID == "" {
		return fmt.Errorf("%w: shard ID cannot be empty", acl_errors.ErrInvalidACLData)
	}
	if len(input.Grants) == 0 && len(input.Revokes) == 0 {
		return fmt.Errorf("%w: update must contain at least one grant or revoke", acl_errors.ErrInvalidACLData)
	}
	for _, g := range input.Grants {
		if g.ShardID != "" && g.ShardID != input.ShardID {
			return fmt.Errorf("%w: grant shard %q does not match update shard %q", acl_errors.ErrInvalidACLData, g.ShardID, input.ShardID)
		}
		g.TenantID, g.ShardID = input.TenantID, input.ShardID
		if err := v.ValidateGrantInput(g); err != nil {
			return err
		}
	}
	for _, r := range input.Revokes {
		if r.ShardID != "" && r.ShardID != input.ShardID {
			return fmt.Errorf("%w: revoke shard %q does not match update shard %q", acl_errors.ErrInvalidACLData, r.ShardID, input.ShardID)
		}
		r.TenantID, r.ShardID = input.TenantID, input.ShardID
		if err := v.ValidateRevokeInput(r); err != nil {
			return err
		}
	}
	return nil
}

func (v *ValidationUtil) ValidateCheckContext(checkCtx model.AccessCheckContext) error {
	if checkCtx.TenantID == "" {
		return fmt.Errorf("%w: tenant ID cannot be empty", acl_errors.ErrInvalidACLData)
	}
	if checkCtx.ShardID == "" {
		return fmt.Errorf("%w: shard ID cannot be empty", acl_errors.ErrInvalidACLData)
	}
	if checkCtx.UserID == "" {
		return fmt.Errorf("%w: user ID cannot be empty", acl_errors.ErrInvalidACLData)
	}
	if !checkCtx.RequiredPermission.Valid() {
		return fmt.Errorf("%w: unknown permission level %q", acl_errors.ErrInvalidACLData, checkCtx.RequiredPermission)
	}
	return nil
}

func (v *ValidationUtil) ValidateBatchRequest(req model.BatchCheckRequest) error {
	if req.TenantID == "" {
		return fmt.Errorf("%w: tenant ID cannot be empty", acl_errors.ErrInvalidACLData)
	}
	if req.UserID == "" {
		return fmt.Errorf("%w: user ID cannot be empty", acl_errors.ErrInvalidACLData)
	}
	if len(req.ShardIDs) == 0 {
		return fmt.Errorf("%w: at least one shard ID is required", acl_errors.ErrInvalidACLData)
	}
	for _, shardID := range req.ShardIDs {
		if shardID == "" {
			return fmt.Errorf("%w: shard ID cannot be empty", acl_errors.ErrInvalidACLData)
		}
	}
	if !req.RequiredPermission.Valid() {
		return fmt.Errorf("%w: unknown permission level %q", acl_errors.ErrInvalidACLData, req.RequiredPermission)
	}
	return nil
}
