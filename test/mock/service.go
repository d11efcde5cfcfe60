// test/mock/service.go
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pulsecrm/acl/model"
	"github.com/pulsecrm/acl/service"
)

// MockACLService is a mock implementation of service.IACLService
type MockACLService struct {
	mock.Mock
}

var _ service.IACLService = &MockACLService{}

func (m *MockACLService) GrantPermission(ctx context.Context, input model.GrantInput, actor model.Actor) (*model.ACLEntry, error) {
	args := m.Called(ctx, input, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ACLEntry), args.Error(1)
}

func (m *MockACLService) RevokePermission(ctx context.Context, input model.RevokeInput, actor model.Actor) error {
	args := m.Called(ctx, input, actor)
	return args.Error(0)
}

func (m *MockACLService) UpdateACL(ctx context.Context, input model.UpdateACLInput, actor model.Actor) error {
	args := m.Called(ctx, input, actor)
	return args.Error(0)
}

func (m *MockACLService) CheckPermission(ctx context.Context, checkCtx model.AccessCheckContext) (model.AccessCheckResult, error) {
	args := m.Called(ctx, checkCtx)
	return args.Get(0).(model.AccessCheckResult), args.Error(1)
}

func (m *MockACLService) BatchCheckPermissions(ctx context.Context, req model.BatchCheckRequest) (*model.BatchCheckResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BatchCheckResult), args.Error(1)
}

func (m *MockACLService) GetUserPermissions(ctx context.Context, tenantID, shardID, userID string, roles []string) (model.UserPermissions, error) {
	args := m.Called(ctx, tenantID, shardID, userID, roles)
	return args.Get(0).(model.UserPermissions), args.Error(1)
}

func (m *MockACLService) GetStats(ctx context.Context) model.EngineStats {
	args := m.Called(ctx)
	return args.Get(0).(model.EngineStats)
}

func (m *MockACLService) InvalidateShardCache(ctx context.Context, tenantID, shardID string) error {
	args := m.Called(ctx, tenantID, shardID)
	return args.Error(0)
}
