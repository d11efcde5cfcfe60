// util/notification_service.go

package util

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	logger "github.com/pulsecrm/acl/logging"
	"github.com/pulsecrm/acl/model"
)

type NotificationService struct {
	// You might want to add dependencies here, such as a message queue client
}

func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

func (n *NotificationService) NotifyACLChange(ctx context.Context, changeType string, entry model.ACLEntry) error {
	// In a real implementation, you might send this to a message queue or external notification service
	switch changeType {
	case "granted":
		logger.Info("NOTIFICATION: Permission granted",
			zap.String("tenantID", entry.TenantID),
			zap.String("shardID", entry.ShardID),
			zap.String("principal", entry.Principal.Key()))
	case "revoked":
		logger.Info("NOTIFICATION: Permission revoked",
			zap.String("tenantID", entry.TenantID),
			zap.String("shardID", entry.ShardID),
			zap.String("principal", entry.Principal.Key()))
	case "updated":
		logger.Info("NOTIFICATION: ACL updated",
			zap.String("tenantID", entry.TenantID),
			zap.String("shardID", entry.ShardID))
	default:
		return fmt.Errorf("unknown change type: %s", changeType)
	}

	return nil
}
