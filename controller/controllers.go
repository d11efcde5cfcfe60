// controller/controllers.go
package controller

import (
	"github.com/pulsecrm/acl/audit"
	"github.com/pulsecrm/acl/service"
)

type Controllers struct {
	ACL *ACLController
}

func InitializeControllers(aclService service.IACLService, auditService audit.Service) *Controllers {
	return &Controllers{
		ACL: NewACLController(aclService, auditService),
	}
}
