// errors/acl_errors.go
package errors

import "errors"

var (
	ErrInvalidACLData         = errors.New("invalid acl data")
	ErrEntryNotFound          = errors.New("acl entry not found")
	ErrStoreUnavailable       = errors.New("acl store unavailable")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrDatabaseOperation      = errors.New("database operation failed")
	ErrInternalServer         = errors.New("internal server error")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidPagination      = errors.New("invalid pagination parameters")
)
