package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
)

// Denial reasons.
const (
	ReasonNotMember         = "not_member"
	ReasonExpiredDelegation = "expired_delegation"
	ReasonInsufficientRole  = "insufficient_role"
)

// PermissionDeniedError is returned by RequirePermission when access is refused.
type PermissionDeniedError struct {
	Reason     string
	Scope      ResourceType
	ScopeID    string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s on %s %s (%s)", e.Permission, e.Scope, e.ScopeID, e.Reason)
}

// DenialReason extracts the reason from a PermissionDeniedError anywhere in err's chain.
func DenialReason(err error) (string, bool) {
	var denied *PermissionDeniedError
	if errors.As(err, &denied) {
		return denied.Reason, true
	}
	return "", false
}
