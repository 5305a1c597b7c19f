package auth

import (
	"context"
	"fmt"

	"grantflow.org/internal/obs"
)

// RequirePermission resolves the user's role for the scope and fails with a
// *PermissionDeniedError unless the role grants permission.
func (r *Resolver) RequirePermission(ctx context.Context, userID string, scope ResourceType, scopeID, permission string) (*RoleInfo, error) {
	info, reason, err := r.evaluate(ctx, userID, scope, scopeID, permission)
	if err != nil {
		obs.PermissionChecks.WithLabelValues(string(scope), "error").Inc()
		return nil, err
	}
	if reason != "" {
		obs.PermissionChecks.WithLabelValues(string(scope), reason).Inc()
		return nil, &PermissionDeniedError{Reason: reason, Scope: scope, ScopeID: scopeID, Permission: permission}
	}
	obs.PermissionChecks.WithLabelValues(string(scope), "granted").Inc()
	return info, nil
}

func (r *Resolver) evaluate(ctx context.Context, userID string, scope ResourceType, scopeID, permission string) (*RoleInfo, string, error) {
	switch scope {
	case ResourceOrg:
		info, err := r.ResolveOrgRole(ctx, userID, scopeID)
		if err != nil {
			return nil, "", err
		}
		return info, r.denial(info, ResourceOrg, permission), nil
	case ResourceProject:
		info, orgInfo, err := r.projectRole(ctx, userID, scopeID)
		if err != nil {
			return nil, "", err
		}
		if info == nil {
			return nil, reasonFor(orgInfo), nil
		}
		return info, r.denial(info, ResourceProject, permission), nil
	case ResourceApplication:
		orgID, err := r.dir.ApplicationOrg(ctx, scopeID)
		if err != nil {
			return nil, "", err
		}
		info, err := r.ResolveOrgRole(ctx, userID, orgID)
		if err != nil {
			return nil, "", err
		}
		return info, r.denial(info, ResourceProject, permission), nil
	case ResourceDocument:
		info, seen, err := r.documentRole(ctx, userID, scopeID, permission)
		if err != nil {
			return nil, "", err
		}
		if info != nil {
			return info, "", nil
		}
		return nil, reasonFor(seen...), nil
	default:
		return nil, "", fmt.Errorf("%w: unknown scope type %q", ErrInvalidInput, scope)
	}
}

func (r *Resolver) denial(info *RoleInfo, rt ResourceType, permission string) string {
	switch {
	case info == nil:
		return ReasonNotMember
	case !info.Active:
		return ReasonExpiredDelegation
	case !r.Allows(info, rt, permission):
		return ReasonInsufficientRole
	}
	return ""
}

// reasonFor classifies a refusal from the roles that were considered but did not grant.
func reasonFor(infos ...*RoleInfo) string {
	var member, active bool
	for _, info := range infos {
		if info == nil {
			continue
		}
		member = true
		if info.Active {
			active = true
		}
	}
	switch {
	case !member:
		return ReasonNotMember
	case !active:
		return ReasonExpiredDelegation
	}
	return ReasonInsufficientRole
}
