package controlplane

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/grants"
	"grantflow.org/internal/ids"
)

// NewOrganization carries the fields needed to register a tenant.
type NewOrganization struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
}

// CreateOrganization registers an organization owned by its creator.
func (s *Service) CreateOrganization(ctx context.Context, actor, email string, in NewOrganization) (grants.Organization, error) {
	if strings.TrimSpace(actor) == "" {
		return grants.Organization{}, auth.ErrUnauthorized
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return grants.Organization{}, fmt.Errorf("%w: name is required", grants.ErrInvalidInput)
	}
	org := grants.Organization{ID: ids.New(), Name: name, TaxID: strings.TrimSpace(in.TaxID)}
	if err := org.AddMember(auth.Member{UserID: actor, Email: email, Role: auth.RoleOwner, AddedAt: s.now().UTC()}); err != nil {
		return grants.Organization{}, err
	}
	if err := s.store.CreateOrganization(ctx, &org); err != nil {
		return grants.Organization{}, err
	}
	s.record(ctx, actor, "organization.create", "organization", org.ID, org.ID, map[string]any{"name": org.Name})
	return org, nil
}

// GetOrganization returns the organization. Members holding only limited read
// access do not see delegations.
func (s *Service) GetOrganization(ctx context.Context, actor, orgID string) (grants.Organization, error) {
	_, err := s.resolver.RequirePermission(ctx, actor, auth.ResourceOrg, orgID, "read")
	limited := false
	if reason, ok := auth.DenialReason(err); ok && reason == auth.ReasonInsufficientRole {
		if _, err = s.resolver.RequirePermission(ctx, actor, auth.ResourceOrg, orgID, "read_limited"); err == nil {
			limited = true
		}
	}
	if err != nil {
		return grants.Organization{}, err
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return grants.Organization{}, err
	}
	if limited {
		org.Authorizations = nil
	}
	return org, nil
}

// WatchOrganization authorizes a subscription to the organization's
// transition feed. Every active organization role may watch.
func (s *Service) WatchOrganization(ctx context.Context, actor, orgID string) error {
	return s.requireOrgVisibility(ctx, actor, orgID)
}

// NewMember describes a membership to add.
type NewMember struct {
	UserID string    `json:"user_id"`
	Email  string    `json:"email"`
	Role   auth.Role `json:"role"`
}

// AddMember adds a user to the organization.
func (s *Service) AddMember(ctx context.Context, actor, orgID string, in NewMember) (grants.Organization, error) {
	if _, err := s.resolver.RequirePermission(ctx, actor, auth.ResourceOrg, orgID, "manage_members"); err != nil {
		return grants.Organization{}, err
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return grants.Organization{}, err
	}
	m := auth.Member{UserID: strings.TrimSpace(in.UserID), Email: in.Email, Role: in.Role, AddedAt: s.now().UTC()}
	if err := org.AddMember(m); err != nil {
		return grants.Organization{}, err
	}
	if err := s.store.UpdateOrganization(ctx, &org); err != nil {
		return grants.Organization{}, err
	}
	s.record(ctx, actor, "organization.member_added", "organization", orgID, orgID, map[string]any{
		"user_id": m.UserID,
		"role":    string(m.Role),
	})
	return org, nil
}

// NewAuthorization describes a delegation to grant.
type NewAuthorization struct {
	UserID     string    `json:"user_id"`
	Scope      []string  `json:"scope"`
	ValidUntil auth.Date `json:"valid_until"`
	Note       string    `json:"note"`
}

// GrantAuthorization appends a delegation for a delegate member. Scope actions
// must exist in the delegate's project or document permissions.
func (s *Service) GrantAuthorization(ctx context.Context, actor, orgID string, in NewAuthorization) (auth.Authorization, error) {
	if _, err := s.resolver.RequirePermission(ctx, actor, auth.ResourceOrg, orgID, "manage_authorizations"); err != nil {
		return auth.Authorization{}, err
	}
	if err := s.validateScope(in.Scope); err != nil {
		return auth.Authorization{}, err
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return auth.Authorization{}, err
	}
	a := auth.Authorization{
		ID:         ids.New(),
		UserID:     strings.TrimSpace(in.UserID),
		Scope:      slices.Clone(in.Scope),
		ValidUntil: in.ValidUntil.Time,
		Note:       in.Note,
		CreatedAt:  s.now().UTC(),
		CreatedBy:  actor,
	}
	if err := org.GrantAuthorization(a); err != nil {
		return auth.Authorization{}, err
	}
	if err := s.store.UpdateOrganization(ctx, &org); err != nil {
		return auth.Authorization{}, err
	}
	a.Status = auth.AuthorizationActive
	s.record(ctx, actor, "authorization.grant", "organization", orgID, orgID, map[string]any{
		"authorization_id": a.ID,
		"user_id":          a.UserID,
		"scope":            a.Scope,
		"valid_until":      a.ValidUntil.Format(time.DateOnly),
	})
	return a, nil
}

func (s *Service) validateScope(scope []string) error {
	m := s.resolver.Matrix()
	for _, action := range scope {
		if !m.Has(auth.RoleDelegate, auth.ResourceProject, action) &&
			!m.Has(auth.RoleDelegate, auth.ResourceDocument, action) &&
			!m.Has(auth.RoleDelegate, auth.ResourceOrg, action) {
			return fmt.Errorf("%w: action %q is not available to delegates", grants.ErrInvalidInput, action)
		}
	}
	return nil
}

// RevokeAuthorization marks a delegation revoked. It stays in the list.
func (s *Service) RevokeAuthorization(ctx context.Context, actor, orgID, authorizationID string) error {
	if _, err := s.resolver.RequirePermission(ctx, actor, auth.ResourceOrg, orgID, "manage_authorizations"); err != nil {
		return err
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if err := org.RevokeAuthorization(authorizationID); err != nil {
		return err
	}
	if err := s.store.UpdateOrganization(ctx, &org); err != nil {
		return err
	}
	s.record(ctx, actor, "authorization.revoke", "organization", orgID, orgID, map[string]any{"authorization_id": authorizationID})
	return nil
}

// DeleteOrganization removes an organization that has no active dependents.
func (s *Service) DeleteOrganization(ctx context.Context, actor, orgID string) error {
	if _, err := s.resolver.RequirePermission(ctx, actor, auth.ResourceOrg, orgID, "delete"); err != nil {
		return err
	}
	if err := s.store.DeleteOrganization(ctx, orgID); err != nil {
		return err
	}
	s.record(ctx, actor, "organization.delete", "organization", orgID, orgID, nil)
	return nil
}
