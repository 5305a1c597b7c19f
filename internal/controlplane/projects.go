package controlplane

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/grants"
	"grantflow.org/internal/ids"
	"grantflow.org/internal/lifecycle"
)

// ProjectConfig holds the editable setup fields of a project. Nil fields are
// left unchanged.
type ProjectConfig struct {
	Title              *string                  `json:"title"`
	Program            *string                  `json:"program"`
	Type               *string                  `json:"type"`
	Theme              *string                  `json:"theme"`
	CallID             *string                  `json:"call_id"`
	ImplementationSite *string                  `json:"implementation_site"`
	Procurement        []grants.ProcurementItem `json:"procurement"`
	BudgetEstimated    *decimal.Decimal         `json:"budget_estimated"`
}

func (c ProjectConfig) apply(p *grants.Project) error {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&p.Title, c.Title)
	set(&p.Program, c.Program)
	set(&p.Type, c.Type)
	set(&p.Theme, c.Theme)
	set(&p.CallID, c.CallID)
	set(&p.ImplementationSite, c.ImplementationSite)
	if c.Procurement != nil {
		if err := validateProcurement(c.Procurement); err != nil {
			return err
		}
		p.Procurement = c.Procurement
	}
	if c.BudgetEstimated != nil {
		if c.BudgetEstimated.IsNegative() {
			return fmt.Errorf("%w: budget cannot be negative", grants.ErrInvalidInput)
		}
		p.BudgetEstimated = *c.BudgetEstimated
	}
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", grants.ErrInvalidInput)
	}
	return nil
}

func validateProcurement(items []grants.ProcurementItem) error {
	for _, it := range items {
		if strings.TrimSpace(it.Name) == "" || it.Quantity <= 0 || it.UnitCost.IsNegative() {
			return fmt.Errorf("%w: invalid procurement item %q", grants.ErrInvalidInput, it.Name)
		}
	}
	return nil
}

// CreateProject opens a project in the organization. The creator becomes the
// project owner and the history starts with the creation entry.
func (s *Service) CreateProject(ctx context.Context, actor, orgID string, cfg ProjectConfig) (grants.Project, error) {
	if _, err := s.resolver.RequirePermission(ctx, actor, auth.ResourceOrg, orgID, "create_project"); err != nil {
		return grants.Project{}, err
	}
	now := s.now().UTC()
	p := grants.Project{
		ID:          ids.New(),
		OrgID:       orgID,
		Members:     []auth.Member{{UserID: actor, Role: auth.RoleOwner, AddedAt: now}},
		Status:      lifecycle.Project.Initial(),
		StatusLabel: lifecycle.Project.Label(lifecycle.Project.Initial()),
		History:     lifecycle.ProjectGenesis(actor, now),
		CreatedBy:   actor,
	}
	if err := cfg.apply(&p); err != nil {
		return grants.Project{}, err
	}
	if err := s.store.CreateProject(ctx, &p); err != nil {
		return grants.Project{}, err
	}
	s.record(ctx, actor, "project.create", string(lifecycle.KindProject), p.ID, orgID, map[string]any{"title": p.Title})
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, actor, id string) (grants.Project, error) {
	if err := s.require(ctx, actor, lifecycle.KindProject, id, "read"); err != nil {
		return grants.Project{}, err
	}
	return s.store.GetProject(ctx, id)
}

// ListProjects returns the organization's projects.
func (s *Service) ListProjects(ctx context.Context, actor, orgID string) ([]grants.Project, error) {
	if err := s.requireOrgVisibility(ctx, actor, orgID); err != nil {
		return nil, err
	}
	return s.store.ListProjects(ctx, orgID)
}

// ConfigureProject updates setup fields. Status and history are untouched.
func (s *Service) ConfigureProject(ctx context.Context, actor, id string, cfg ProjectConfig) (grants.Project, error) {
	if err := s.require(ctx, actor, lifecycle.KindProject, id, "write"); err != nil {
		return grants.Project{}, err
	}
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return grants.Project{}, err
	}
	if err := cfg.apply(&p); err != nil {
		return grants.Project{}, err
	}
	if err := s.store.UpdateProject(ctx, &p); err != nil {
		return grants.Project{}, err
	}
	s.record(ctx, actor, "project.configure", string(lifecycle.KindProject), id, p.OrgID, nil)
	return p, nil
}

// AddProjectMember grants a direct project role, which takes precedence over
// the organization role.
func (s *Service) AddProjectMember(ctx context.Context, actor, projectID string, in NewMember) (grants.Project, error) {
	if err := s.require(ctx, actor, lifecycle.KindProject, projectID, "manage_members"); err != nil {
		return grants.Project{}, err
	}
	if !in.Role.Valid() || strings.TrimSpace(in.UserID) == "" {
		return grants.Project{}, fmt.Errorf("%w: user_id and a known role are required", grants.ErrInvalidInput)
	}
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return grants.Project{}, err
	}
	if _, ok := p.ProjectMember(in.UserID); ok {
		return grants.Project{}, fmt.Errorf("%w: %s is already a project member", grants.ErrAlreadyExists, in.UserID)
	}
	p.Members = append(p.Members, auth.Member{UserID: strings.TrimSpace(in.UserID), Email: in.Email, Role: in.Role, AddedAt: s.now().UTC()})
	if err := s.store.UpdateProject(ctx, &p); err != nil {
		return grants.Project{}, err
	}
	s.record(ctx, actor, "project.member_added", string(lifecycle.KindProject), projectID, p.OrgID, map[string]any{
		"user_id": in.UserID,
		"role":    string(in.Role),
	})
	return p, nil
}

// requireOrgVisibility accepts any active organization role.
func (s *Service) requireOrgVisibility(ctx context.Context, actor, orgID string) error {
	info, err := s.resolver.ResolveOrgRole(ctx, actor, orgID)
	if err != nil {
		return err
	}
	if info == nil {
		return &auth.PermissionDeniedError{Reason: auth.ReasonNotMember, Scope: auth.ResourceOrg, ScopeID: orgID, Permission: "read"}
	}
	if !info.Active {
		return &auth.PermissionDeniedError{Reason: auth.ReasonExpiredDelegation, Scope: auth.ResourceOrg, ScopeID: orgID, Permission: "read"}
	}
	return nil
}
