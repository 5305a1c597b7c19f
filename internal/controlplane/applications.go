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

// NewApplication opens a dossier for a funding call.
type NewApplication struct {
	CallID             string                   `json:"call_id"`
	CallTitle          string                   `json:"call_title"`
	Title              string                   `json:"title"`
	Description        string                   `json:"description"`
	ImplementationSite string                   `json:"implementation_site"`
	Procurement        []grants.ProcurementItem `json:"procurement"`
	BudgetEstimated    decimal.Decimal          `json:"budget_estimated"`
}

// CreateApplication opens an application bound to its call. The history
// records both the creation and the call selection.
func (s *Service) CreateApplication(ctx context.Context, actor, companyID string, in NewApplication) (grants.Application, error) {
	if _, err := s.resolver.RequirePermission(ctx, actor, auth.ResourceOrg, companyID, "create_project"); err != nil {
		return grants.Application{}, err
	}
	in.CallID = strings.TrimSpace(in.CallID)
	in.Title = strings.TrimSpace(in.Title)
	if in.CallID == "" || in.Title == "" {
		return grants.Application{}, fmt.Errorf("%w: call_id and title are required", grants.ErrInvalidInput)
	}
	if err := validateProcurement(in.Procurement); err != nil {
		return grants.Application{}, err
	}
	if in.BudgetEstimated.IsNegative() {
		return grants.Application{}, fmt.Errorf("%w: budget cannot be negative", grants.ErrInvalidInput)
	}
	callTitle := strings.TrimSpace(in.CallTitle)
	if callTitle == "" {
		callTitle = in.CallID
	}
	history := lifecycle.ApplicationGenesis(actor, callTitle, s.now())
	current := history[len(history)-1].To
	a := grants.Application{
		ID:                 ids.New(),
		CompanyID:          companyID,
		CallID:             in.CallID,
		CallTitle:          callTitle,
		Title:              in.Title,
		Description:        strings.TrimSpace(in.Description),
		ImplementationSite: strings.TrimSpace(in.ImplementationSite),
		Procurement:        in.Procurement,
		BudgetEstimated:    in.BudgetEstimated,
		Status:             current,
		StatusLabel:        lifecycle.Application.Label(current),
		History:            history,
		CreatedBy:          actor,
	}
	if err := s.store.CreateApplication(ctx, &a); err != nil {
		return grants.Application{}, err
	}
	s.record(ctx, actor, "application.create", string(lifecycle.KindApplication), a.ID, companyID, map[string]any{
		"call_id": a.CallID,
		"title":   a.Title,
	})
	return a, nil
}

func (s *Service) GetApplication(ctx context.Context, actor, id string) (grants.Application, error) {
	if err := s.require(ctx, actor, lifecycle.KindApplication, id, "read"); err != nil {
		return grants.Application{}, err
	}
	return s.store.GetApplication(ctx, id)
}

// ListApplications returns the company's applications.
func (s *Service) ListApplications(ctx context.Context, actor, companyID string) ([]grants.Application, error) {
	if err := s.requireOrgVisibility(ctx, actor, companyID); err != nil {
		return nil, err
	}
	return s.store.ListApplications(ctx, companyID)
}

// ApplicationConfig holds the editable setup fields of an application.
type ApplicationConfig struct {
	Title              *string                  `json:"title"`
	Description        *string                  `json:"description"`
	ImplementationSite *string                  `json:"implementation_site"`
	Procurement        []grants.ProcurementItem `json:"procurement"`
	BudgetEstimated    *decimal.Decimal         `json:"budget_estimated"`
}

// ConfigureApplication updates setup fields. Status and history are untouched.
func (s *Service) ConfigureApplication(ctx context.Context, actor, id string, cfg ApplicationConfig) (grants.Application, error) {
	if err := s.require(ctx, actor, lifecycle.KindApplication, id, "write"); err != nil {
		return grants.Application{}, err
	}
	a, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return grants.Application{}, err
	}
	if cfg.Title != nil {
		if strings.TrimSpace(*cfg.Title) == "" {
			return grants.Application{}, fmt.Errorf("%w: title is required", grants.ErrInvalidInput)
		}
		a.Title = strings.TrimSpace(*cfg.Title)
	}
	if cfg.Description != nil {
		a.Description = strings.TrimSpace(*cfg.Description)
	}
	if cfg.ImplementationSite != nil {
		a.ImplementationSite = strings.TrimSpace(*cfg.ImplementationSite)
	}
	if cfg.Procurement != nil {
		if err := validateProcurement(cfg.Procurement); err != nil {
			return grants.Application{}, err
		}
		a.Procurement = cfg.Procurement
	}
	if cfg.BudgetEstimated != nil {
		if cfg.BudgetEstimated.IsNegative() {
			return grants.Application{}, fmt.Errorf("%w: budget cannot be negative", grants.ErrInvalidInput)
		}
		a.BudgetEstimated = *cfg.BudgetEstimated
	}
	if err := s.store.UpdateApplication(ctx, &a); err != nil {
		return grants.Application{}, err
	}
	s.record(ctx, actor, "application.configure", string(lifecycle.KindApplication), id, a.CompanyID, nil)
	return a, nil
}

// FreezeChecklist locks the required-document list. Uploads remain possible.
func (s *Service) FreezeChecklist(ctx context.Context, actor, id string) (grants.Application, error) {
	if err := s.require(ctx, actor, lifecycle.KindApplication, id, "write"); err != nil {
		return grants.Application{}, err
	}
	a, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return grants.Application{}, err
	}
	if a.ChecklistFrozen {
		return a, nil
	}
	a.ChecklistFrozen = true
	if err := s.store.UpdateApplication(ctx, &a); err != nil {
		return grants.Application{}, err
	}
	s.record(ctx, actor, "application.checklist_frozen", string(lifecycle.KindApplication), id, a.CompanyID, map[string]any{
		"required_documents": len(a.RequiredDocuments),
	})
	return a, nil
}
