package grants

import (
	"context"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/lifecycle"
)

// Store persists the entity model. Update methods are compare-and-set on
// Version: they fail with ErrConflict when the stored version moved, bump the
// version on success and never touch Status, StatusLabel or History, which
// only change through AppendTransition.
type Store interface {
	auth.Directory
	lifecycle.Store

	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (Organization, error)
	UpdateOrganization(ctx context.Context, org *Organization) error
	// DeleteOrganization removes the organization unless it still owns an
	// active project or any application (ErrActiveDependents).
	DeleteOrganization(ctx context.Context, id string) error

	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (Project, error)
	UpdateProject(ctx context.Context, p *Project) error
	ListProjects(ctx context.Context, orgID string) ([]Project, error)

	CreateApplication(ctx context.Context, a *Application) error
	GetApplication(ctx context.Context, id string) (Application, error)
	UpdateApplication(ctx context.Context, a *Application) error
	ListApplications(ctx context.Context, companyID string) ([]Application, error)

	CreateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	UpdateDocument(ctx context.Context, d *Document) error

	AddComplianceReport(ctx context.Context, r *ComplianceReport) error
	ListComplianceReports(ctx context.Context, kind lifecycle.Kind, entityID string) ([]ComplianceReport, error)
}
