package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/grants"
	"grantflow.org/internal/lifecycle"
)

const projectColumns = `id, org_id, title, program, type, theme, call_id, implementation_site,
	budget_estimated, procurement, members, required_documents, guide_assets, drafts,
	status, status_label, history, version, created_at, updated_at, created_by`

type projectRow struct {
	ID                 string          `db:"id"`
	OrgID              string          `db:"org_id"`
	Title              string          `db:"title"`
	Program            string          `db:"program"`
	Type               string          `db:"type"`
	Theme              string          `db:"theme"`
	CallID             string          `db:"call_id"`
	ImplementationSite string          `db:"implementation_site"`
	BudgetEstimated    decimal.Decimal `db:"budget_estimated"`
	Procurement        []byte          `db:"procurement"`
	Members            []byte          `db:"members"`
	RequiredDocuments  []byte          `db:"required_documents"`
	GuideAssets        []byte          `db:"guide_assets"`
	Drafts             []byte          `db:"drafts"`
	Status             string          `db:"status"`
	StatusLabel        string          `db:"status_label"`
	History            []byte          `db:"history"`
	Version            int64           `db:"version"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
	CreatedBy          string          `db:"created_by"`
}

func newProjectRow(p *grants.Project) (projectRow, error) {
	row := projectRow{
		ID:                 p.ID,
		OrgID:              p.OrgID,
		Title:              p.Title,
		Program:            p.Program,
		Type:               p.Type,
		Theme:              p.Theme,
		CallID:             p.CallID,
		ImplementationSite: p.ImplementationSite,
		BudgetEstimated:    p.BudgetEstimated,
		Status:             string(p.Status),
		StatusLabel:        p.StatusLabel,
		Version:            p.Version,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
		CreatedBy:          p.CreatedBy,
	}
	var err error
	for _, f := range []struct {
		dst *[]byte
		v   any
	}{
		{&row.Procurement, p.Procurement},
		{&row.Members, p.Members},
		{&row.RequiredDocuments, p.RequiredDocuments},
		{&row.GuideAssets, p.GuideAssets},
		{&row.Drafts, p.Drafts},
		{&row.History, p.History},
	} {
		if *f.dst, err = jsonArray(f.v); err != nil {
			return projectRow{}, err
		}
	}
	return row, nil
}

func (r projectRow) project() (grants.Project, error) {
	p := grants.Project{
		ID:                 r.ID,
		OrgID:              r.OrgID,
		Title:              r.Title,
		Program:            r.Program,
		Type:               r.Type,
		Theme:              r.Theme,
		CallID:             r.CallID,
		ImplementationSite: r.ImplementationSite,
		BudgetEstimated:    r.BudgetEstimated,
		Status:             lifecycle.State(r.Status),
		StatusLabel:        r.StatusLabel,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		CreatedBy:          r.CreatedBy,
	}
	for _, f := range []struct {
		raw    []byte
		v      any
		column string
	}{
		{r.Procurement, &p.Procurement, "procurement"},
		{r.Members, &p.Members, "members"},
		{r.RequiredDocuments, &p.RequiredDocuments, "required_documents"},
		{r.GuideAssets, &p.GuideAssets, "guide_assets"},
		{r.Drafts, &p.Drafts, "drafts"},
		{r.History, &p.History, "history"},
	} {
		if err := decodeJSON(f.raw, f.v, f.column); err != nil {
			return grants.Project{}, err
		}
	}
	return p, nil
}

func (s *Store) CreateProject(ctx context.Context, p *grants.Project) error {
	now := s.stamp()
	p.Version, p.CreatedAt, p.UpdatedAt = 1, now, now
	row, err := newProjectRow(p)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		insert into projects (`+projectColumns+`)
		values (:id, :org_id, :title, :program, :type, :theme, :call_id, :implementation_site,
			:budget_estimated, :procurement, :members, :required_documents, :guide_assets, :drafts,
			:status, :status_label, :history, :version, :created_at, :updated_at, :created_by)
	`, row)
	return classify(err, "project "+p.ID)
}

func (s *Store) GetProject(ctx context.Context, id string) (grants.Project, error) {
	var row projectRow
	if err := s.db.GetContext(ctx, &row, `select `+projectColumns+` from projects where id = $1`, id); err != nil {
		return grants.Project{}, classify(err, "project "+id)
	}
	return row.project()
}

func (s *Store) ListProjects(ctx context.Context, orgID string) ([]grants.Project, error) {
	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, `select `+projectColumns+` from projects where org_id = $1 order by id`, orgID); err != nil {
		return nil, err
	}
	out := make([]grants.Project, 0, len(rows))
	for _, r := range rows {
		p, err := r.project()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdateProject writes everything except status, label and history.
func (s *Store) UpdateProject(ctx context.Context, p *grants.Project) error {
	row, err := newProjectRow(p)
	if err != nil {
		return err
	}
	var stored projectRow
	err = s.db.GetContext(ctx, &stored, `
		update projects
		set title = $3, program = $4, type = $5, theme = $6, call_id = $7, implementation_site = $8,
		    budget_estimated = $9, procurement = $10, members = $11, required_documents = $12,
		    guide_assets = $13, drafts = $14, version = version + 1, updated_at = $15
		where id = $1 and version = $2
		returning `+projectColumns,
		row.ID, row.Version, row.Title, row.Program, row.Type, row.Theme, row.CallID, row.ImplementationSite,
		row.BudgetEstimated, row.Procurement, row.Members, row.RequiredDocuments, row.GuideAssets, row.Drafts,
		s.stamp())
	if errors.Is(err, sql.ErrNoRows) {
		return s.missingOrConflict(ctx, "projects", p.ID)
	}
	if err != nil {
		return classify(err, "project "+p.ID)
	}
	updated, err := stored.project()
	if err != nil {
		return err
	}
	*p = updated
	return nil
}

func (s *Store) ProjectAccess(ctx context.Context, projectID string) (auth.ProjectAccess, error) {
	var row struct {
		ID      string `db:"id"`
		OrgID   string `db:"org_id"`
		Members []byte `db:"members"`
	}
	if err := s.db.GetContext(ctx, &row, `select id, org_id, members from projects where id = $1`, projectID); err != nil {
		return auth.ProjectAccess{}, classify(err, "project "+projectID)
	}
	access := auth.ProjectAccess{ProjectID: row.ID, OrgID: row.OrgID}
	if err := decodeJSON(row.Members, &access.Members, "members"); err != nil {
		return auth.ProjectAccess{}, err
	}
	return access, nil
}
