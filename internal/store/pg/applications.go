package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"grantflow.org/internal/grants"
	"grantflow.org/internal/lifecycle"
)

const applicationColumns = `id, company_id, call_id, call_title, title, description, implementation_site,
	budget_estimated, procurement, guide_assets, required_documents, checklist_frozen, drafts,
	status, status_label, history, version, created_at, updated_at, created_by`

type applicationRow struct {
	ID                 string          `db:"id"`
	CompanyID          string          `db:"company_id"`
	CallID             string          `db:"call_id"`
	CallTitle          string          `db:"call_title"`
	Title              string          `db:"title"`
	Description        string          `db:"description"`
	ImplementationSite string          `db:"implementation_site"`
	BudgetEstimated    decimal.Decimal `db:"budget_estimated"`
	Procurement        []byte          `db:"procurement"`
	GuideAssets        []byte          `db:"guide_assets"`
	RequiredDocuments  []byte          `db:"required_documents"`
	ChecklistFrozen    bool            `db:"checklist_frozen"`
	Drafts             []byte          `db:"drafts"`
	Status             string          `db:"status"`
	StatusLabel        string          `db:"status_label"`
	History            []byte          `db:"history"`
	Version            int64           `db:"version"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
	CreatedBy          string          `db:"created_by"`
}

func newApplicationRow(a *grants.Application) (applicationRow, error) {
	row := applicationRow{
		ID:                 a.ID,
		CompanyID:          a.CompanyID,
		CallID:             a.CallID,
		CallTitle:          a.CallTitle,
		Title:              a.Title,
		Description:        a.Description,
		ImplementationSite: a.ImplementationSite,
		BudgetEstimated:    a.BudgetEstimated,
		ChecklistFrozen:    a.ChecklistFrozen,
		Status:             string(a.Status),
		StatusLabel:        a.StatusLabel,
		Version:            a.Version,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
		CreatedBy:          a.CreatedBy,
	}
	var err error
	for _, f := range []struct {
		dst *[]byte
		v   any
	}{
		{&row.Procurement, a.Procurement},
		{&row.GuideAssets, a.GuideAssets},
		{&row.RequiredDocuments, a.RequiredDocuments},
		{&row.Drafts, a.Drafts},
		{&row.History, a.History},
	} {
		if *f.dst, err = jsonArray(f.v); err != nil {
			return applicationRow{}, err
		}
	}
	return row, nil
}

func (r applicationRow) application() (grants.Application, error) {
	a := grants.Application{
		ID:                 r.ID,
		CompanyID:          r.CompanyID,
		CallID:             r.CallID,
		CallTitle:          r.CallTitle,
		Title:              r.Title,
		Description:        r.Description,
		ImplementationSite: r.ImplementationSite,
		BudgetEstimated:    r.BudgetEstimated,
		ChecklistFrozen:    r.ChecklistFrozen,
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
		{r.Procurement, &a.Procurement, "procurement"},
		{r.GuideAssets, &a.GuideAssets, "guide_assets"},
		{r.RequiredDocuments, &a.RequiredDocuments, "required_documents"},
		{r.Drafts, &a.Drafts, "drafts"},
		{r.History, &a.History, "history"},
	} {
		if err := decodeJSON(f.raw, f.v, f.column); err != nil {
			return grants.Application{}, err
		}
	}
	return a, nil
}

func (s *Store) CreateApplication(ctx context.Context, a *grants.Application) error {
	now := s.stamp()
	a.Version, a.CreatedAt, a.UpdatedAt = 1, now, now
	row, err := newApplicationRow(a)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		insert into applications (`+applicationColumns+`)
		values (:id, :company_id, :call_id, :call_title, :title, :description, :implementation_site,
			:budget_estimated, :procurement, :guide_assets, :required_documents, :checklist_frozen, :drafts,
			:status, :status_label, :history, :version, :created_at, :updated_at, :created_by)
	`, row)
	return classify(err, "application "+a.ID)
}

func (s *Store) GetApplication(ctx context.Context, id string) (grants.Application, error) {
	var row applicationRow
	if err := s.db.GetContext(ctx, &row, `select `+applicationColumns+` from applications where id = $1`, id); err != nil {
		return grants.Application{}, classify(err, "application "+id)
	}
	return row.application()
}

func (s *Store) ListApplications(ctx context.Context, companyID string) ([]grants.Application, error) {
	var rows []applicationRow
	if err := s.db.SelectContext(ctx, &rows, `select `+applicationColumns+` from applications where company_id = $1 order by id`, companyID); err != nil {
		return nil, err
	}
	out := make([]grants.Application, 0, len(rows))
	for _, r := range rows {
		a, err := r.application()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// UpdateApplication writes everything except status, label and history.
func (s *Store) UpdateApplication(ctx context.Context, a *grants.Application) error {
	row, err := newApplicationRow(a)
	if err != nil {
		return err
	}
	var stored applicationRow
	err = s.db.GetContext(ctx, &stored, `
		update applications
		set title = $3, description = $4, implementation_site = $5, budget_estimated = $6,
		    procurement = $7, guide_assets = $8, required_documents = $9, checklist_frozen = $10,
		    drafts = $11, version = version + 1, updated_at = $12
		where id = $1 and version = $2
		returning `+applicationColumns,
		row.ID, row.Version, row.Title, row.Description, row.ImplementationSite, row.BudgetEstimated,
		row.Procurement, row.GuideAssets, row.RequiredDocuments, row.ChecklistFrozen, row.Drafts,
		s.stamp())
	if errors.Is(err, sql.ErrNoRows) {
		return s.missingOrConflict(ctx, "applications", a.ID)
	}
	if err != nil {
		return classify(err, "application "+a.ID)
	}
	updated, err := stored.application()
	if err != nil {
		return err
	}
	*a = updated
	return nil
}

func (s *Store) ApplicationOrg(ctx context.Context, applicationID string) (string, error) {
	var orgID string
	if err := s.db.QueryRowContext(ctx, `select company_id from applications where id = $1`, applicationID).Scan(&orgID); err != nil {
		return "", classify(err, "application "+applicationID)
	}
	return orgID, nil
}
