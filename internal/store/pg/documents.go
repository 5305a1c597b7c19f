package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/grants"
)

const documentColumns = `id, org_id, coalesce(project_id, '') as project_id, name, storage_key, status,
	revision, uploaded_by, created_at, updated_at, version`

type documentRow struct {
	ID         string    `db:"id"`
	OrgID      string    `db:"org_id"`
	ProjectID  string    `db:"project_id"`
	Name       string    `db:"name"`
	StorageKey string    `db:"storage_key"`
	Status     string    `db:"status"`
	Revision   int       `db:"revision"`
	UploadedBy string    `db:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	Version    int64     `db:"version"`
}

func (r documentRow) document() grants.Document {
	return grants.Document(r)
}

// CreateDocument inserts d. A project-scoped document must name a project of
// the same organization.
func (s *Store) CreateDocument(ctx context.Context, d *grants.Document) error {
	now := s.stamp()
	res, err := s.db.ExecContext(ctx, `
		insert into documents (id, org_id, project_id, name, storage_key, status, revision, uploaded_by, version, created_at, updated_at)
		select $1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $9
		where $3::text is null
		   or exists (select 1 from projects where id = $3 and org_id = $2)
	`, d.ID, d.OrgID, nullIfEmpty(d.ProjectID), d.Name, d.StorageKey, d.Status, d.Revision, d.UploadedBy, now)
	if err != nil {
		return classify(err, "document "+d.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.projectOutsideOrg(ctx, d.ProjectID)
	}
	d.Version, d.CreatedAt, d.UpdatedAt = 1, now, now
	return nil
}

func (s *Store) projectOutsideOrg(ctx context.Context, projectID string) error {
	var owner string
	if err := s.db.QueryRowContext(ctx, `select org_id from projects where id = $1`, projectID).Scan(&owner); err != nil {
		return classify(err, "project "+projectID)
	}
	return fmt.Errorf("%w: project %s belongs to another organization", grants.ErrInvalidInput, projectID)
}

func (s *Store) GetDocument(ctx context.Context, id string) (grants.Document, error) {
	var row documentRow
	if err := s.db.GetContext(ctx, &row, `select `+documentColumns+` from documents where id = $1`, id); err != nil {
		return grants.Document{}, classify(err, "document "+id)
	}
	return row.document(), nil
}

func (s *Store) UpdateDocument(ctx context.Context, d *grants.Document) error {
	err := s.db.QueryRowContext(ctx, `
		update documents
		set name = $3, storage_key = $4, status = $5, revision = $6, version = version + 1, updated_at = $7
		where id = $1 and version = $2
		returning version, updated_at
	`, d.ID, d.Version, d.Name, d.StorageKey, d.Status, d.Revision, s.stamp()).Scan(&d.Version, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s.missingOrConflict(ctx, "documents", d.ID)
	}
	return classify(err, "document "+d.ID)
}

func (s *Store) DocumentAccess(ctx context.Context, documentID string) (auth.DocumentAccess, error) {
	var access auth.DocumentAccess
	err := s.db.QueryRowContext(ctx, `
		select id, org_id, coalesce(project_id, '')
		from documents
		where id = $1
	`, documentID).Scan(&access.DocumentID, &access.OrgID, &access.ProjectID)
	if err != nil {
		return auth.DocumentAccess{}, classify(err, "document "+documentID)
	}
	return access, nil
}
