package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/grants"
	"grantflow.org/internal/lifecycle"
)

type orgRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	TaxID          string    `db:"tax_id"`
	Members        []byte    `db:"members"`
	Authorizations []byte    `db:"authorizations"`
	Version        int64     `db:"version"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r orgRow) organization() (grants.Organization, error) {
	org := grants.Organization{
		ID:        r.ID,
		Name:      r.Name,
		TaxID:     r.TaxID,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := decodeJSON(r.Members, &org.Members, "members"); err != nil {
		return grants.Organization{}, err
	}
	if err := decodeJSON(r.Authorizations, &org.Authorizations, "authorizations"); err != nil {
		return grants.Organization{}, err
	}
	return org, nil
}

func (s *Store) CreateOrganization(ctx context.Context, org *grants.Organization) error {
	members, err := jsonArray(org.Members)
	if err != nil {
		return err
	}
	auths, err := jsonArray(org.Authorizations)
	if err != nil {
		return err
	}
	now := s.stamp()
	_, err = s.db.ExecContext(ctx, `
		insert into organizations (id, name, tax_id, members, authorizations, version, created_at, updated_at)
		values ($1, $2, $3, $4, $5, 1, $6, $6)
	`, org.ID, org.Name, org.TaxID, members, auths, now)
	if err != nil {
		return classify(err, "organization "+org.ID)
	}
	org.Version, org.CreatedAt, org.UpdatedAt = 1, now, now
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (grants.Organization, error) {
	var row orgRow
	err := s.db.GetContext(ctx, &row, `
		select id, name, tax_id, members, authorizations, version, created_at, updated_at
		from organizations
		where id = $1
	`, id)
	if err != nil {
		return grants.Organization{}, classify(err, "organization "+id)
	}
	return row.organization()
}

func (s *Store) UpdateOrganization(ctx context.Context, org *grants.Organization) error {
	members, err := jsonArray(org.Members)
	if err != nil {
		return err
	}
	auths, err := jsonArray(org.Authorizations)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, `
		update organizations
		set name = $3, tax_id = $4, members = $5, authorizations = $6,
		    version = version + 1, updated_at = $7
		where id = $1 and version = $2
		returning version, updated_at
	`, org.ID, org.Version, org.Name, org.TaxID, members, auths, s.stamp()).Scan(&org.Version, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s.missingOrConflict(ctx, "organizations", org.ID)
	}
	return classify(err, "organization "+org.ID)
}

// DeleteOrganization checks for dependents and deletes in one transaction.
// Projects and documents cascade; applications block the delete.
func (s *Store) DeleteOrganization(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	if err := tx.QueryRowContext(ctx, `select id from organizations where id = $1 for update`, id).Scan(&locked); err != nil {
		return classify(err, "organization "+id)
	}
	var active bool
	if err := tx.QueryRowContext(ctx, `
		select exists(select 1 from projects where org_id = $1 and status <> $2)
		    or exists(select 1 from applications where company_id = $1)
	`, id, string(lifecycle.ProjectArchived)).Scan(&active); err != nil {
		return err
	}
	if active {
		return fmt.Errorf("%w: organization %s", grants.ErrActiveDependents, id)
	}
	if _, err := tx.ExecContext(ctx, `
		delete from compliance_reports
		where entity_kind = $2 and entity_id in (select id from projects where org_id = $1)
	`, id, string(lifecycle.KindProject)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from organizations where id = $1`, id); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: organization %s", grants.ErrActiveDependents, id)
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) OrgAccess(ctx context.Context, orgID string) (auth.OrgAccess, error) {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return auth.OrgAccess{}, err
	}
	return auth.OrgAccess{OrgID: org.ID, Members: org.Members, Authorizations: org.Authorizations}, nil
}
