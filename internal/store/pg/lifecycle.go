package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"grantflow.org/internal/lifecycle"
)

func (s *Store) LoadRecord(ctx context.Context, kind lifecycle.Kind, id string) (lifecycle.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return lifecycle.Record{}, err
	}
	orgColumn := "org_id"
	if kind == lifecycle.KindApplication {
		orgColumn = "company_id"
	}
	rec := lifecycle.Record{Kind: kind, ID: id}
	var status string
	q := fmt.Sprintf(`select %s, status, version from %s where id = $1`, orgColumn, table)
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&rec.OrgID, &status, &rec.Version); err != nil {
		return lifecycle.Record{}, classify(err, string(kind)+" "+id)
	}
	rec.Status = lifecycle.State(status)
	return rec, nil
}

// AppendTransition sets the status and appends to history in a single
// statement guarded by the version column.
func (s *Store) AppendTransition(ctx context.Context, kind lifecycle.Kind, id string, expectedVersion int64, entry lifecycle.HistoryEntry, label string) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	appended, err := jsonArray([]lifecycle.HistoryEntry{entry})
	if err != nil {
		return 0, err
	}
	var version int64
	q := fmt.Sprintf(`
		update %s
		set status = $3, status_label = $4, history = history || $5::jsonb,
		    version = version + 1, updated_at = $6
		where id = $1 and version = $2
		returning version`, table)
	err = s.db.QueryRowContext(ctx, q, id, expectedVersion, string(entry.To), label, appended, s.stamp()).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, s.missingOrConflict(ctx, table, id)
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}
