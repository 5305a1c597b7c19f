package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"grantflow.org/internal/audit"
)

type auditRow struct {
	audit.Entry
	Details []byte `db:"details"`
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = b
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, occurred_at, actor, action, entity_kind, entity_id, org_id, request_id, details)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.OccurredAt, e.Actor, e.Action, e.EntityKind, e.EntityID,
		nullIfEmpty(e.OrgID), nullIfEmpty(e.RequestID), details)
	return classify(err, "audit entry "+e.ID)
}

// ListAudit returns matching entries in append order.
func (s *Store) ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("entity_kind", f.EntityKind)
	add("entity_id", f.EntityID)
	add("action", f.Action)

	q := `select id, occurred_at, actor, action, entity_kind, entity_id,
		coalesce(org_id, '') as org_id, coalesce(request_id, '') as request_id, details
		from audit_log`
	if len(conds) > 0 {
		q += " where " + strings.Join(conds, " and ")
	}
	q += " order by seq"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" limit $%d", len(args))
	}

	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		e := row.Entry
		if err := decodeJSON(row.Details, &e.Details, "details"); err != nil {
			return nil, err
		}
		if len(e.Details) == 0 {
			e.Details = nil
		}
		out = append(out, e)
	}
	return out, nil
}
