package pg

import (
	"context"
	"fmt"

	"grantflow.org/internal/grants"
	"grantflow.org/internal/lifecycle"
	"grantflow.org/internal/orchestrator"
)

func (s *Store) AddComplianceReport(ctx context.Context, r *grants.ComplianceReport) error {
	table, err := tableFor(r.EntityKind)
	if err != nil {
		return err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`select exists(select 1 from %s where id = $1)`, table), r.EntityID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s %s", grants.ErrNotFound, r.EntityKind, r.EntityID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.stamp()
	}
	_, err = s.db.NamedExecContext(ctx, `
		insert into compliance_reports (id, entity_kind, entity_id, type, result, summary, created_at, created_by)
		values (:id, :entity_kind, :entity_id, :type, :result, :summary, :created_at, :created_by)
	`, map[string]any{
		"id":          r.ID,
		"entity_kind": string(r.EntityKind),
		"entity_id":   r.EntityID,
		"type":        r.Type,
		"result":      r.Result,
		"summary":     r.Summary,
		"created_at":  r.CreatedAt,
		"created_by":  r.CreatedBy,
	})
	return classify(err, "compliance report "+r.ID)
}

func (s *Store) ListComplianceReports(ctx context.Context, kind lifecycle.Kind, entityID string) ([]grants.ComplianceReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, entity_kind, entity_id, type, result, summary, created_at, created_by
		from compliance_reports
		where entity_kind = $1 and entity_id = $2
		order by created_at, id
	`, string(kind), entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grants.ComplianceReport
	for rows.Next() {
		var (
			r    grants.ComplianceReport
			kind string
		)
		if err := rows.Scan(&r.ID, &kind, &r.EntityID, &r.Type, &r.Result, &r.Summary, &r.CreatedAt, &r.CreatedBy); err != nil {
			return nil, err
		}
		r.EntityKind = lifecycle.Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

type decisionRow struct {
	orchestrator.DecisionReport
	Checks []byte `db:"checks"`
}

// SaveDecisionReport inserts the report. Rows are never updated.
func (s *Store) SaveDecisionReport(ctx context.Context, r orchestrator.DecisionReport) error {
	checks, err := jsonArray(r.Checks)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into decision_reports (id, entity_kind, entity_id, org_id, status, checks, needs_action,
			total_issues, narrative, narrative_degraded, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, string(r.EntityKind), r.EntityID, r.OrgID, r.Status, checks, r.NeedsAction,
		r.TotalIssues, r.Narrative, r.NarrativeDegraded, r.CreatedAt)
	return classify(err, "decision report "+r.ID)
}

// ListDecisionReports returns reports newest first.
func (s *Store) ListDecisionReports(ctx context.Context, kind lifecycle.Kind, entityID string) ([]orchestrator.DecisionReport, error) {
	var rows []decisionRow
	err := s.db.SelectContext(ctx, &rows, `
		select id, entity_kind, entity_id, org_id, status, checks, needs_action, total_issues,
			narrative, narrative_degraded, created_at
		from decision_reports
		where entity_kind = $1 and entity_id = $2
		order by created_at desc, id desc
	`, string(kind), entityID)
	if err != nil {
		return nil, err
	}
	out := make([]orchestrator.DecisionReport, 0, len(rows))
	for _, row := range rows {
		r := row.DecisionReport
		if err := decodeJSON(row.Checks, &r.Checks, "checks"); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
