package controlplane

import (
	"context"
	"fmt"

	"grantflow.org/internal/grants"
	"grantflow.org/internal/lifecycle"
	"grantflow.org/internal/orchestrator"
)

// RunOrchestration evaluates the entity's readiness and stores the report.
func (s *Service) RunOrchestration(ctx context.Context, actor string, kind lifecycle.Kind, id string) (orchestrator.DecisionReport, error) {
	if err := s.require(ctx, actor, kind, id, "read"); err != nil {
		return orchestrator.DecisionReport{}, err
	}
	return s.aggregator.Run(ctx, kind, id)
}

// DecisionReports lists stored reports for the entity, newest first.
func (s *Service) DecisionReports(ctx context.Context, actor string, kind lifecycle.Kind, id string) ([]orchestrator.DecisionReport, error) {
	if err := s.require(ctx, actor, kind, id, "read"); err != nil {
		return nil, err
	}
	return s.reports.ListDecisionReports(ctx, kind, id)
}

// NewSource adapts a grants store to the orchestrator's snapshot source.
func NewSource(store grants.Store) orchestrator.Source {
	return snapshotSource{store: store}
}

type snapshotSource struct {
	store grants.Store
}

func (src snapshotSource) Snapshot(ctx context.Context, kind lifecycle.Kind, id string) (orchestrator.Snapshot, error) {
	var snap orchestrator.Snapshot
	switch kind {
	case lifecycle.KindProject:
		p, err := src.store.GetProject(ctx, id)
		if err != nil {
			return snap, err
		}
		snap = orchestrator.Snapshot{
			OrgID:                p.OrgID,
			Title:                p.Title,
			Status:               p.Status,
			StatusLabel:          p.StatusLabel,
			MissingConfiguration: p.MissingConfiguration(),
			GuideAssets:          len(p.GuideAssets),
			RequiredDocuments:    requiredItems(p.RequiredDocuments),
			Drafts:               len(p.Drafts),
		}
	case lifecycle.KindApplication:
		a, err := src.store.GetApplication(ctx, id)
		if err != nil {
			return snap, err
		}
		snap = orchestrator.Snapshot{
			OrgID:                a.CompanyID,
			Title:                a.Title,
			Status:               a.Status,
			StatusLabel:          a.StatusLabel,
			MissingConfiguration: a.MissingConfiguration(),
			GuideAssets:          len(a.GuideAssets),
			RequiredDocuments:    requiredItems(a.RequiredDocuments),
			Drafts:               len(a.Drafts),
		}
	default:
		return snap, fmt.Errorf("%w: %q", lifecycle.ErrUnknownKind, kind)
	}
	snap.Kind, snap.ID = kind, id

	reports, err := src.store.ListComplianceReports(ctx, kind, id)
	if err != nil {
		return orchestrator.Snapshot{}, err
	}
	for _, r := range reports {
		snap.ReportTypes = append(snap.ReportTypes, r.Type)
	}
	return snap, nil
}

func requiredItems(list grants.Checklist) []orchestrator.RequiredItem {
	out := make([]orchestrator.RequiredItem, 0, len(list))
	for _, d := range list {
		out = append(out, orchestrator.RequiredItem{Name: d.Name, Uploaded: d.Uploaded()})
	}
	return out
}
