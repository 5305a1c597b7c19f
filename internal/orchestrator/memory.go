package orchestrator

import (
	"context"
	"slices"
	"sync"

	"grantflow.org/internal/lifecycle"
)

// MemoryReports is an in-process ReportStore.
type MemoryReports struct {
	mu      sync.RWMutex
	reports []DecisionReport
}

func NewMemoryReports() *MemoryReports { return &MemoryReports{} }

func (m *MemoryReports) SaveDecisionReport(_ context.Context, r DecisionReport) error {
	r.Checks = cloneChecks(r.Checks)
	m.mu.Lock()
	m.reports = append(m.reports, r)
	m.mu.Unlock()
	return nil
}

// ListDecisionReports returns the entity's reports, newest first.
func (m *MemoryReports) ListDecisionReports(_ context.Context, kind lifecycle.Kind, entityID string) ([]DecisionReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []DecisionReport
	for i := len(m.reports) - 1; i >= 0; i-- {
		r := m.reports[i]
		if r.EntityKind == kind && r.EntityID == entityID {
			r.Checks = cloneChecks(r.Checks)
			out = append(out, r)
		}
	}
	return out, nil
}

func cloneChecks(in []Check) []Check {
	out := slices.Clone(in)
	for i := range out {
		out[i].Issues = slices.Clone(out[i].Issues)
	}
	return out
}
