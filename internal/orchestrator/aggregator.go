package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"grantflow.org/internal/audit"
	"grantflow.org/internal/ids"
	"grantflow.org/internal/lifecycle"
	"grantflow.org/internal/obs"
)

// FallbackNarrative replaces the narrative when the generator fails.
const FallbackNarrative = "Narrative unavailable: the report generator did not respond. The checks above are complete."

const (
	DefaultMinDrafts        = 3
	DefaultNarrativeTimeout = 20 * time.Second
)

// Source builds snapshots from committed state.
type Source interface {
	Snapshot(ctx context.Context, kind lifecycle.Kind, id string) (Snapshot, error)
}

// ReportStore keeps decision reports. Saved reports are never modified.
type ReportStore interface {
	SaveDecisionReport(ctx context.Context, r DecisionReport) error
	ListDecisionReports(ctx context.Context, kind lifecycle.Kind, entityID string) ([]DecisionReport, error)
}

// NarrativeGenerator turns a summary into prose.
type NarrativeGenerator interface {
	Narrate(ctx context.Context, s Summary) (string, error)
}

// Summary is what the narrative generator sees.
type Summary struct {
	Kind        lifecycle.Kind `json:"kind"`
	EntityID    string         `json:"entity_id"`
	Title       string         `json:"title"`
	Status      string         `json:"status"`
	Checks      []Check        `json:"checks"`
	NeedsAction bool           `json:"needs_action"`
	TotalIssues int            `json:"total_issues"`
}

// DecisionReport is the result of one orchestration run.
type DecisionReport struct {
	ID                string         `json:"id" db:"id"`
	EntityKind        lifecycle.Kind `json:"entity_kind" db:"entity_kind"`
	EntityID          string         `json:"entity_id" db:"entity_id"`
	OrgID             string         `json:"org_id" db:"org_id"`
	Status            string         `json:"status" db:"status"`
	Checks            []Check        `json:"checks" db:"-"`
	NeedsAction       bool           `json:"needs_action" db:"needs_action"`
	TotalIssues       int            `json:"total_issues" db:"total_issues"`
	Narrative         string         `json:"narrative" db:"narrative"`
	NarrativeDegraded bool           `json:"narrative_degraded" db:"narrative_degraded"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

// Aggregator runs readiness checks and assembles decision reports.
type Aggregator struct {
	source    Source
	reports   ReportStore
	narrator  NarrativeGenerator
	trail     *audit.Trail
	minDrafts int
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Aggregator)

func WithMinDrafts(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.minDrafts = n
		}
	}
}

func WithNarrativeTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAggregator(source Source, reports ReportStore, narrator NarrativeGenerator, trail *audit.Trail, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:    source,
		reports:   reports,
		narrator:  narrator,
		trail:     trail,
		minDrafts: DefaultMinDrafts,
		timeout:   DefaultNarrativeTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run evaluates the entity and persists the report. Narrative failures never
// fail the run.
func (a *Aggregator) Run(ctx context.Context, kind lifecycle.Kind, id string) (DecisionReport, error) {
	snap, err := a.source.Snapshot(ctx, kind, id)
	if err != nil {
		return DecisionReport{}, err
	}
	checks := Evaluate(snap, a.minDrafts)
	needsAction, total := Tally(checks)

	report := DecisionReport{
		ID:          ids.New(),
		EntityKind:  kind,
		EntityID:    id,
		OrgID:       snap.OrgID,
		Status:      string(snap.Status),
		Checks:      checks,
		NeedsAction: needsAction,
		TotalIssues: total,
		CreatedAt:   a.now().UTC(),
	}
	report.Narrative, report.NarrativeDegraded = a.narrate(ctx, Summary{
		Kind:        kind,
		EntityID:    id,
		Title:       snap.Title,
		Status:      snap.StatusLabel,
		Checks:      checks,
		NeedsAction: needsAction,
		TotalIssues: total,
	})

	if a.reports != nil {
		if err := a.reports.SaveDecisionReport(ctx, report); err != nil {
			return DecisionReport{}, fmt.Errorf("save decision report: %w", err)
		}
	}
	obs.Orchestrations.WithLabelValues(string(kind), strconv.FormatBool(needsAction)).Inc()

	if a.trail != nil {
		if _, err := a.trail.Record(ctx, audit.Entry{
			Actor:      "system",
			Action:     "orchestrator.check",
			EntityKind: string(kind),
			EntityID:   id,
			OrgID:      snap.OrgID,
			Details: map[string]any{
				"report_id":    report.ID,
				"total_issues": total,
				"needs_action": needsAction,
			},
		}); err != nil {
			obs.FromContext(ctx).Error("audit append failed for orchestration", zap.String("report_id", report.ID), zap.Error(err))
		}
	}
	return report, nil
}

func (a *Aggregator) narrate(ctx context.Context, s Summary) (string, bool) {
	if a.narrator == nil {
		return FallbackNarrative, true
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := a.narrator.Narrate(ctx, s)
		done <- result{text, err}
	}()

	var err error
	select {
	case r := <-done:
		if r.err == nil && r.text != "" {
			return r.text, false
		}
		err = r.err
		if err == nil {
			err = errors.New("empty narrative")
		}
	case <-ctx.Done():
		err = ctx.Err()
	}

	reason := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	obs.NarrativeFallbacks.WithLabelValues(reason).Inc()
	obs.FromContext(ctx).Warn("narrative degraded",
		zap.String("entity_id", s.EntityID),
		zap.Error(&CollaboratorTimeoutError{Collaborator: "narrative", Err: err}),
	)
	return FallbackNarrative, true
}
