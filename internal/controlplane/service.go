// Package controlplane exposes the permission, lifecycle and orchestration
// operations of the platform, together with the directory and dossier use
// cases that feed them.
package controlplane

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"grantflow.org/internal/audit"
	"grantflow.org/internal/auth"
	"grantflow.org/internal/events"
	"grantflow.org/internal/grants"
	"grantflow.org/internal/lifecycle"
	"grantflow.org/internal/obs"
	"grantflow.org/internal/orchestrator"
)

// SystemActor is the actor recorded for automated work with no named automation.
const SystemActor = "system"

// Options tunes a Service. Zero values select defaults.
type Options struct {
	Matrix           *auth.Matrix
	Reports          orchestrator.ReportStore
	Narrator         orchestrator.NarrativeGenerator
	MinDrafts        int
	NarrativeTimeout time.Duration
	Broker           *events.Broker
	Clock            func() time.Time
}

// Service is the control plane.
type Service struct {
	store      grants.Store
	trail      *audit.Trail
	resolver   *auth.Resolver
	engine     *lifecycle.Engine
	aggregator *orchestrator.Aggregator
	reports    orchestrator.ReportStore
	broker     *events.Broker
	now        func() time.Time
}

func New(store grants.Store, trail *audit.Trail, opts Options) *Service {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	reports := opts.Reports
	if reports == nil {
		reports = orchestrator.NewMemoryReports()
	}
	s := &Service{
		store:    store,
		trail:    trail,
		resolver: auth.NewResolver(store, opts.Matrix, auth.WithClock(now)),
		engine:   lifecycle.NewEngine(store, trail),
		reports:  reports,
		broker:   opts.Broker,
		now:      now,
	}
	s.aggregator = orchestrator.NewAggregator(NewSource(store), reports, opts.Narrator, trail,
		orchestrator.WithMinDrafts(opts.MinDrafts),
		orchestrator.WithNarrativeTimeout(opts.NarrativeTimeout),
		orchestrator.WithClock(now),
	)
	return s
}

// Resolver returns the permission resolver backing the service.
func (s *Service) Resolver() *auth.Resolver { return s.resolver }

// ResolvePermission succeeds with the subject's effective role when it grants
// permission on the scope, and fails with *auth.PermissionDeniedError otherwise.
func (s *Service) ResolvePermission(ctx context.Context, subject string, scope auth.ResourceType, scopeID, permission string) (*auth.RoleInfo, error) {
	return s.resolver.RequirePermission(ctx, subject, scope, scopeID, permission)
}

// Lifecycle describes the state machine governing kind.
func (s *Service) Lifecycle(kind lifecycle.Kind) (lifecycle.Description, error) {
	m, err := s.engine.Machine(kind)
	if err != nil {
		return lifecycle.Description{}, err
	}
	return m.Describe(), nil
}

func scopeFor(kind lifecycle.Kind) (auth.ResourceType, error) {
	switch kind {
	case lifecycle.KindProject:
		return auth.ResourceProject, nil
	case lifecycle.KindApplication:
		return auth.ResourceApplication, nil
	}
	return "", fmt.Errorf("%w: %q", lifecycle.ErrUnknownKind, kind)
}

func (s *Service) require(ctx context.Context, actor string, kind lifecycle.Kind, id, permission string) error {
	scope, err := scopeFor(kind)
	if err != nil {
		return err
	}
	_, err = s.resolver.RequirePermission(ctx, actor, scope, id, permission)
	return err
}

func (s *Service) record(ctx context.Context, actor, action, kind, id, orgID string, details map[string]any) {
	if s.trail == nil {
		return
	}
	if _, err := s.trail.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     action,
		EntityKind: kind,
		EntityID:   id,
		OrgID:      orgID,
		Details:    details,
	}); err != nil {
		obs.FromContext(ctx).Error("audit append failed", zap.String("action", action), zap.String("entity_id", id), zap.Error(err))
	}
}

func (s *Service) publish(res lifecycle.Result, automated bool) {
	if s.broker != nil {
		s.broker.Publish(events.FromResult(res, automated))
	}
}

// AuditLog returns the audit entries of a project or application.
func (s *Service) AuditLog(ctx context.Context, actor string, kind lifecycle.Kind, id string, limit int) ([]audit.Entry, error) {
	if err := s.require(ctx, actor, kind, id, "read"); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return []audit.Entry{}, nil
	}
	return s.trail.List(ctx, audit.Filter{EntityKind: string(kind), EntityID: id, Limit: limit})
}
