package controlplane

import (
	"context"
	"fmt"
	"strings"

	"grantflow.org/internal/lifecycle"
)

// Transition moves a project or application to a new state on behalf of a
// human actor holding the transition permission.
func (s *Service) Transition(ctx context.Context, kind lifecycle.Kind, id string, to lifecycle.State, actor, reason string) (lifecycle.Result, error) {
	if strings.TrimSpace(actor) == "" {
		return lifecycle.Result{}, lifecycle.ErrMissingActor
	}
	if err := s.require(ctx, actor, kind, id, "transition"); err != nil {
		return lifecycle.Result{}, err
	}
	res, err := s.engine.Transition(ctx, lifecycle.Request{Kind: kind, ID: id, To: to, Actor: actor, Reason: reason})
	if err != nil {
		return lifecycle.Result{}, err
	}
	s.publish(res, false)
	return res, nil
}

// AutoTransition is the in-process path used by background processing. It
// skips the permission check and marks the audit entry as automated. An empty
// automationID records the transition as "system".
func (s *Service) AutoTransition(ctx context.Context, kind lifecycle.Kind, id string, to lifecycle.State, automationID, reason string) (lifecycle.Result, error) {
	actor := SystemActor
	if automationID != "" {
		actor = "automation:" + automationID
	}
	res, err := s.engine.Transition(ctx, lifecycle.Request{Kind: kind, ID: id, To: to, Actor: actor, Reason: reason, Automated: true})
	if err != nil {
		return lifecycle.Result{}, err
	}
	s.publish(res, true)
	return res, nil
}

// History returns the transition history of an entity.
func (s *Service) History(ctx context.Context, actor string, kind lifecycle.Kind, id string) ([]lifecycle.HistoryEntry, error) {
	if err := s.require(ctx, actor, kind, id, "read"); err != nil {
		return nil, err
	}
	switch kind {
	case lifecycle.KindProject:
		p, err := s.store.GetProject(ctx, id)
		return p.History, err
	case lifecycle.KindApplication:
		a, err := s.store.GetApplication(ctx, id)
		return a.History, err
	}
	return nil, fmt.Errorf("%w: %q", lifecycle.ErrUnknownKind, kind)
}
