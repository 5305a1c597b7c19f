package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"grantflow.org/internal/audit"
	"grantflow.org/internal/obs"
)

// Record is the lifecycle-relevant projection of a governed entity.
type Record struct {
	Kind    Kind
	ID      string
	OrgID   string
	Status  State
	Version int64
}

// Store reads records and appends transitions under an optimistic version guard.
type Store interface {
	LoadRecord(ctx context.Context, kind Kind, id string) (Record, error)
	// AppendTransition sets status and label to entry.To and appends entry to
	// the history in one atomic step, only if the stored version still equals
	// expectedVersion. Otherwise it returns ErrConflict and changes nothing.
	AppendTransition(ctx context.Context, kind Kind, id string, expectedVersion int64, entry HistoryEntry, label string) (int64, error)
}

// Request asks the engine to move an entity to a new state.
type Request struct {
	Kind   Kind
	ID     string
	To     State
	Actor  string
	Reason string
	// Automated marks transitions issued by background processing.
	Automated bool
}

// Result describes a committed transition.
type Result struct {
	Kind    Kind         `json:"kind"`
	ID      string       `json:"id"`
	OrgID   string       `json:"org_id"`
	Entry   HistoryEntry `json:"entry"`
	Label   string       `json:"status_label"`
	Version int64        `json:"version"`
}

// Engine applies validated transitions to stored entities.
type Engine struct {
	machines map[Kind]*Machine
	store    Store
	trail    *audit.Trail
	now      func() time.Time
}

// NewEngine wires the store and trail. With no machines it governs Project and Application.
func NewEngine(store Store, trail *audit.Trail, machines ...*Machine) *Engine {
	if len(machines) == 0 {
		machines = []*Machine{Project, Application}
	}
	e := &Engine{
		machines: make(map[Kind]*Machine, len(machines)),
		store:    store,
		trail:    trail,
		now:      time.Now,
	}
	for _, m := range machines {
		e.machines[m.Kind()] = m
	}
	return e
}

// Machine returns the machine governing kind.
func (e *Engine) Machine(kind Kind) (*Machine, error) {
	m, ok := e.machines[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return m, nil
}

// Transition validates req against the entity's current state and commits it.
// On any error the entity's status and history are unchanged.
func (e *Engine) Transition(ctx context.Context, req Request) (Result, error) {
	res, err := e.transition(ctx, req)
	obs.Transitions.WithLabelValues(string(req.Kind), outcome(err)).Inc()
	return res, err
}

func (e *Engine) transition(ctx context.Context, req Request) (Result, error) {
	m, err := e.Machine(req.Kind)
	if err != nil {
		return Result{}, err
	}
	rec, err := e.store.LoadRecord(ctx, req.Kind, req.ID)
	if err != nil {
		return Result{}, err
	}
	entry, err := m.Apply(rec.Status, req.To, req.Actor, req.Reason, e.now())
	if err != nil {
		return Result{}, err
	}
	label := m.Label(entry.To)
	version, err := e.store.AppendTransition(ctx, req.Kind, req.ID, rec.Version, entry, label)
	if err != nil {
		return Result{}, err
	}

	res := Result{Kind: req.Kind, ID: req.ID, OrgID: rec.OrgID, Entry: entry, Label: label, Version: version}
	details := map[string]any{
		"from":   string(entry.From),
		"to":     string(entry.To),
		"reason": entry.Reason,
	}
	if req.Automated {
		details["automated"] = true
	}
	if e.trail != nil {
		if _, err := e.trail.Record(ctx, audit.Entry{
			Actor:      entry.By,
			Action:     string(req.Kind) + ".transition",
			EntityKind: string(req.Kind),
			EntityID:   req.ID,
			OrgID:      rec.OrgID,
			Details:    details,
		}); err != nil {
			obs.FromContext(ctx).Error("audit append failed after committed transition",
				zap.String("kind", string(req.Kind)),
				zap.String("id", req.ID),
				zap.Error(err),
			)
		}
	}
	return res, nil
}

func outcome(err error) string {
	var illegal *IllegalTransitionError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &illegal):
		return "illegal"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "error"
}
