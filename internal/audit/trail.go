package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"grantflow.org/internal/ids"
)

// ErrInvalidEntry is returned for entries missing actor, action or entity.
var ErrInvalidEntry = errors.New("audit: invalid entry")

// Entry is one immutable record of a mutation.
type Entry struct {
	ID         string         `json:"id" db:"id"`
	OccurredAt time.Time      `json:"occurred_at" db:"occurred_at"`
	Actor      string         `json:"actor" db:"actor"`
	Action     string         `json:"action" db:"action"`
	EntityKind string         `json:"entity_kind" db:"entity_kind"`
	EntityID   string         `json:"entity_id" db:"entity_id"`
	OrgID      string         `json:"org_id,omitempty" db:"org_id"`
	RequestID  string         `json:"request_id,omitempty" db:"request_id"`
	Details    map[string]any `json:"details,omitempty" db:"-"`
}

// Filter narrows List. Zero fields match everything; Limit <= 0 means no limit.
type Filter struct {
	EntityKind string
	EntityID   string
	Action     string
	Limit      int
}

// Match reports whether e satisfies the filter's field constraints.
func (f Filter) Match(e Entry) bool {
	if f.EntityKind != "" && e.EntityKind != f.EntityKind {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	return true
}

// Store persists entries. It only appends; there is no update or delete.
type Store interface {
	AppendAudit(ctx context.Context, e Entry) error
	ListAudit(ctx context.Context, f Filter) ([]Entry, error)
}

// Trail is the append-only audit log shared by every component that mutates state.
type Trail struct {
	store Store
	now   func() time.Time
}

func NewTrail(store Store) *Trail {
	return &Trail{store: store, now: time.Now}
}

// Record stamps e with an id and time, persists it, and mirrors it to the log.
func (t *Trail) Record(ctx context.Context, e Entry) (Entry, error) {
	e.Actor = strings.TrimSpace(e.Actor)
	e.Action = strings.TrimSpace(e.Action)
	if e.Actor == "" || e.Action == "" || e.EntityID == "" {
		return Entry{}, fmt.Errorf("%w: actor, action and entity id are required", ErrInvalidEntry)
	}
	e.OccurredAt = t.now().UTC()
	e.ID = ids.At(e.OccurredAt)
	if e.RequestID == "" {
		e.RequestID = RequestIDFromContext(ctx)
	}
	if err := t.store.AppendAudit(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}
	fields := map[string]any{
		"actor":       e.Actor,
		"entity_kind": e.EntityKind,
		"entity_id":   e.EntityID,
		"audit_id":    e.ID,
	}
	for k, v := range e.Details {
		fields[k] = v
	}
	_ = LogEvent(ctx, e.Action, fields)
	return e, nil
}

// List returns entries in append order.
func (t *Trail) List(ctx context.Context, f Filter) ([]Entry, error) {
	return t.store.ListAudit(ctx, f)
}
