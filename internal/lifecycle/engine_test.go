package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantflow.org/internal/audit"
)

var errNoRecord = errors.New("no such record")

type memRecords struct {
	mu      sync.Mutex
	recs    map[string]Record
	history map[string][]HistoryEntry
	labels  map[string]string
	// barrier, when set, holds every LoadRecord until all expected loads have happened.
	barrier *sync.WaitGroup
}

func newMemRecords() *memRecords {
	return &memRecords{recs: map[string]Record{}, history: map[string][]HistoryEntry{}, labels: map[string]string{}}
}

func (s *memRecords) put(r Record) {
	s.recs[string(r.Kind)+"/"+r.ID] = r
}

func (s *memRecords) LoadRecord(_ context.Context, kind Kind, id string) (Record, error) {
	s.mu.Lock()
	r, ok := s.recs[string(kind)+"/"+id]
	s.mu.Unlock()
	if !ok {
		return Record{}, errNoRecord
	}
	if s.barrier != nil {
		s.barrier.Done()
		s.barrier.Wait()
	}
	return r, nil
}

func (s *memRecords) AppendTransition(_ context.Context, kind Kind, id string, expected int64, entry HistoryEntry, label string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(kind) + "/" + id
	r, ok := s.recs[key]
	if !ok {
		return 0, errNoRecord
	}
	if r.Version != expected {
		return 0, ErrConflict
	}
	r.Status = entry.To
	r.Version++
	s.recs[key] = r
	s.history[key] = append(s.history[key], entry)
	s.labels[key] = label
	return r.Version, nil
}

func newTestEngine(store Store) (*Engine, *audit.Trail) {
	trail := audit.NewTrail(audit.NewMemoryStore())
	return NewEngine(store, trail), trail
}

func TestEngineTransition(t *testing.T) {
	store := newMemRecords()
	store.put(Record{Kind: KindProject, ID: "p1", OrgID: "o1", Status: ProjectDraft, Version: 1})
	engine, trail := newTestEngine(store)
	ctx := context.Background()

	res, err := engine.Transition(ctx, Request{Kind: KindProject, ID: "p1", To: ProjectPreEligible, Actor: "u1", Reason: "checks passed"})
	require.NoError(t, err)
	assert.Equal(t, ProjectPreEligible, res.Entry.To)
	assert.Equal(t, ProjectDraft, res.Entry.From)
	assert.Equal(t, "Pre-eligible", res.Label)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, "o1", res.OrgID)
	assert.Equal(t, "Pre-eligible", store.labels["project/p1"])

	entries, err := trail.List(ctx, audit.Filter{EntityID: "p1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "project.transition", entries[0].Action)
	assert.Equal(t, "u1", entries[0].Actor)
	assert.Equal(t, "pre_eligible", entries[0].Details["to"])
	assert.NotContains(t, entries[0].Details, "automated")
}

func TestEngineIllegalTransitionLeavesStateUntouched(t *testing.T) {
	store := newMemRecords()
	store.put(Record{Kind: KindProject, ID: "p1", Status: ProjectDraft, Version: 1})
	engine, trail := newTestEngine(store)

	_, err := engine.Transition(context.Background(), Request{Kind: KindProject, ID: "p1", To: ProjectApproved, Actor: "u1"})
	var illegal *IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, ProjectDraft, store.recs["project/p1"].Status)
	assert.Empty(t, store.history["project/p1"])

	entries, _ := trail.List(context.Background(), audit.Filter{})
	assert.Empty(t, entries)
}

func TestEngineTerminalStateRejectsEverything(t *testing.T) {
	store := newMemRecords()
	store.put(Record{Kind: KindApplication, ID: "a1", Status: AppMonitoring, Version: 9})
	engine, _ := newTestEngine(store)

	for _, to := range Application.States() {
		_, err := engine.Transition(context.Background(), Request{Kind: KindApplication, ID: "a1", To: to, Actor: "u1"})
		var illegal *IllegalTransitionError
		assert.True(t, errors.As(err, &illegal), "monitoring -> %s", to)
	}
}

func TestEngineAutomatedFlag(t *testing.T) {
	store := newMemRecords()
	store.put(Record{Kind: KindApplication, ID: "a1", Status: AppCallSelected, Version: 1})
	engine, trail := newTestEngine(store)

	_, err := engine.Transition(context.Background(), Request{Kind: KindApplication, ID: "a1", To: AppGuideReady, Actor: "system", Automated: true})
	require.NoError(t, err)
	entries, _ := trail.List(context.Background(), audit.Filter{EntityID: "a1"})
	require.Len(t, entries, 1)
	assert.Equal(t, "system", entries[0].Actor)
	assert.Equal(t, true, entries[0].Details["automated"])
}

func TestEngineErrors(t *testing.T) {
	store := newMemRecords()
	engine, _ := newTestEngine(store)

	_, err := engine.Transition(context.Background(), Request{Kind: "invoice", ID: "x", To: "paid", Actor: "u"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = engine.Transition(context.Background(), Request{Kind: KindProject, ID: "missing", To: ProjectBlocked, Actor: "u"})
	assert.ErrorIs(t, err, errNoRecord)
}

func TestEngineConcurrentTransitionsFromSameState(t *testing.T) {
	store := newMemRecords()
	store.put(Record{Kind: KindProject, ID: "p1", Status: ProjectDraft, Version: 1})
	var barrier sync.WaitGroup
	barrier.Add(2)
	store.barrier = &barrier
	engine, _ := newTestEngine(store)

	targets := []State{ProjectPreEligible, ProjectBlocked}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		i, to := i, to
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.Transition(context.Background(), Request{Kind: KindProject, ID: "p1", To: to, Actor: "u"})
		}()
	}
	wg.Wait()

	var winners, conflicts int
	var winner State
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
			winner = targets[i]
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, winner, store.recs["project/p1"].Status)
	assert.Len(t, store.history["project/p1"], 1)
}
