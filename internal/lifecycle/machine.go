package lifecycle

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// State is a lifecycle state name.
type State string

// Kind names a governed entity type.
type Kind string

const (
	KindProject     Kind = "project"
	KindApplication Kind = "application"
)

// ParseKind accepts the wire names of entity kinds.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindProject, KindApplication:
		return k, true
	}
	return "", false
}

// HistoryEntry is one element of an entity's append-only state history.
// From is empty for the synthetic creation entry.
type HistoryEntry struct {
	From   State     `json:"from,omitempty"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	By     string    `json:"by"`
	Reason string    `json:"reason,omitempty"`
}

// StateDef declares a state, its display label and its allowed successors.
type StateDef struct {
	State State
	Label string
	Next  []State
}

// Machine is an immutable transition table.
type Machine struct {
	kind    Kind
	initial State
	order   []State
	labels  map[State]string
	next    map[State][]State
}

// NewMachine builds a machine from defs. It panics when defs reference
// undeclared states, since tables are fixed at compile time.
func NewMachine(kind Kind, initial State, defs []StateDef) *Machine {
	m := &Machine{
		kind:    kind,
		initial: initial,
		labels:  make(map[State]string, len(defs)),
		next:    make(map[State][]State, len(defs)),
	}
	for _, d := range defs {
		if _, dup := m.labels[d.State]; dup {
			panic(fmt.Sprintf("lifecycle: %s declares %q twice", kind, d.State))
		}
		m.order = append(m.order, d.State)
		m.labels[d.State] = d.Label
		m.next[d.State] = slices.Clone(d.Next)
	}
	for from, targets := range m.next {
		for _, to := range targets {
			if _, ok := m.labels[to]; !ok {
				panic(fmt.Sprintf("lifecycle: %s edge %q -> %q targets an undeclared state", kind, from, to))
			}
		}
	}
	if _, ok := m.labels[initial]; !ok {
		panic(fmt.Sprintf("lifecycle: %s initial state %q is undeclared", kind, initial))
	}
	return m
}

func (m *Machine) Kind() Kind { return m.kind }

func (m *Machine) Initial() State { return m.initial }

// States lists states in declaration order.
func (m *Machine) States() []State { return slices.Clone(m.order) }

func (m *Machine) Known(s State) bool {
	_, ok := m.labels[s]
	return ok
}

// Label returns the display label of s, or s itself when unknown.
func (m *Machine) Label(s State) string {
	if l, ok := m.labels[s]; ok {
		return l
	}
	return string(s)
}

// Allowed returns the successors of from.
func (m *Machine) Allowed(from State) []State {
	return slices.Clone(m.next[from])
}

// CanTransition reports whether from -> to is in the table.
func (m *Machine) CanTransition(from, to State) bool {
	return slices.Contains(m.next[from], to)
}

// IsTerminal reports whether s is a known state without successors.
func (m *Machine) IsTerminal(s State) bool {
	return m.Known(s) && len(m.next[s]) == 0
}

// Apply validates from -> to and returns the history entry recording it.
func (m *Machine) Apply(from, to State, by, reason string, at time.Time) (HistoryEntry, error) {
	by = strings.TrimSpace(by)
	if by == "" {
		return HistoryEntry{}, ErrMissingActor
	}
	if !m.CanTransition(from, to) {
		return HistoryEntry{}, &IllegalTransitionError{Kind: m.kind, From: from, To: to}
	}
	return HistoryEntry{From: from, To: to, At: at.UTC(), By: by, Reason: strings.TrimSpace(reason)}, nil
}

// StateInfo describes one state for clients.
type StateInfo struct {
	State    State   `json:"state"`
	Label    string  `json:"label"`
	Next     []State `json:"next"`
	Terminal bool    `json:"terminal"`
}

// Description is the client-facing view of a machine.
type Description struct {
	Kind    Kind        `json:"kind"`
	Initial State       `json:"initial"`
	States  []StateInfo `json:"states"`
}

func (m *Machine) Describe() Description {
	d := Description{Kind: m.kind, Initial: m.initial}
	for _, s := range m.order {
		next := m.Allowed(s)
		if next == nil {
			next = []State{}
		}
		d.States = append(d.States, StateInfo{State: s, Label: m.labels[s], Next: next, Terminal: len(next) == 0})
	}
	return d
}
