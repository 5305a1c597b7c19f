// Package events fans lifecycle transitions out to live subscribers.
package events

import (
	"context"
	"sync"
	"time"

	"grantflow.org/internal/lifecycle"
)

// TransitionEvent describes one committed lifecycle transition.
type TransitionEvent struct {
	Kind      lifecycle.Kind  `json:"kind"`
	ID        string          `json:"id"`
	OrgID     string          `json:"org_id"`
	From      lifecycle.State `json:"from,omitempty"`
	To        lifecycle.State `json:"to"`
	Label     string          `json:"status_label"`
	By        string          `json:"by"`
	Reason    string          `json:"reason,omitempty"`
	Automated bool            `json:"automated,omitempty"`
	At        time.Time       `json:"at"`
}

// FromResult converts an engine result into an event.
func FromResult(res lifecycle.Result, automated bool) TransitionEvent {
	return TransitionEvent{
		Kind:      res.Kind,
		ID:        res.ID,
		OrgID:     res.OrgID,
		From:      res.Entry.From,
		To:        res.Entry.To,
		Label:     res.Label,
		By:        res.Entry.By,
		Reason:    res.Entry.Reason,
		Automated: automated,
		At:        res.Entry.At,
	}
}

// Broker fans out transition events to all active subscribers (SSE clients).
type Broker struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	ch    chan TransitionEvent
	orgID string
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for one organization's events; an empty
// orgID receives everything. The channel is closed when ctx ends.
func (b *Broker) Subscribe(ctx context.Context, orgID string) <-chan TransitionEvent {
	ch := make(chan TransitionEvent, 16)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscriber{ch: ch, orgID: orgID}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to every matching subscriber without blocking.
func (b *Broker) Publish(evt TransitionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.orgID != "" && s.orgID != evt.OrgID {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// slow subscriber, drop
		}
	}
}

// subscribers reports the number of live subscriptions.
func (b *Broker) subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
