package narrative

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"grantflow.org/internal/obs"
)

// Guard stops calling a narrative provider after maxFailures consecutive
// failures. While it is open every call returns ErrDisabled and reports fall
// back to template text. Once cooldown has passed a single trial call goes
// through: success closes the guard, failure reopens it for another cooldown.
type Guard struct {
	mu          sync.Mutex
	maxFailures int
	cooldown    time.Duration
	failures    int
	openUntil   time.Time
	trialing    bool
	now         func() time.Time
}

// NewGuard returns a guard. maxFailures <= 0 disables it.
func NewGuard(maxFailures int, cooldown time.Duration) *Guard {
	return &Guard{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Do runs call unless the guard is open. A caller that gives up (context
// canceled) is not held against the provider; a missed deadline is.
func (g *Guard) Do(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
	if g == nil || g.maxFailures <= 0 {
		return call(ctx)
	}
	trial, ok := g.admit()
	if !ok {
		return "", ErrDisabled
	}
	text, err := call(ctx)
	g.settle(trial, err)
	return text, err
}

func (g *Guard) admit() (trial, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openUntil.IsZero() {
		return false, true
	}
	if g.trialing || g.now().Before(g.openUntil) {
		return false, false
	}
	g.trialing = true
	return true, true
}

func (g *Guard) settle(trial bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if trial {
		g.trialing = false
	}
	switch {
	case err == nil:
		g.failures = 0
		g.openUntil = time.Time{}
	case errors.Is(err, context.Canceled):
	default:
		g.failures++
		if trial || g.failures >= g.maxFailures {
			g.openUntil = g.now().Add(g.cooldown)
			obs.Logger().Warn("narrative provider disabled",
				zap.Int("consecutive_failures", g.failures),
				zap.Time("until", g.openUntil),
				zap.Error(err),
			)
		}
	}
}
