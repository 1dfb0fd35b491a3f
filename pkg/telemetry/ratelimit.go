package telemetry

import (
	"sync"
	"time"
)

// cooldownGate tracks, per event name, the next time a send may be initiated.
// State lives for the dispatcher's lifetime only and is never persisted.
type cooldownGate struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	next map[EventName]time.Time
}

func newCooldownGate(window time.Duration) *cooldownGate {
	return &cooldownGate{
		window: window,
		now:    time.Now,
		next:   make(map[EventName]time.Time),
	}
}

// reserve reports whether a send may be initiated for name right now, and if
// so books the next window immediately. Check and reservation happen under
// one lock, so two concurrent calls for the same name cannot both pass within
// a single window. A reservation is never released early: a failed send still
// blocks retries until the window elapses.
func (g *cooldownGate) reserve(name EventName) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Before(g.next[name]) {
		return false
	}

	g.next[name] = now.Add(g.window)
	return true
}
