package watch

import (
	"sync"
	"time"
)

// PresenceGate reports whether the viewer should be considered present. A hidden tab
// does not make the viewer absent: audio-only listening is still watching.
type PresenceGate struct {
	mu          sync.Mutex
	idleTimeout time.Duration
	lastInputAt time.Time
}

func NewPresenceGate(idleTimeout time.Duration, now time.Time) *PresenceGate {
	return &PresenceGate{idleTimeout: idleTimeout, lastInputAt: now}
}

func (g *PresenceGate) RecordInput(at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if at.After(g.lastInputAt) {
		g.lastInputAt = at
	}
}

// Present is false only after sustained input silence while the player is not playing.
func (g *PresenceGate) Present(now time.Time, playing bool) bool {
	if playing {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idleTimeout <= 0 {
		return true
	}
	return now.Sub(g.lastInputAt) < g.idleTimeout
}
