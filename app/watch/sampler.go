package watch

import (
	"math"
	"sync"

	"github.com/lysyi3m/tubewatch/app/timer"
)

// Player is the playback source a sampler reads.
type Player interface {
	CurrentPosition() float64
	Duration() float64
	IsPaused() bool
}

type ProgressSampler struct {
	player Player
	clock  timer.Clock
}

func NewProgressSampler(player Player, clock timer.Clock) *ProgressSampler {
	return &ProgressSampler{player: player, clock: clock}
}

func (p *ProgressSampler) Read() Sample {
	return Sample{
		At:       p.clock.Now(),
		Position: finite(p.player.CurrentPosition()),
		Duration: finite(p.player.Duration()),
		Paused:   p.player.IsPaused(),
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// RemotePlayer is a Player whose state is pushed by the host page.
type RemotePlayer struct {
	mu       sync.RWMutex
	position float64
	duration float64
	paused   bool
}

func NewRemotePlayer(position, duration float64, paused bool) *RemotePlayer {
	return &RemotePlayer{position: position, duration: duration, paused: paused}
}

func (r *RemotePlayer) Update(position, duration float64, paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.position = position
	if duration > 0 {
		r.duration = duration
	}
	r.paused = paused
}

func (r *RemotePlayer) CurrentPosition() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.position
}

func (r *RemotePlayer) Duration() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.duration
}

func (r *RemotePlayer) IsPaused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}
