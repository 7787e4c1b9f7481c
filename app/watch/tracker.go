package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/tubewatch/app/metrics"
	"github.com/lysyi3m/tubewatch/app/source"
	"github.com/lysyi3m/tubewatch/app/timer"
)

var ErrNoSession = errors.New("no active watch session")

// Confirmer persists a genuine watch. Implementations must reject an item already
// recorded for the source, since a session can be recreated after a restart.
type Confirmer interface {
	ConfirmWatch(ctx context.Context, ev source.WatchConfirmed) error
}

// WatchedChecker answers whether an item already has a confirmed watch.
type WatchedChecker interface {
	HasWatched(ctx context.Context, sourceID, itemID string) (bool, error)
}

type StartRequest struct {
	SourceID   string
	SourceName string
	ItemID     string
	ItemTitle  string
	Player     Player
}

type tracked struct {
	session Session
	sampler *ProgressSampler
	gate    *PresenceGate
	task    timer.Task
}

// Tracker owns at most one session per page context (client id).
type Tracker struct {
	cfg       Config
	scheduler timer.Scheduler
	confirmer Confirmer
	checker   WatchedChecker
	ctx       context.Context

	mu       sync.Mutex
	sessions map[string]*tracked
}

func NewTracker(ctx context.Context, cfg Config, scheduler timer.Scheduler, confirmer Confirmer, checker WatchedChecker) *Tracker {
	return &Tracker{
		cfg:       cfg,
		scheduler: scheduler,
		confirmer: confirmer,
		checker:   checker,
		ctx:       ctx,
		sessions:  make(map[string]*tracked),
	}
}

// Start begins observing an item for a client, abandoning whatever that client was
// watching before.
func (t *Tracker) Start(clientID string, req StartRequest) (Session, error) {
	if clientID == "" || req.SourceID == "" || req.ItemID == "" {
		return Session{}, fmt.Errorf("client, source and item ids are required")
	}
	if req.Player == nil {
		return Session{}, fmt.Errorf("player is required")
	}

	watched, err := t.checker.HasWatched(t.ctx, req.SourceID, req.ItemID)
	if err != nil {
		// the store guards against duplicates on confirm, so sampling is still safe
		slog.Warn("Failed to check watch history, sampling anyway", "source", req.SourceID, "item", req.ItemID, "error", err)
	}

	now := t.scheduler.Now()
	sampler := NewProgressSampler(req.Player, t.scheduler)
	first := sampler.Read()

	session := Session{
		SourceID:   req.SourceID,
		SourceName: req.SourceName,
		ItemID:     req.ItemID,
		ItemTitle:  req.ItemTitle,
	}
	session, _ = Transition(t.cfg, session, Started{
		At:             now,
		Position:       first.Position,
		Duration:       first.Duration,
		Paused:         first.Paused,
		AlreadyWatched: watched,
	})

	t.mu.Lock()
	t.discardLocked(clientID)
	tr := &tracked{
		session: session,
		sampler: sampler,
		gate:    NewPresenceGate(t.cfg.IdleTimeout, now),
	}
	t.sessions[clientID] = tr
	if session.State == StateSampling {
		tr.task = t.scheduler.Every(t.cfg.SampleInterval, func() { t.tick(clientID, tr) })
		metrics.ActiveSessions.Inc()
	}
	t.mu.Unlock()

	slog.Debug("Watch session started", "client", clientID, "source", req.SourceID, "item", req.ItemID, "state", session.State.String())
	return session, nil
}

// Seek feeds a host-reported seek straight into the machine.
func (t *Tracker) Seek(clientID string, position float64) (Session, error) {
	return t.apply(clientID, func(tr *tracked) Event {
		return Seeked{At: t.scheduler.Now(), Position: position}
	})
}

// Observe reads the player once for a session that is no longer sampled on a timer, so
// pause and end still clear the now-playing state of watched or confirmed items.
// Sampling sessions are left to their ticks.
func (t *Tracker) Observe(clientID string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.sessions[clientID]
	if !ok {
		return Session{}, ErrNoSession
	}
	if tr.session.State == StatePauseOnly || tr.session.State == StateConfirmed {
		t.applyLocked(clientID, tr, Sampled{Sample: tr.sampler.Read()})
	}
	return tr.session, nil
}

func (t *Tracker) Stop(clientID string) (Session, error) {
	t.mu.Lock()
	tr, ok := t.sessions[clientID]
	if !ok {
		t.mu.Unlock()
		return Session{}, ErrNoSession
	}
	s, _ := Transition(t.cfg, tr.session, Stopped{At: t.scheduler.Now()})
	tr.session = s
	t.discardLocked(clientID)
	t.mu.Unlock()
	return s, nil
}

func (t *Tracker) RecordInput(clientID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.sessions[clientID]
	if !ok {
		return ErrNoSession
	}
	tr.gate.RecordInput(t.scheduler.Now())
	return nil
}

func (t *Tracker) SetHidden(clientID string, hidden bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.sessions[clientID]
	if !ok {
		return ErrNoSession
	}
	tr.session.Hidden = hidden
	return nil
}

func (t *Tracker) Session(clientID string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.sessions[clientID]
	if !ok {
		return Session{}, false
	}
	return tr.session, true
}

// Active returns the number of sessions still sampling.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, tr := range t.sessions {
		if tr.session.State == StateSampling {
			n++
		}
	}
	return n
}

// StopAll abandons every session; used on shutdown.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for clientID := range t.sessions {
		t.discardLocked(clientID)
	}
}

func (t *Tracker) apply(clientID string, build func(*tracked) Event) (Session, error) {
	t.mu.Lock()
	tr, ok := t.sessions[clientID]
	if !ok {
		t.mu.Unlock()
		return Session{}, ErrNoSession
	}
	confirmed := t.applyLocked(clientID, tr, build(tr))
	s := tr.session
	t.mu.Unlock()

	if confirmed {
		t.confirm(s)
	}
	return s, nil
}

func (t *Tracker) tick(clientID string, tr *tracked) {
	t.mu.Lock()
	if t.sessions[clientID] != tr {
		t.mu.Unlock()
		return
	}

	cur := tr.sampler.Read()
	present := tr.gate.Present(cur.At, !cur.Paused)

	var ev Event
	switch {
	case !present && !tr.session.Suspended:
		ev = PresenceLost{At: cur.At}
		slog.Debug("Viewer idle, suspending sampling", "client", clientID, "item", tr.session.ItemID)
	case present && tr.session.Suspended:
		ev = PresenceRestored{Sample: cur}
		slog.Debug("Viewer back, resuming sampling", "client", clientID, "item", tr.session.ItemID)
	case tr.session.Suspended:
		t.mu.Unlock()
		return
	default:
		ev = Sampled{Sample: cur}
	}

	confirmed := t.applyLocked(clientID, tr, ev)
	s := tr.session
	t.mu.Unlock()

	if confirmed {
		t.confirm(s)
	}
}

// applyLocked runs one transition and handles timer bookkeeping. It reports whether
// this transition produced the session's confirmation.
func (t *Tracker) applyLocked(clientID string, tr *tracked, ev Event) bool {
	prev := tr.session.State
	s, out := Transition(t.cfg, tr.session, ev)
	tr.session = s

	if out.Movement != MovementNormal {
		metrics.Movements.WithLabelValues(out.Movement.String()).Inc()
	}
	if out.Movement == MovementForwardSkip {
		slog.Debug("Forward skip detected", "client", clientID, "item", s.ItemID, "position", s.LastPosition)
	}
	if out.ClearNowPlaying {
		slog.Debug("Now playing cleared", "client", clientID, "item", s.ItemID, "state", s.State.String())
	}

	if out.StopSampling && tr.task != nil {
		tr.task.Cancel()
		tr.task = nil
		if prev == StateSampling {
			metrics.ActiveSessions.Dec()
		}
	}

	return out.Confirmed
}

func (t *Tracker) discardLocked(clientID string) {
	tr, ok := t.sessions[clientID]
	if !ok {
		return
	}
	if tr.task != nil {
		tr.task.Cancel()
		tr.task = nil
		metrics.ActiveSessions.Dec()
	}
	if tr.session.State == StateSampling || tr.session.State == StateAbandoned {
		metrics.SessionOutcomes.WithLabelValues(StateAbandoned.String()).Inc()
	}
	delete(t.sessions, clientID)
}

func (t *Tracker) confirm(s Session) {
	metrics.SessionOutcomes.WithLabelValues(StateConfirmed.String()).Inc()

	ev := source.WatchConfirmed{
		SourceID:        s.SourceID,
		SourceName:      s.SourceName,
		ItemID:          s.ItemID,
		ItemTitle:       s.ItemTitle,
		WatchPercentage: s.HighestContinuousProgress * 100,
		ConfirmedAt:     s.LastSampleAt,
	}

	ctx, cancel := context.WithTimeout(t.ctx, 10*time.Second)
	defer cancel()

	err := t.confirmer.ConfirmWatch(ctx, ev)
	switch {
	case errors.Is(err, source.ErrAlreadyWatched):
		metrics.InvariantViolations.WithLabelValues("duplicate_confirmation").Inc()
		slog.Error("Duplicate watch confirmation rejected", "source", s.SourceID, "item", s.ItemID, "error", err)
	case err != nil:
		slog.Warn("Failed to persist watch confirmation", "source", s.SourceID, "item", s.ItemID, "error", err)
	default:
		slog.Info("Watch confirmed",
			"source", s.SourceID,
			"item", s.ItemID,
			"progress", s.HighestContinuousProgress,
			"watched_seconds", s.AccumulatedWatchedSeconds)
	}
}
