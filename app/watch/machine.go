package watch

import (
	"math"
	"time"
)

type Event interface {
	isEvent()
}

type Started struct {
	At             time.Time
	Position       float64
	Duration       float64
	Paused         bool
	AlreadyWatched bool
}

type Sampled struct {
	Sample
}

// Seeked is a direct seek reported by the host, evaluated without waiting for a tick.
type Seeked struct {
	At       time.Time
	Position float64
}

type PresenceLost struct {
	At time.Time
}

type PresenceRestored struct {
	Sample
}

type Stopped struct {
	At time.Time
}

func (Started) isEvent()          {}
func (Sampled) isEvent()          {}
func (Seeked) isEvent()           {}
func (PresenceLost) isEvent()     {}
func (PresenceRestored) isEvent() {}
func (Stopped) isEvent()          {}

type Outcome struct {
	Movement        Movement
	Confirmed       bool // emitted once, on the transition into StateConfirmed
	StopSampling    bool
	ClearNowPlaying bool
}

// Transition is the session transition function. It never mutates its input.
func Transition(cfg Config, s Session, ev Event) (Session, Outcome) {
	switch e := ev.(type) {
	case Started:
		return start(s, e)
	case Sampled:
		return sample(cfg, s, e.Sample)
	case Seeked:
		return seek(cfg, s, e)
	case PresenceLost:
		if s.State == StateSampling {
			s.Suspended = true
		}
		return s, Outcome{}
	case PresenceRestored:
		if s.State == StateSampling && s.Suspended {
			s.Suspended = false
			if math.Abs(e.Position-s.LastPosition) > cfg.MinSkipMagnitude {
				// moved while nobody was watching: continuity restarts here, unflagged
				s.ContinuousWatchStartPosition = e.Position
			}
			s = rebaseline(s, e.Sample)
		}
		return s, Outcome{}
	case Stopped:
		return stop(s)
	}
	return s, Outcome{}
}

// Genuine is the confirmation rule: no outstanding skip, enough continuous progress and
// enough accrued playback time.
func Genuine(cfg Config, s Session) bool {
	return !s.SkipDetected &&
		s.HighestContinuousProgress >= cfg.WatchThreshold &&
		s.AccumulatedWatchedSeconds >= cfg.MinWatchSeconds
}

func start(s Session, e Started) (Session, Outcome) {
	if s.State != StateIdle {
		return s, Outcome{}
	}

	s.StartedAt = e.At
	s.LastSampleAt = e.At
	s.LastPosition = finite(e.Position)
	s.ContinuousWatchStartPosition = s.LastPosition
	s.Duration = finite(e.Duration)
	s.Paused = e.Paused
	s.NowPlaying = !e.Paused

	if e.AlreadyWatched {
		s.State = StatePauseOnly
		return s, Outcome{StopSampling: true}
	}
	s.State = StateSampling
	return s, Outcome{}
}

func sample(cfg Config, s Session, cur Sample) (Session, Outcome) {
	switch s.State {
	case StatePauseOnly, StateConfirmed:
		done := cur.Paused || ended(s, cur)
		cleared := done && s.NowPlaying
		s.Paused = cur.Paused
		s.NowPlaying = !done
		if cur.Duration > 0 {
			s.Duration = cur.Duration
		}
		s = rebaseline(s, cur)
		return s, Outcome{ClearNowPlaying: cleared}
	case StateSampling:
	default:
		return s, Outcome{}
	}

	if s.Suspended {
		return s, Outcome{}
	}

	if cur.Duration > 0 {
		s.Duration = cur.Duration
	}

	mv, advance, elapsed := NewSkipDetector(cfg).Classify(s.LastPosition, s.LastSampleAt, cur)
	s.Paused = cur.Paused
	s.NowPlaying = !cur.Paused && !ended(s, cur)

	switch mv {
	case MovementPaused:
	case MovementForwardSkip:
		s.SkipDetected = true
		s.ContinuousWatchStartPosition = cur.Position
	case MovementRewind:
		s.SkipDetected = false
		s.ContinuousWatchStartPosition = cur.Position
	case MovementNormal:
		s.AccumulatedWatchedSeconds += math.Max(0, math.Min(advance, elapsed))
		s = advanceContinuous(s, cur.Position)
	}

	s = rebaseline(s, cur)

	out := Outcome{Movement: mv}
	if Genuine(cfg, s) {
		s.State = StateConfirmed
		out.Confirmed = true
		out.StopSampling = true
	}
	return s, out
}

func seek(cfg Config, s Session, e Seeked) (Session, Outcome) {
	if s.State != StateSampling || s.Suspended {
		return s, Outcome{}
	}

	elapsed := math.Max(0, e.At.Sub(s.LastSampleAt).Seconds())
	pos := finite(e.Position)
	mv := NewSkipDetector(cfg).Magnitude(pos-s.LastPosition, elapsed)

	switch mv {
	case MovementForwardSkip:
		s.SkipDetected = true
	case MovementRewind:
		s.SkipDetected = false
	default:
		return s, Outcome{Movement: mv}
	}

	s.ContinuousWatchStartPosition = pos
	s.LastPosition = pos
	s.LastSampleAt = e.At
	return s, Outcome{Movement: mv}
}

func stop(s Session) (Session, Outcome) {
	s.NowPlaying = false
	switch s.State {
	case StateConfirmed, StateAbandoned:
		return s, Outcome{StopSampling: true, ClearNowPlaying: true}
	default:
		s.State = StateAbandoned
		return s, Outcome{StopSampling: true, ClearNowPlaying: true}
	}
}

func advanceContinuous(s Session, position float64) Session {
	if s.SkipDetected || s.Duration <= 0 {
		return s
	}
	progress := (position - s.ContinuousWatchStartPosition) / s.Duration
	if progress > s.HighestContinuousProgress {
		s.HighestContinuousProgress = progress
	}
	return s
}

func rebaseline(s Session, cur Sample) Session {
	s.LastPosition = cur.Position
	s.LastSampleAt = cur.At
	return s
}

func ended(s Session, cur Sample) bool {
	d := cur.Duration
	if d <= 0 {
		d = s.Duration
	}
	return d > 0 && cur.Position >= d-0.5
}
