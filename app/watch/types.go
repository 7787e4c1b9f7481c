// Package watch decides when a viewing session counts as a genuine watch.
//
// A Session is a plain value; Transition applies one Event and reports an Outcome.
// Tracker drives sessions from a timer.Scheduler and a Player.
package watch

import (
	"time"
)

type State int

const (
	StateIdle State = iota
	StateSampling
	StatePauseOnly
	StateConfirmed
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StatePauseOnly:
		return "pause_only"
	case StateConfirmed:
		return "confirmed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further sampling can happen in this state.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateAbandoned
}

type Config struct {
	WatchThreshold   float64       // fraction of duration watched continuously
	MinWatchSeconds  float64       // seconds of accrued playback
	SkipSlack        float64       // seconds of tolerance before an advance counts as a skip
	MinSkipMagnitude float64       // seconds
	RewindMagnitude  float64       // seconds
	SampleInterval   time.Duration //
	IdleTimeout      time.Duration // input silence after which a non-playing viewer is absent
}

func DefaultConfig() Config {
	return Config{
		WatchThreshold:   0.5,
		MinWatchSeconds:  30,
		SkipSlack:        2,
		MinSkipMagnitude: 5,
		RewindMagnitude:  5,
		SampleInterval:   2 * time.Second,
		IdleTimeout:      5 * time.Minute,
	}
}

// Sample is a single read of the playback source.
type Sample struct {
	At       time.Time
	Position float64
	Duration float64
	Paused   bool
}

type Session struct {
	SourceID   string
	SourceName string
	ItemID     string
	ItemTitle  string
	State      State

	StartedAt                    time.Time
	LastSampleAt                 time.Time
	LastPosition                 float64
	Duration                     float64
	ContinuousWatchStartPosition float64
	HighestContinuousProgress    float64
	AccumulatedWatchedSeconds    float64
	SkipDetected                 bool
	Suspended                    bool
	Paused                       bool
	NowPlaying                   bool // cleared once playback pauses or ends
	Hidden                       bool // reported by the host; never suspends sampling
}

// Key identifies a session for at-most-once confirmation.
func (s Session) Key() string {
	return s.SourceID + "/" + s.ItemID
}

// Progress is the raw position as a fraction of duration.
func (s Session) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return s.LastPosition / s.Duration
}
