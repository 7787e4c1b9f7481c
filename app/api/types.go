package api

import (
	"context"
	"time"

	"github.com/lysyi3m/tubewatch/app/feed"
	"github.com/lysyi3m/tubewatch/app/notify"
	"github.com/lysyi3m/tubewatch/app/score"
	"github.com/lysyi3m/tubewatch/app/source"
	"github.com/lysyi3m/tubewatch/app/tasks"
	"github.com/lysyi3m/tubewatch/app/timer"
	"github.com/lysyi3m/tubewatch/app/watch"
)

type SourceStore interface {
	tasks.SourceStore
	GetSource(ctx context.Context, id string) (*source.Source, error)
	ListSources(ctx context.Context) ([]*source.Source, error)
	GetSourceStats(ctx context.Context) (map[string]int, error)
	Approve(ctx context.Context, id string) (*source.Source, error)
	Deny(ctx context.Context, id string) (*source.Source, error)
}

type ScoreService interface {
	Relationship(ctx context.Context, sourceID string) (score.Result, error)
	Similar(ctx context.Context, sourceID string, limit int) ([]score.Match, error)
}

type DigestQueue interface {
	Pending(ctx context.Context, limit int) ([]notify.DigestEntry, error)
	Flush(ctx context.Context) ([]notify.DigestEntry, error)
}

type DigestCounter interface {
	GetDigestStats(ctx context.Context) (pending int, sent int, err error)
}

type HealthChecker interface {
	Health(ctx context.Context) map[string]interface{}
}

// HealthFunc adapts a plain function to HealthChecker.
type HealthFunc func(ctx context.Context) map[string]interface{}

func (f HealthFunc) Health(ctx context.Context) map[string]interface{} {
	return f(ctx)
}

// Deps are the collaborators served over HTTP. Digest, DigestStats, ConfigCache,
// Scheduler and Resolver may be nil; routes that need them answer 503.
type Deps struct {
	Tracker     *watch.Tracker
	Sources     SourceStore
	Scores      ScoreService
	Digest      DigestQueue
	DigestStats DigestCounter
	RSS         *notify.RSSWriter
	ConfigCache *feed.ConfigCache
	Scheduler   tasks.TaskSchedulerInterface
	Resolver    tasks.Resolver
	Health      map[string]HealthChecker
	Clock       timer.Clock
	Version     string
}

type Handler struct {
	Deps

	players *playerRegistry
}

type startRequest struct {
	SourceID   string  `json:"source_id" binding:"required"`
	SourceName string  `json:"source_name"`
	ItemID     string  `json:"item_id" binding:"required"`
	ItemTitle  string  `json:"item_title"`
	Position   float64 `json:"position"`
	Duration   float64 `json:"duration"`
	Paused     bool    `json:"paused"`
}

type stateRequest struct {
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Paused   bool    `json:"paused"`
}

type seekRequest struct {
	Position float64 `json:"position"`
}

type visibilityRequest struct {
	Hidden bool `json:"hidden"`
}

type sessionResponse struct {
	SourceID                  string    `json:"source_id"`
	ItemID                    string    `json:"item_id"`
	State                     string    `json:"state"`
	StartedAt                 time.Time `json:"started_at"`
	Position                  float64   `json:"position"`
	Duration                  float64   `json:"duration"`
	Progress                  float64   `json:"progress"`
	HighestContinuousProgress float64   `json:"highest_continuous_progress"`
	AccumulatedWatchedSeconds float64   `json:"accumulated_watched_seconds"`
	SkipDetected              bool      `json:"skip_detected"`
	Suspended                 bool      `json:"suspended"`
	Paused                    bool      `json:"paused"`
	NowPlaying                bool      `json:"now_playing"`
	Hidden                    bool      `json:"hidden"`
}

func newSessionResponse(s watch.Session) sessionResponse {
	return sessionResponse{
		SourceID:                  s.SourceID,
		ItemID:                    s.ItemID,
		State:                     s.State.String(),
		StartedAt:                 s.StartedAt,
		Position:                  s.LastPosition,
		Duration:                  s.Duration,
		Progress:                  s.Progress(),
		HighestContinuousProgress: s.HighestContinuousProgress,
		AccumulatedWatchedSeconds: s.AccumulatedWatchedSeconds,
		SkipDetected:              s.SkipDetected,
		Suspended:                 s.Suspended,
		Paused:                    s.Paused,
		NowPlaying:                s.NowPlaying,
		Hidden:                    s.Hidden,
	}
}

type scoreResponse struct {
	score.Result
	Priority        string     `json:"priority"`
	LikelyWatchNow  bool       `json:"likely_watch_now"`
	NextLikelyWatch *time.Time `json:"next_likely_watch,omitempty"`
}
