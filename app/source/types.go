// Package source holds the per-channel aggregate that genuine watches accumulate into.
package source

import (
	"time"
)

type ApprovalState string

const (
	StateTracking ApprovalState = "tracking"
	StateReady    ApprovalState = "ready"
	StateApproved ApprovalState = "approved"
	StateDenied   ApprovalState = "denied"
)

const (
	DefaultWatchedCap     = 500
	DefaultHistoryCap     = 200
	DefaultReadyThreshold = 3
)

type Item struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

type Relationship struct {
	Score             int        `json:"score"`
	Trend             string     `json:"trend"`
	Badge             string     `json:"badge"`
	LastScoreUpdateAt *time.Time `json:"last_score_update_at,omitempty"`
}

type Patterns struct {
	WatchHours             []int   `json:"watch_hours"` // sorted set of 0..23
	WatchDays              []int   `json:"watch_days"`  // sorted set of 0..6, Sunday = 0
	AverageWatchPercentage float64 `json:"average_watch_percentage"`
	SessionCount           int     `json:"session_count"`
}

type Source struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Handle        string        `json:"handle,omitempty"`
	Enabled       bool          `json:"enabled"`
	FirstSeenAt   time.Time     `json:"first_seen_at"`
	ApprovalState ApprovalState `json:"approval_state"`
	ApprovedAt    *time.Time    `json:"approved_at,omitempty"`

	WatchCount     int         `json:"watch_count"`
	ReturnVisits   int         `json:"return_visits"`
	WatchedItemIDs []string    `json:"watched_item_ids"` // oldest first
	WatchHistory   []time.Time `json:"watch_history"`    // oldest first
	LastItem       *Item       `json:"last_item,omitempty"`

	Relationship Relationship `json:"relationship"`
	Patterns     Patterns     `json:"patterns"`
}

// WatchConfirmed is the only event that mutates a Source's watch aggregate.
type WatchConfirmed struct {
	SourceID        string
	SourceName      string
	ItemID          string
	ItemTitle       string
	WatchPercentage float64
	ConfirmedAt     time.Time
}

// FeedSnapshot is the last item seen in a source's feed.
type FeedSnapshot struct {
	SourceID                string    `json:"source_id"`
	LastSeenItemID          string    `json:"last_seen_item_id"`
	LastSeenItemTitle       string    `json:"last_seen_item_title"`
	LastSeenItemPublishedAt time.Time `json:"last_seen_item_published_at"`
	LastPolledAt            time.Time `json:"last_polled_at"`
}

// Limits bounds the aggregate's collections and sets the approval threshold.
type Limits struct {
	WatchedCap     int
	HistoryCap     int
	ReadyThreshold int
}

func DefaultLimits() Limits {
	return Limits{
		WatchedCap:     DefaultWatchedCap,
		HistoryCap:     DefaultHistoryCap,
		ReadyThreshold: DefaultReadyThreshold,
	}
}
