// Package score turns a source's watch history into a 0..100 relationship score.
package score

import (
	"fmt"
	"math"
	"time"

	"github.com/lysyi3m/tubewatch/app/source"
)

const (
	TrendGrowing   = "growing"
	TrendStable    = "stable"
	TrendDeclining = "declining"

	BadgeFavorite = "Favorite"
	BadgeRegular  = "Regular"
	BadgeCasual   = "Casual"
	BadgeNew      = "New"
	BadgeDormant  = "Dormant"
)

const day = 24 * time.Hour

type Weights struct {
	Frequency float64 `json:"frequency"`
	Recency   float64 `json:"recency"`
	Depth     float64 `json:"depth"`
	Loyalty   float64 `json:"loyalty"`
	Growth    float64 `json:"growth"`
}

func DefaultWeights() Weights {
	return Weights{Frequency: 0.30, Recency: 0.20, Depth: 0.20, Loyalty: 0.20, Growth: 0.10}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"frequency": w.Frequency,
		"recency":   w.Recency,
		"depth":     w.Depth,
		"loyalty":   w.Loyalty,
		"growth":    w.Growth,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%s weight must be non-negative, got %v", name, v)
		}
	}
	sum := w.Frequency + w.Recency + w.Depth + w.Loyalty + w.Growth
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("score weights must sum to 1, got %.4f", sum)
	}
	return nil
}

// Badges holds the lower bound of each badge band; below New is Dormant.
type Badges struct {
	Favorite int `json:"favorite"`
	Regular  int `json:"regular"`
	Casual   int `json:"casual"`
	New      int `json:"new"`
}

func DefaultBadges() Badges {
	return Badges{Favorite: 80, Regular: 60, Casual: 40, New: 20}
}

// Validate requires bands within 0..100, each strictly above the next.
func (b Badges) Validate() error {
	if b.New < 0 || b.Favorite > 100 {
		return fmt.Errorf("badge thresholds must lie within 0..100, got %+v", b)
	}
	if !(b.Favorite > b.Regular && b.Regular > b.Casual && b.Casual > b.New) {
		return fmt.Errorf("badge thresholds must descend favorite > regular > casual > new, got %+v", b)
	}
	return nil
}

func (b Badges) For(score int) string {
	switch {
	case score >= b.Favorite:
		return BadgeFavorite
	case score >= b.Regular:
		return BadgeRegular
	case score >= b.Casual:
		return BadgeCasual
	case score >= b.New:
		return BadgeNew
	default:
		return BadgeDormant
	}
}

// Snapshot is the read-only input of a computation.
type Snapshot struct {
	Count                  int
	FirstSeenAt            time.Time
	LastWatchAt            time.Time
	AverageWatchPercentage float64 // 0 when unknown
	ReturnVisits           int
	History                []time.Time
}

func SnapshotOf(src *source.Source) Snapshot {
	return Snapshot{
		Count:                  src.WatchCount,
		FirstSeenAt:            src.FirstSeenAt,
		LastWatchAt:            src.LastWatchAt(),
		AverageWatchPercentage: src.Patterns.AverageWatchPercentage,
		ReturnVisits:           src.ReturnVisits,
		History:                src.WatchHistory,
	}
}

type Factors struct {
	Frequency float64 `json:"frequency"`
	Recency   float64 `json:"recency"`
	Depth     float64 `json:"depth"`
	Loyalty   float64 `json:"loyalty"`
	Growth    float64 `json:"growth"`
}

type Result struct {
	Score      int       `json:"score"`
	Factors    Factors   `json:"factors"`
	Trend      string    `json:"trend"`
	Badge      string    `json:"badge"`
	Fallback   bool      `json:"fallback"`
	ComputedAt time.Time `json:"computed_at"`
}

type Engine struct {
	weights Weights
	badges  Badges
}

func NewEngine(weights Weights, badges Badges) *Engine {
	return &Engine{weights: weights, badges: badges}
}

func DefaultEngine() *Engine {
	return NewEngine(DefaultWeights(), DefaultBadges())
}

// Compute never fails: a snapshot missing required fields yields the fallback result.
func (e *Engine) Compute(snap Snapshot, now time.Time) Result {
	if !complete(snap) {
		return fallback(snap, now)
	}

	days := math.Max(now.Sub(snap.FirstSeenAt).Hours()/24, 0)
	f := Factors{
		Frequency: frequency(snap.Count, days),
		Recency:   recency(math.Max(now.Sub(snap.LastWatchAt).Hours()/24, 0)),
		Depth:     depth(snap.AverageWatchPercentage, snap.Count),
		Loyalty:   loyalty(snap.ReturnVisits, snap.Count, days),
		Growth:    growth(snap.History, snap.Count, days, now),
	}

	w := e.weights
	total := f.Frequency*w.Frequency +
		f.Recency*w.Recency +
		f.Depth*w.Depth +
		f.Loyalty*w.Loyalty +
		f.Growth*w.Growth
	s := int(math.Round(clamp(total, 0, 100)))

	return Result{
		Score:      s,
		Factors:    f,
		Trend:      trend(f.Growth),
		Badge:      e.badges.For(s),
		ComputedAt: now,
	}
}

func complete(snap Snapshot) bool {
	return snap.Count >= 0 &&
		!snap.FirstSeenAt.IsZero() &&
		!snap.LastWatchAt.IsZero() &&
		!math.IsNaN(snap.AverageWatchPercentage)
}

func fallback(snap Snapshot, now time.Time) Result {
	count := snap.Count
	if count < 0 {
		count = 0
	}
	return Result{
		Score:      min(count*8, 100),
		Trend:      TrendStable,
		Badge:      BadgeCasual,
		Fallback:   true,
		ComputedAt: now,
	}
}

func frequency(count int, days float64) float64 {
	if count == 0 {
		return 0
	}
	perDay := float64(count) / math.Max(days, 1)
	switch {
	case perDay >= 1:
		return 100
	case perDay >= 1.0/7:
		return lerp(perDay, 1.0/7, 1, 50, 100)
	case perDay >= 1.0/30:
		return lerp(perDay, 1.0/30, 1.0/7, 25, 50)
	default:
		return lerp(perDay, 0, 1.0/30, 0, 25)
	}
}

func recency(daysSince float64) float64 {
	switch {
	case daysSince <= 1:
		return 100
	case daysSince <= 7:
		return lerp(daysSince, 1, 7, 100, 70)
	case daysSince <= 30:
		return lerp(daysSince, 7, 30, 70, 30)
	case daysSince <= 90:
		return lerp(daysSince, 30, 90, 30, 0)
	default:
		return 0
	}
}

func depth(avgPercentage float64, count int) float64 {
	if avgPercentage > 0 {
		return clamp(avgPercentage, 0, 100)
	}
	switch {
	case count >= 10:
		return 70
	case count >= 5:
		return 60
	default:
		return 50
	}
}

// loyalty compares return visits to one visit per week since first seen.
func loyalty(visits, count int, days float64) float64 {
	if visits <= 0 {
		visits = count
	}
	expected := math.Max(days/7, 1)
	ratio := math.Min(float64(visits)/expected, 2)
	return ratio / 2 * 100
}

// growth compares the last 30 days' confirmation rate to the lifetime rate.
func growth(history []time.Time, count int, days float64, now time.Time) float64 {
	if count < 3 || len(history) < 3 {
		return 50
	}
	lifetime := float64(count) / math.Max(days, 1)
	if lifetime <= 0 {
		return 50
	}

	cutoff := now.Add(-30 * day)
	recent := 0
	for _, at := range history {
		if at.After(cutoff) && !at.After(now) {
			recent++
		}
	}
	ratio := (float64(recent) / math.Min(math.Max(days, 1), 30)) / lifetime

	switch {
	case ratio >= 1.5:
		return 80
	case ratio >= 1.2:
		return 65
	case ratio >= 0.8:
		return 50
	case ratio >= 0.5:
		return 35
	default:
		return 20
	}
}

func trend(growth float64) string {
	switch {
	case growth > 65:
		return TrendGrowing
	case growth < 35:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	if x1 == x0 {
		return y1
	}
	t := clamp((x-x0)/(x1-x0), 0, 1)
	return y0 + t*(y1-y0)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
