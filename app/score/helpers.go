package score

import (
	"math"
	"slices"
	"time"

	"github.com/lysyi3m/tubewatch/app/source"
)

const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Similarity rates how alike two viewing habits are, from 0 to 1. Hours weigh 0.4,
// weekdays 0.3 and closeness of average watch depth 0.3.
func Similarity(a, b source.Patterns) float64 {
	hours := jaccard(a.WatchHours, b.WatchHours)
	days := jaccard(a.WatchDays, b.WatchDays)

	depth := 0.0
	if a.SessionCount > 0 && b.SessionCount > 0 {
		depth = 1 - math.Abs(a.AverageWatchPercentage-b.AverageWatchPercentage)/100
	}

	return clamp(0.4*hours+0.3*days+0.3*depth, 0, 1)
}

func jaccard(a, b []int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for _, v := range a {
		if slices.Contains(b, v) {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// IsLikelyWatchTime reports whether t falls in an hour (and weekday, when known) the
// viewer has watched this source before.
func IsLikelyWatchTime(p source.Patterns, t time.Time) bool {
	if !slices.Contains(p.WatchHours, t.Hour()) {
		return false
	}
	return len(p.WatchDays) == 0 || slices.Contains(p.WatchDays, int(t.Weekday()))
}

// NextLikelyWatch returns the start of the next hour within a week that matches the
// viewer's habits.
func NextLikelyWatch(p source.Patterns, now time.Time) (time.Time, bool) {
	if len(p.WatchHours) == 0 {
		return time.Time{}, false
	}
	t := now.Truncate(time.Hour).Add(time.Hour)
	for i := 0; i < 7*24; i++ {
		if IsLikelyWatchTime(p, t) {
			return t, true
		}
		t = t.Add(time.Hour)
	}
	return time.Time{}, false
}

// PriorityFor ranks a digest entry by relationship strength.
func PriorityFor(r Result) string {
	switch {
	case r.Fallback:
		return PriorityNormal
	case r.Score >= 80:
		return PriorityHigh
	case r.Score >= 50:
		return PriorityNormal
	default:
		return PriorityLow
	}
}
