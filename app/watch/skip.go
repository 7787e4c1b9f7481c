package watch

import (
	"time"
)

type Movement int

const (
	MovementNormal Movement = iota
	MovementForwardSkip
	MovementRewind
	MovementPaused
)

func (m Movement) String() string {
	switch m {
	case MovementNormal:
		return "normal"
	case MovementForwardSkip:
		return "forward_skip"
	case MovementRewind:
		return "rewind"
	case MovementPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// SkipDetector classifies the move between two consecutive positions.
type SkipDetector struct {
	slack     float64
	minSkip   float64
	minRewind float64
}

func NewSkipDetector(cfg Config) SkipDetector {
	return SkipDetector{
		slack:     cfg.SkipSlack,
		minSkip:   cfg.MinSkipMagnitude,
		minRewind: cfg.RewindMagnitude,
	}
}

// Classify returns the movement together with the position advance and the wall-clock
// seconds elapsed since the previous sample. Jumps are classified whether or not the
// player is paused; a paused sample only replaces a normal move.
func (d SkipDetector) Classify(lastPosition float64, lastAt time.Time, cur Sample) (Movement, float64, float64) {
	advance := cur.Position - lastPosition
	elapsed := cur.At.Sub(lastAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	mv := d.Magnitude(advance, elapsed)
	if mv == MovementNormal && cur.Paused {
		mv = MovementPaused
	}
	return mv, advance, elapsed
}

// Magnitude applies only the skip/rewind thresholds.
func (d SkipDetector) Magnitude(advance, elapsed float64) Movement {
	switch {
	case advance > elapsed+d.slack && advance > d.minSkip:
		return MovementForwardSkip
	case advance < -d.minRewind:
		return MovementRewind
	default:
		return MovementNormal
	}
}
