package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/tubewatch/app/feed"
	"github.com/lysyi3m/tubewatch/app/metrics"
	"github.com/lysyi3m/tubewatch/app/score"
	"github.com/lysyi3m/tubewatch/app/source"
	"github.com/lysyi3m/tubewatch/app/timer"
)

type SourceReader interface {
	GetSource(ctx context.Context, id string) (*source.Source, error)
}

// SnapshotStore returns a nil snapshot for a source never polled before.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, sourceID string) (*source.FeedSnapshot, error)
	SaveSnapshot(ctx context.Context, snap source.FeedSnapshot) error
}

type Scorer interface {
	Relationship(ctx context.Context, sourceID string) (score.Result, error)
}

type Pipeline struct {
	sources   SourceReader
	snapshots SnapshotStore
	scorer    Scorer
	notifier  Notifier
	digest    *Digest // nil disables the digest
	clock     timer.Clock
	grace     time.Duration
}

func NewPipeline(sources SourceReader, snapshots SnapshotStore, scorer Scorer, notifier Notifier, digest *Digest, clock timer.Clock, grace time.Duration) *Pipeline {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Pipeline{
		sources:   sources,
		snapshots: snapshots,
		scorer:    scorer,
		notifier:  notifier,
		digest:    digest,
		clock:     clock,
		grace:     grace,
	}
}

// Process records a polled entry and notifies when the decision table says so. The
// snapshot is written before any dispatch; a storage error aborts the cycle so the
// item is decided again next time instead of being announced twice.
func (p *Pipeline) Process(ctx context.Context, sourceID string, entry *feed.Entry) (Decision, error) {
	if entry == nil {
		return Decision{Reason: ReasonUnchanged}, nil
	}

	src, err := p.sources.GetSource(ctx, sourceID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load source %s: %w", sourceID, err)
	}

	prev, err := p.snapshots.GetSnapshot(ctx, sourceID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load feed snapshot for %s: %w", sourceID, err)
	}

	now := p.clock.Now()
	decision := Decide(src.IsApproved(), prev, *entry, now, p.grace)
	metrics.Decisions.WithLabelValues(string(decision.Reason)).Inc()

	err = p.snapshots.SaveSnapshot(ctx, source.FeedSnapshot{
		SourceID:                sourceID,
		LastSeenItemID:          entry.ItemID,
		LastSeenItemTitle:       entry.Title,
		LastSeenItemPublishedAt: entry.PublishedAt,
		LastPolledAt:            now,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to save feed snapshot for %s: %w", sourceID, err)
	}

	slog.Debug("Notification decision", "source", sourceID, "item", entry.ItemID, "reason", decision.Reason, "notify", decision.Notify)

	if decision.Notify {
		p.dispatch(ctx, src, entry)
	}
	return decision, nil
}

func (p *Pipeline) dispatch(ctx context.Context, src *source.Source, entry *feed.Entry) {
	result, err := p.scorer.Relationship(ctx, src.ID)
	if err != nil {
		slog.Warn("Relationship unavailable, using fallback", "source", src.ID, "error", err)
		result = score.Result{Score: src.Relationship.Score, Fallback: true}
	}

	n := Notification{
		SourceID:    src.ID,
		SourceName:  src.Name,
		ItemID:      entry.ItemID,
		Title:       entry.Title,
		PublishedAt: entry.PublishedAt,
		Score:       result.Score,
		Priority:    score.PriorityFor(result),
	}

	err = p.notifier.Notify(ctx, n)
	metrics.RecordDelivery(p.notifier.Name(), err)
	if err != nil {
		slog.Warn("Failed to dispatch notification", "source", src.ID, "item", entry.ItemID, "error", err)
	}

	if p.digest == nil {
		return
	}
	if err := p.digest.Enqueue(ctx, n); err != nil {
		slog.Warn("Failed to queue digest entry", "source", src.ID, "item", entry.ItemID, "error", err)
	}
}
