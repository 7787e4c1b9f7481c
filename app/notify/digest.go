package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lysyi3m/tubewatch/app/metrics"
	"github.com/lysyi3m/tubewatch/app/timer"
)

// DigestEntry is one upload queued for the periodic digest.
type DigestEntry struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	SourceName  string     `json:"source_name"`
	ItemID      string     `json:"item_id"`
	Title       string     `json:"title"`
	PublishedAt time.Time  `json:"published_at"`
	Score       int        `json:"score"`
	Priority    string     `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// DigestStore keeps queued entries. Enqueue ignores an item already queued for its source.
type DigestStore interface {
	EnqueueDigest(ctx context.Context, entry DigestEntry) error
	PendingDigest(ctx context.Context, limit int) ([]DigestEntry, error)
	MarkDigestSent(ctx context.Context, ids []string, at time.Time) error
}

type Digest struct {
	store DigestStore
	clock timer.Clock
}

func NewDigest(store DigestStore, clock timer.Clock) *Digest {
	return &Digest{store: store, clock: clock}
}

func (d *Digest) Enqueue(ctx context.Context, n Notification) error {
	entry := DigestEntry{
		ID:          uuid.NewString(),
		SourceID:    n.SourceID,
		SourceName:  n.SourceName,
		ItemID:      n.ItemID,
		Title:       n.Title,
		PublishedAt: n.PublishedAt,
		Score:       n.Score,
		Priority:    n.Priority,
		CreatedAt:   d.clock.Now(),
	}
	err := d.store.EnqueueDigest(ctx, entry)
	metrics.RecordDelivery("digest", err)
	if err != nil {
		return fmt.Errorf("failed to enqueue digest entry: %w", err)
	}
	return nil
}

// Pending lists unsent entries, highest priority first.
func (d *Digest) Pending(ctx context.Context, limit int) ([]DigestEntry, error) {
	return d.store.PendingDigest(ctx, limit)
}

// Flush returns every pending entry and marks them sent.
func (d *Digest) Flush(ctx context.Context) ([]DigestEntry, error) {
	entries, err := d.store.PendingDigest(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending digest: %w", err)
	}
	if len(entries) == 0 {
		return entries, nil
	}

	now := d.clock.Now()
	ids := make([]string, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
		entries[i].SentAt = &now
	}

	if err := d.store.MarkDigestSent(ctx, ids, now); err != nil {
		return nil, fmt.Errorf("failed to mark digest sent: %w", err)
	}

	slog.Info("Digest flushed", "entries", len(entries))
	return entries, nil
}
