package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lysyi3m/tubewatch/app/source"
)

type SnapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// GetSnapshot returns nil without error for a source that was never polled.
func (r *SnapshotRepository) GetSnapshot(ctx context.Context, sourceID string) (*source.FeedSnapshot, error) {
	var snap source.FeedSnapshot
	var published, polled string

	err := r.db.QueryRowContext(ctx, `
		SELECT source_id, last_seen_item_id, last_seen_item_title, last_seen_item_published_at, last_polled_at
		FROM feed_snapshots WHERE source_id = ?
	`, sourceID).Scan(&snap.SourceID, &snap.LastSeenItemID, &snap.LastSeenItemTitle, &published, &polled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot for %s: %w", sourceID, err)
	}

	if snap.LastSeenItemPublishedAt, err = parseTime(published); err != nil {
		return nil, err
	}
	if snap.LastPolledAt, err = parseTime(polled); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snap source.FeedSnapshot) error {
	if snap.SourceID == "" {
		return fmt.Errorf("snapshot source id is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_snapshots (source_id, last_seen_item_id, last_seen_item_title, last_seen_item_published_at, last_polled_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			last_seen_item_id = excluded.last_seen_item_id,
			last_seen_item_title = excluded.last_seen_item_title,
			last_seen_item_published_at = excluded.last_seen_item_published_at,
			last_polled_at = excluded.last_polled_at
	`, snap.SourceID, snap.LastSeenItemID, snap.LastSeenItemTitle,
		formatTime(snap.LastSeenItemPublishedAt), formatTime(snap.LastPolledAt))
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", snap.SourceID, err)
	}
	return nil
}
