package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/tubewatch/app/notify"
)

type DigestRepository struct {
	db *DB
}

func NewDigestRepository(db *DB) *DigestRepository {
	return &DigestRepository{db: db}
}

// EnqueueDigest ignores an item already queued for the same source.
func (r *DigestRepository) EnqueueDigest(ctx context.Context, e notify.DigestEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO digest_entries (id, source_id, source_name, item_id, title, published_at, score, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, item_id) DO NOTHING
	`, e.ID, e.SourceID, e.SourceName, e.ItemID, e.Title, formatTime(e.PublishedAt), e.Score, e.Priority, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to enqueue digest entry %s/%s: %w", e.SourceID, e.ItemID, err)
	}
	return nil
}

// PendingDigest lists unsent entries by priority, then oldest first. A limit of 0 returns all.
func (r *DigestRepository) PendingDigest(ctx context.Context, limit int) ([]notify.DigestEntry, error) {
	query := `
		SELECT id, source_id, source_name, item_id, title, published_at, score, priority, created_at, sent_at
		FROM digest_entries
		WHERE sent_at IS NULL
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, created_at, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending digest: %w", err)
	}
	defer rows.Close()

	entries := []notify.DigestEntry{}
	for rows.Next() {
		var e notify.DigestEntry
		var published, created string
		var sent sql.NullString
		if err := rows.Scan(&e.ID, &e.SourceID, &e.SourceName, &e.ItemID, &e.Title, &published, &e.Score, &e.Priority, &created, &sent); err != nil {
			return nil, fmt.Errorf("failed to scan digest entry: %w", err)
		}
		if e.PublishedAt, err = parseTime(published); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if e.SentAt, err = parseNullTime(sent); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating digest entries: %w", err)
	}
	return entries, nil
}

func (r *DigestRepository) MarkDigestSent(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTime(at))
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	_, err := r.db.ExecContext(ctx, `UPDATE digest_entries SET sent_at = ? WHERE sent_at IS NULL AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark %d digest entries sent: %w", len(ids), err)
	}
	return nil
}

func (r *DigestRepository) GetDigestStats(ctx context.Context) (pending int, sent int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN sent_at IS NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN sent_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM digest_entries
	`).Scan(&pending, &sent)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get digest stats: %w", err)
	}
	return pending, sent, nil
}
