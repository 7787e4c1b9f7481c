package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/lysyi3m/tubewatch/app/source"
	"github.com/lysyi3m/tubewatch/app/timer"
)

// SourceRepository handles database operations for sources. Writes to one source are
// serialised and run as read-merge-write inside a transaction.
type SourceRepository struct {
	db     *DB
	limits source.Limits
	clock  timer.Clock

	locks sync.Map // source id -> *sync.Mutex
}

func NewSourceRepository(db *DB, limits source.Limits, clock timer.Clock) *SourceRepository {
	return &SourceRepository{db: db, limits: limits, clock: clock}
}

const sourceColumns = `id, name, handle, enabled, first_seen_at, approval_state, approved_at,
	watch_count, return_visits, watched_item_ids, watch_history, last_item, relationship, patterns`

type rowScanner interface {
	Scan(dest ...any) error
}

// GetSource returns ErrNotFound for an unknown id.
func (r *SourceRepository) GetSource(ctx context.Context, id string) (*source.Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source %s: %w", id, err)
	}
	return src, nil
}

// UpsertSource applies mutate to the stored source, creating it first when missing. A
// mutation error rolls back and is returned unchanged.
func (r *SourceRepository) UpsertSource(ctx context.Context, id string, mutate func(*source.Source) error) (*source.Source, error) {
	return r.modify(ctx, id, true, mutate)
}

// UpdateSource is UpsertSource for an existing source only.
func (r *SourceRepository) UpdateSource(ctx context.Context, id string, mutate func(*source.Source) error) (*source.Source, error) {
	return r.modify(ctx, id, false, mutate)
}

func (r *SourceRepository) modify(ctx context.Context, id string, create bool, mutate func(*source.Source) error) (*source.Source, error) {
	if id == "" {
		return nil, fmt.Errorf("source id is required")
	}

	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	switch {
	case errors.Is(err, sql.ErrNoRows) && create:
		src = source.New(id, "", r.clock.Now())
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("failed to load source %s: %w", id, err)
	}

	if err := mutate(src); err != nil {
		return nil, err
	}

	if err := r.save(ctx, tx, src); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit source %s: %w", id, err)
	}
	return src, nil
}

// ConfirmWatch records a genuine watch. A repeated item is rejected with
// source.ErrAlreadyWatched.
func (r *SourceRepository) ConfirmWatch(ctx context.Context, ev source.WatchConfirmed) error {
	_, err := r.UpsertSource(ctx, ev.SourceID, func(src *source.Source) error {
		return src.RecordWatch(ev, r.limits)
	})
	return err
}

func (r *SourceRepository) HasWatched(ctx context.Context, sourceID, itemID string) (bool, error) {
	src, err := r.GetSource(ctx, sourceID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return src.HasWatched(itemID), nil
}

func (r *SourceRepository) Approve(ctx context.Context, id string) (*source.Source, error) {
	return r.UpdateSource(ctx, id, func(src *source.Source) error {
		return src.Approve(r.clock.Now())
	})
}

func (r *SourceRepository) Deny(ctx context.Context, id string) (*source.Source, error) {
	return r.UpdateSource(ctx, id, func(src *source.Source) error {
		return src.Deny()
	})
}

func (r *SourceRepository) ListSources(ctx context.Context) ([]*source.Source, error) {
	return r.list(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY id`)
}

// ListPollable returns enabled sources the user has not denied.
func (r *SourceRepository) ListPollable(ctx context.Context) ([]*source.Source, error) {
	return r.list(ctx, `SELECT `+sourceColumns+` FROM sources WHERE enabled = 1 AND approval_state != ? ORDER BY id`, string(source.StateDenied))
}

func (r *SourceRepository) GetSourceStats(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT approval_state, COUNT(*) FROM sources GROUP BY approval_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to get source stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{"total": 0}
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source stats: %w", err)
		}
		stats[state] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

func (r *SourceRepository) list(ctx context.Context, query string, args ...any) ([]*source.Source, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*source.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sources: %w", err)
	}
	return sources, nil
}

func (r *SourceRepository) save(ctx context.Context, tx *sql.Tx, src *source.Source) error {
	watched, err := json.Marshal(nonNil(src.WatchedItemIDs))
	if err != nil {
		return fmt.Errorf("failed to marshal watched ids: %w", err)
	}
	history := make([]string, len(src.WatchHistory))
	for i, t := range src.WatchHistory {
		history[i] = formatTime(t)
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal watch history: %w", err)
	}
	var lastItem sql.NullString
	if src.LastItem != nil {
		data, err := json.Marshal(src.LastItem)
		if err != nil {
			return fmt.Errorf("failed to marshal last item: %w", err)
		}
		lastItem = sql.NullString{String: string(data), Valid: true}
	}
	relationship, err := json.Marshal(src.Relationship)
	if err != nil {
		return fmt.Errorf("failed to marshal relationship: %w", err)
	}
	patterns, err := json.Marshal(src.Patterns)
	if err != nil {
		return fmt.Errorf("failed to marshal patterns: %w", err)
	}

	now := formatTime(r.clock.Now())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sources (
			id, name, handle, enabled, first_seen_at, approval_state, approved_at,
			watch_count, return_visits, watched_item_ids, watch_history, last_item,
			relationship, patterns, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			handle = excluded.handle,
			enabled = excluded.enabled,
			first_seen_at = excluded.first_seen_at,
			approval_state = excluded.approval_state,
			approved_at = excluded.approved_at,
			watch_count = excluded.watch_count,
			return_visits = excluded.return_visits,
			watched_item_ids = excluded.watched_item_ids,
			watch_history = excluded.watch_history,
			last_item = excluded.last_item,
			relationship = excluded.relationship,
			patterns = excluded.patterns,
			updated_at = excluded.updated_at
	`, src.ID, src.Name, src.Handle, src.Enabled, formatTime(src.FirstSeenAt), string(src.ApprovalState),
		formatNullTime(src.ApprovedAt), src.WatchCount, src.ReturnVisits, string(watched), string(historyJSON),
		lastItem, string(relationship), string(patterns), now, now)
	if err != nil {
		return fmt.Errorf("failed to save source %s: %w", src.ID, err)
	}
	return nil
}

func scanSource(row rowScanner) (*source.Source, error) {
	var src source.Source
	var state, firstSeen, watched, history, relationship, patternsJSON string
	var approvedAt, lastItem sql.NullString

	err := row.Scan(&src.ID, &src.Name, &src.Handle, &src.Enabled, &firstSeen, &state, &approvedAt,
		&src.WatchCount, &src.ReturnVisits, &watched, &history, &lastItem, &relationship, &patternsJSON)
	if err != nil {
		return nil, err
	}

	src.ApprovalState = source.ApprovalState(state)
	if src.FirstSeenAt, err = parseTime(firstSeen); err != nil {
		return nil, err
	}
	if src.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(watched), &src.WatchedItemIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal watched ids: %w", err)
	}

	var stamps []string
	if err := json.Unmarshal([]byte(history), &stamps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal watch history: %w", err)
	}
	for _, s := range stamps {
		t, err := parseTime(s)
		if err != nil {
			return nil, err
		}
		src.WatchHistory = append(src.WatchHistory, t)
	}

	if lastItem.Valid {
		src.LastItem = &source.Item{}
		if err := json.Unmarshal([]byte(lastItem.String), src.LastItem); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last item: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(relationship), &src.Relationship); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relationship: %w", err)
	}
	if err := json.Unmarshal([]byte(patternsJSON), &src.Patterns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patterns: %w", err)
	}

	return &src, nil
}

func (r *SourceRepository) lock(id string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
