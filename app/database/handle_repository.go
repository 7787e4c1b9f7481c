package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lysyi3m/tubewatch/app/timer"
)

type HandleRepository struct {
	db    *DB
	clock timer.Clock
}

func NewHandleRepository(db *DB, clock timer.Clock) *HandleRepository {
	return &HandleRepository{db: db, clock: clock}
}

func (r *HandleRepository) LookupHandle(ctx context.Context, handle string) (string, bool, error) {
	var channelID string
	err := r.db.QueryRowContext(ctx, `SELECT channel_id FROM handles WHERE handle = ?`, handle).Scan(&channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up handle %s: %w", handle, err)
	}
	return channelID, true, nil
}

func (r *HandleRepository) SaveHandle(ctx context.Context, handle, channelID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO handles (handle, channel_id, resolved_at) VALUES (?, ?, ?)
		ON CONFLICT (handle) DO UPDATE SET channel_id = excluded.channel_id, resolved_at = excluded.resolved_at
	`, handle, channelID, formatTime(r.clock.Now()))
	if err != nil {
		return fmt.Errorf("failed to save handle %s: %w", handle, err)
	}
	return nil
}
