package database

import (
	"context"
	"time"

	"github.com/lysyi3m/tubewatch/app/notify"
	"github.com/lysyi3m/tubewatch/app/source"
)

type SourceStore interface {
	GetSource(ctx context.Context, id string) (*source.Source, error)
	ListSources(ctx context.Context) ([]*source.Source, error)
	ListPollable(ctx context.Context) ([]*source.Source, error)
	GetSourceStats(ctx context.Context) (map[string]int, error)

	UpsertSource(ctx context.Context, id string, mutate func(*source.Source) error) (*source.Source, error)
	UpdateSource(ctx context.Context, id string, mutate func(*source.Source) error) (*source.Source, error)
	ConfirmWatch(ctx context.Context, ev source.WatchConfirmed) error
	HasWatched(ctx context.Context, sourceID, itemID string) (bool, error)
	Approve(ctx context.Context, id string) (*source.Source, error)
	Deny(ctx context.Context, id string) (*source.Source, error)
}

type SnapshotStore interface {
	GetSnapshot(ctx context.Context, sourceID string) (*source.FeedSnapshot, error)
	SaveSnapshot(ctx context.Context, snap source.FeedSnapshot) error
}

type HandleStore interface {
	LookupHandle(ctx context.Context, handle string) (string, bool, error)
	SaveHandle(ctx context.Context, handle, channelID string) error
}

type DigestStore interface {
	EnqueueDigest(ctx context.Context, entry notify.DigestEntry) error
	PendingDigest(ctx context.Context, limit int) ([]notify.DigestEntry, error)
	MarkDigestSent(ctx context.Context, ids []string, at time.Time) error
	GetDigestStats(ctx context.Context) (pending int, sent int, err error)
}

var (
	_ SourceStore   = (*SourceRepository)(nil)
	_ SnapshotStore = (*SnapshotRepository)(nil)
	_ HandleStore   = (*HandleRepository)(nil)
	_ DigestStore   = (*DigestRepository)(nil)
)
