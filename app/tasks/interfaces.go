package tasks

import (
	"context"

	"github.com/lysyi3m/tubewatch/app/feed"
	"github.com/lysyi3m/tubewatch/app/notify"
	"github.com/lysyi3m/tubewatch/app/source"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to manage background polling.
//
//	scheduler := NewScheduler(configCache, sources, resolver, poller, pipeline, clock, opts)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

type SourceStore interface {
	ListPollable(ctx context.Context) ([]*source.Source, error)
	UpsertSource(ctx context.Context, id string, mutate func(*source.Source) error) (*source.Source, error)
}

type Resolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

type Poller interface {
	Poll(ctx context.Context, channel string) *feed.Entry
}

type Processor interface {
	Process(ctx context.Context, sourceID string, entry *feed.Entry) (notify.Decision, error)
}
