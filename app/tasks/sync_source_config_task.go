package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lysyi3m/tubewatch/app/feed"
	"github.com/lysyi3m/tubewatch/app/source"
)

// SyncSourceConfigTask seeds or refreshes a source from its YAML config. Handles are
// resolved to channel ids first since sources are keyed by id.
type SyncSourceConfigTask struct {
	Task
	Config   *feed.Config
	store    SourceStore
	resolver Resolver
}

func NewSyncSourceConfigTask(config *feed.Config, store SourceStore, resolver Resolver) *SyncSourceConfigTask {
	return &SyncSourceConfigTask{
		Task:     NewTask(TaskTypeSyncSourceConfig, config.Channel),
		Config:   config,
		store:    store,
		resolver: resolver,
	}
}

func (t *SyncSourceConfigTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	channelID, err := t.resolver.Resolve(ctx, t.Config.Channel)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", t.Config.Channel, err)
	}

	_, err = t.store.UpsertSource(ctx, channelID, func(src *source.Source) error {
		src.Name = t.Config.Name
		src.Enabled = t.Config.Enabled
		if feed.IsHandle(t.Config.Channel) {
			src.Handle = strings.ToLower(t.Config.Channel)
		}
		return nil
	})
	if err != nil {
		slog.Error("Task failed", "type", "SyncSourceConfig", "source", channelID, "error", err)
		return fmt.Errorf("failed to sync source config to database: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncSourceConfig",
		"source", channelID,
		"config", t.Config.Key,
		"duration", t.GetDuration())

	return nil
}
