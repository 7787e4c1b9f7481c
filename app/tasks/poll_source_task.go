package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

type PollSourceTask struct {
	Task
	poller    Poller
	processor Processor
}

func NewPollSourceTask(sourceID string, poller Poller, processor Processor) *PollSourceTask {
	return &PollSourceTask{
		Task:      NewTask(TaskTypePollSource, sourceID),
		poller:    poller,
		processor: processor,
	}
}

// Execute polls the source once. A poll that yields nothing is not an error: the
// next cycle tries again. Only a failure to record the result is retried.
func (t *PollSourceTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entry := t.poller.Poll(ctx, t.SourceID)
	if entry == nil {
		slog.Debug("Nothing to process", "source", t.SourceID)
		return nil
	}

	decision, err := t.processor.Process(ctx, t.SourceID, entry)
	if err != nil {
		return fmt.Errorf("failed to process feed entry: %w", err)
	}

	slog.Info("Task completed",
		"type", "PollSource",
		"source", t.SourceID,
		"item", entry.ItemID,
		"notify", decision.Notify,
		"reason", decision.Reason,
		"duration", t.GetDuration())

	return nil
}
