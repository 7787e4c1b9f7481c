package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/tubewatch/app/feed"
	"github.com/lysyi3m/tubewatch/app/timer"
)

const (
	DefaultWorkerCount  = 4
	DefaultQueueSize    = 300
	DefaultPollInterval = 15 * time.Minute
	DefaultTaskTimeout  = 5 * time.Minute
	maxRetryDelay       = 30 * time.Second
)

type Options struct {
	WorkerCount  int
	QueueSize    int
	PollInterval time.Duration
	TaskTimeout  time.Duration
	RetryBase    time.Duration
}

func (o Options) withDefaults() Options {
	if o.WorkerCount <= 0 {
		o.WorkerCount = DefaultWorkerCount
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = DefaultTaskTimeout
	}
	if o.RetryBase <= 0 {
		o.RetryBase = time.Second
	}
	return o
}

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs source syncs and poll cycles on a fixed worker pool. The poll cycle
// is a timer task so tests can drive it with a virtual clock.
type Scheduler struct {
	configCache *feed.ConfigCache
	sources     SourceStore
	resolver    Resolver
	poller      Poller
	processor   Processor
	timers      timer.Scheduler
	opts        Options

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
	cycle     timer.Task
}

func NewScheduler(configCache *feed.ConfigCache, sources SourceStore, resolver Resolver, poller Poller,
	processor Processor, timers timer.Scheduler, opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	opts = opts.withDefaults()

	return &Scheduler{
		configCache: configCache,
		sources:     sources,
		resolver:    resolver,
		poller:      poller,
		processor:   processor,
		timers:      timers,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, opts.QueueSize),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.opts.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.enqueueStartupTasks()
	s.cycle = s.timers.Every(s.opts.PollInterval, s.enqueueTasks)

	slog.Info("Scheduler started", "workers", s.opts.WorkerCount, "interval", s.opts.PollInterval.String())
}

func (s *Scheduler) Stop() {
	if s.cycle != nil {
		s.cycle.Cancel()
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// RunCycle enqueues a poll task for every pollable source.
func (s *Scheduler) RunCycle() {
	s.enqueueTasks()
}

func (s *Scheduler) enqueueStartupTasks() {
	if s.configCache != nil {
		configs := s.configCache.GetConfigs()
		slog.Debug("Processing source configurations", "count", len(configs))

		for _, config := range configs {
			task := NewSyncSourceConfigTask(config, s.sources, s.resolver)
			if err := s.EnqueueTask(task); err != nil {
				slog.Warn("Failed to enqueue SyncSourceConfigTask", "config", config.Key, "error", err)
			}
		}
	}

	s.enqueueTasks()
}

func (s *Scheduler) enqueueTasks() {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.TaskTimeout)
	defer cancel()

	sources, err := s.sources.ListPollable(ctx)
	if err != nil {
		slog.Warn("Failed to list sources, skipping cycle", "error", err)
		return
	}
	if len(sources) == 0 {
		slog.Debug("No pollable sources found")
		return
	}

	slog.Debug("Scheduling poll cycle", "count", len(sources))

	for _, src := range sources {
		task := NewPollSourceTask(src.ID, s.poller, s.processor)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue PollSourceTask", "source", src.ID, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.opts.TaskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := s.opts.RetryBase << uint(task.GetRetryCount()-1)
	if retryDelay > maxRetryDelay {
		retryDelay = maxRetryDelay
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "source", task.GetSourceID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	go func() {
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-time.After(retryDelay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
