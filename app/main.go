package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/tubewatch/app/api"
	"github.com/lysyi3m/tubewatch/app/cfg"
	"github.com/lysyi3m/tubewatch/app/database"
	"github.com/lysyi3m/tubewatch/app/feed"
	"github.com/lysyi3m/tubewatch/app/notify"
	"github.com/lysyi3m/tubewatch/app/score"
	"github.com/lysyi3m/tubewatch/app/source"
	"github.com/lysyi3m/tubewatch/app/tasks"
	"github.com/lysyi3m/tubewatch/app/timer"
	"github.com/lysyi3m/tubewatch/app/watch"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	setupLogger(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting tubewatch", "version", appCfg.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	configCache := feed.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load source configurations: %w", err)
	}
	slog.Info("Source configurations loaded", "dir", appCfg.SourcesDir, "count", configCache.GetConfigCount())

	clock := timer.NewReal()

	sourceRepo := database.NewSourceRepository(db, source.DefaultLimits(), clock)
	snapshotRepo := database.NewSnapshotRepository(db)
	handleRepo := database.NewHandleRepository(db, clock)
	digestRepo := database.NewDigestRepository(db)

	health := map[string]api.HealthChecker{"database": db}

	var cache score.Cache
	if appCfg.Score.RedisAddr != "" {
		redisCache, err := score.NewRedisCache(ctx, appCfg.Score.RedisAddr, appCfg.Score.CacheTTL)
		if err != nil {
			return err
		}
		cache = redisCache
	} else {
		cache = score.NewMemoryCache(appCfg.Score.CacheSize, appCfg.Score.CacheTTL)
	}
	defer cache.Close()
	health["cache"] = api.HealthFunc(func(context.Context) map[string]interface{} {
		return cache.Health()
	})

	engine := score.NewEngine(appCfg.Score.Weights, appCfg.Score.Badges)
	scores := score.NewService(engine, cache, sourceRepo, clock)

	watchCfg := watch.DefaultConfig()
	watchCfg.WatchThreshold = appCfg.Watch.Threshold
	watchCfg.MinWatchSeconds = appCfg.Watch.MinWatchSeconds
	watchCfg.SkipSlack = appCfg.Watch.SkipSlack
	watchCfg.MinSkipMagnitude = appCfg.Watch.MinSkipMagnitude
	watchCfg.RewindMagnitude = appCfg.Watch.RewindMagnitude
	watchCfg.SampleInterval = appCfg.Watch.SampleInterval
	watchCfg.IdleTimeout = appCfg.Watch.IdleTimeout
	tracker := watch.NewTracker(ctx, watchCfg, clock, scores.InvalidatingConfirmer(sourceRepo), sourceRepo)
	defer tracker.StopAll()

	var transport feed.Transport = feed.NewHTTPTransport(appCfg.UserAgent, appCfg.Poll.RequestInterval)
	transport = feed.NewRetryTransport(transport, appCfg.Poll.RetryAttempts, appCfg.Poll.RetryBaseDelay)
	resolver := feed.NewHandleResolver(transport, handleRepo, feed.DefaultBaseURL, appCfg.Poll.FetchTimeout)
	poller := feed.NewPoller(transport, resolver, clock, feed.DefaultFeedURL, appCfg.Poll.FetchTimeout)

	notifiers := []notify.Notifier{notify.NewLogNotifier()}
	if appCfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(appCfg.Notify.WebhookURL, appCfg.Notify.WebhookTimeout))
	}

	var digest *notify.Digest
	var digestQueue api.DigestQueue
	if appCfg.Notify.DigestEnabled {
		digest = notify.NewDigest(digestRepo, clock)
		digestQueue = digest
	}

	pipeline := notify.NewPipeline(sourceRepo, snapshotRepo, scores, notify.NewMultiNotifier(notifiers...), digest, clock, appCfg.Notify.GraceWindow)

	scheduler := tasks.NewScheduler(configCache, sourceRepo, resolver, poller, pipeline, clock, tasks.Options{
		WorkerCount:  appCfg.WorkerCount,
		PollInterval: appCfg.PollInterval,
	})
	scheduler.Start()
	defer scheduler.Stop()

	baseURL := appCfg.BaseUrl
	if baseURL == "" {
		baseURL = "http://localhost:" + appCfg.Port
	}

	handler := api.NewHandler(api.Deps{
		Tracker:     tracker,
		Sources:     sourceRepo,
		Scores:      scores,
		Digest:      digestQueue,
		DigestStats: digestRepo,
		RSS:         notify.NewRSSWriter(baseURL+"/digest.rss", appCfg.Version),
		ConfigCache: configCache,
		Scheduler:   scheduler,
		Resolver:    resolver,
		Health:      health,
		Clock:       clock,
		Version:     appCfg.Version,
	})

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "base_url", baseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("tubewatch shutdown complete")
	return nil
}
