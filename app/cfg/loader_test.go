package cfg

import (
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/tubewatch/app/score"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	version := GetVersion()
	if version != "dev" && version != "unknown" {
		t.Logf("Version: %s", version)
	}
}

func TestLoadArgsDefaults(t *testing.T) {
	cfg, err := LoadArgs([]string{})
	if err != nil {
		t.Fatalf("LoadArgs failed: %v", err)
	}

	if cfg.DBPath != "./data/tubewatch.db" {
		t.Errorf("Expected default db path, got '%s'", cfg.DBPath)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("Expected worker count 4, got %d", cfg.WorkerCount)
	}
	if cfg.PollInterval != 15*time.Minute {
		t.Errorf("Expected poll interval 15m, got %s", cfg.PollInterval)
	}
	if cfg.Watch.Threshold != 0.5 {
		t.Errorf("Expected watch threshold 0.5, got %v", cfg.Watch.Threshold)
	}
	if cfg.Watch.SampleInterval != 2*time.Second {
		t.Errorf("Expected sample interval 2s, got %s", cfg.Watch.SampleInterval)
	}
	if cfg.Score.Weights.Frequency != 0.30 || cfg.Score.Weights.Growth != 0.10 {
		t.Errorf("Unexpected default weights: %+v", cfg.Score.Weights)
	}
	if cfg.Watch.SkipSlack != 2 || cfg.Watch.MinSkipMagnitude != 5 || cfg.Watch.RewindMagnitude != 5 {
		t.Errorf("Unexpected skip defaults: %+v", cfg.Watch)
	}
	if cfg.Score.Badges != score.DefaultBadges() {
		t.Errorf("Expected default badges, got %+v", cfg.Score.Badges)
	}
	if cfg.Score.CacheTTL != 5*time.Minute {
		t.Errorf("Expected cache TTL 5m, got %s", cfg.Score.CacheTTL)
	}
	if cfg.Notify.GraceWindow != 5*time.Minute {
		t.Errorf("Expected grace window 5m, got %s", cfg.Notify.GraceWindow)
	}
	if !cfg.Notify.DigestEnabled {
		t.Error("Expected digest to be enabled by default")
	}
	if cfg.Poll.RetryAttempts != 3 || cfg.Poll.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("Unexpected retry defaults: %+v", cfg.Poll)
	}

	if Get() != cfg {
		t.Error("Expected Get to return the loaded configuration")
	}
}

func TestLoadArgsFlagsAndEnvironment(t *testing.T) {
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := LoadArgs([]string{"--watch.threshold=0.8", "--poll-interval=1m", "--notify.no-digest"})
	if err != nil {
		t.Fatalf("LoadArgs failed: %v", err)
	}

	if cfg.WorkerCount != 8 {
		t.Errorf("Expected worker count 8 from environment, got %d", cfg.WorkerCount)
	}
	if cfg.Score.RedisAddr != "localhost:6379" {
		t.Errorf("Expected redis addr from environment, got '%s'", cfg.Score.RedisAddr)
	}
	if cfg.Watch.Threshold != 0.8 {
		t.Errorf("Expected threshold 0.8, got %v", cfg.Watch.Threshold)
	}
	if cfg.PollInterval != time.Minute {
		t.Errorf("Expected poll interval 1m, got %s", cfg.PollInterval)
	}
	if cfg.Notify.DigestEnabled {
		t.Error("Expected digest to be disabled")
	}
}

func TestLoadArgsRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"threshold above one", []string{"--watch.threshold=1.5"}, "threshold"},
		{"zero threshold", []string{"--watch.threshold=0"}, "threshold"},
		{"weights not summing to one", []string{"--score.weight-frequency=0.9"}, "weights"},
		{"negative weight", []string{"--score.weight-growth=-0.1", "--score.weight-frequency=0.5"}, "weights"},
		{"zero workers", []string{"--worker-count=0"}, "worker-count"},
		{"bad redis address", []string{"--score.redis-addr=localhost"}, "redis-addr"},
		{"bad webhook", []string{"--notify.webhook-url=ftp://example.com/hook"}, "webhook-url"},
		{"no retry attempts", []string{"--poll.retry-attempts=0"}, "retry-attempts"},
		{"negative skip slack", []string{"--watch.skip-slack=-1"}, "skip-slack"},
		{"zero skip magnitude", []string{"--watch.min-skip=0"}, "min-skip"},
		{"zero rewind magnitude", []string{"--watch.min-rewind=0"}, "min-rewind"},
		{"badges out of order", []string{"--score.badge-regular=85"}, "badges"},
		{"badge above 100", []string{"--score.badge-favorite=120"}, "badges"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadArgs(tt.args)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning '%s', got '%v'", tt.want, err)
			}
		})
	}
}

func TestLoadArgsSkipAndBadgeThresholds(t *testing.T) {
	t.Setenv("SCORE_BADGE_NEW", "10")

	cfg, err := LoadArgs([]string{"--watch.skip-slack=3", "--watch.min-skip=10", "--watch.min-rewind=8", "--score.badge-favorite=90"})
	if err != nil {
		t.Fatalf("LoadArgs failed: %v", err)
	}

	if cfg.Watch.SkipSlack != 3 {
		t.Errorf("Expected skip slack 3, got %v", cfg.Watch.SkipSlack)
	}
	if cfg.Watch.MinSkipMagnitude != 10 {
		t.Errorf("Expected min skip 10, got %v", cfg.Watch.MinSkipMagnitude)
	}
	if cfg.Watch.RewindMagnitude != 8 {
		t.Errorf("Expected min rewind 8, got %v", cfg.Watch.RewindMagnitude)
	}
	want := score.Badges{Favorite: 90, Regular: 60, Casual: 40, New: 10}
	if cfg.Score.Badges != want {
		t.Errorf("Expected badges %+v, got %+v", want, cfg.Score.Badges)
	}
}

func TestLoadArgsAcceptsWebhook(t *testing.T) {
	cfg, err := LoadArgs([]string{"--notify.webhook-url=https://hooks.example.com/tubewatch"})
	if err != nil {
		t.Fatalf("LoadArgs failed: %v", err)
	}
	if cfg.Notify.WebhookURL != "https://hooks.example.com/tubewatch" {
		t.Errorf("Expected webhook url, got '%s'", cfg.Notify.WebhookURL)
	}
}
