package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/lysyi3m/tubewatch/app/score"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawWatch struct {
	Threshold       float64       `long:"threshold" env:"WATCH_THRESHOLD" default:"0.5" description:"Fraction of the video that must be watched continuously"`
	MinWatchSeconds float64       `long:"min-seconds" env:"WATCH_MIN_SECONDS" default:"30" description:"Minimum seconds of accrued playback"`
	SkipSlack       float64       `long:"skip-slack" env:"WATCH_SKIP_SLACK" default:"2" description:"Seconds an advance may exceed elapsed time before it counts as a skip"`
	MinSkip         float64       `long:"min-skip" env:"WATCH_MIN_SKIP" default:"5" description:"Smallest forward jump in seconds treated as a skip"`
	MinRewind       float64       `long:"min-rewind" env:"WATCH_MIN_REWIND" default:"5" description:"Smallest backward jump in seconds treated as a rewind"`
	SampleInterval  time.Duration `long:"sample-interval" env:"WATCH_SAMPLE_INTERVAL" default:"2s" description:"Playback sampling interval"`
	IdleTimeout     time.Duration `long:"idle-timeout" env:"WATCH_IDLE_TIMEOUT" default:"5m" description:"Input silence after which a paused viewer counts as absent"`
}

type rawScore struct {
	Frequency float64       `long:"weight-frequency" env:"SCORE_WEIGHT_FREQUENCY" default:"0.30" description:"Weight of watch frequency"`
	Recency   float64       `long:"weight-recency" env:"SCORE_WEIGHT_RECENCY" default:"0.20" description:"Weight of watch recency"`
	Depth     float64       `long:"weight-depth" env:"SCORE_WEIGHT_DEPTH" default:"0.20" description:"Weight of watch depth"`
	Loyalty   float64       `long:"weight-loyalty" env:"SCORE_WEIGHT_LOYALTY" default:"0.20" description:"Weight of return visits"`
	Growth    float64       `long:"weight-growth" env:"SCORE_WEIGHT_GROWTH" default:"0.10" description:"Weight of recent growth"`
	Favorite  int           `long:"badge-favorite" env:"SCORE_BADGE_FAVORITE" default:"80" description:"Lowest score earning the Favorite badge"`
	Regular   int           `long:"badge-regular" env:"SCORE_BADGE_REGULAR" default:"60" description:"Lowest score earning the Regular badge"`
	Casual    int           `long:"badge-casual" env:"SCORE_BADGE_CASUAL" default:"40" description:"Lowest score earning the Casual badge"`
	New       int           `long:"badge-new" env:"SCORE_BADGE_NEW" default:"20" description:"Lowest score earning the New badge"`
	CacheTTL  time.Duration `long:"cache-ttl" env:"SCORE_CACHE_TTL" default:"5m" description:"Relationship score cache TTL"`
	CacheSize int           `long:"cache-size" env:"SCORE_CACHE_SIZE" default:"1000" description:"In-memory score cache size"`
	RedisAddr string        `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the score cache (optional, host:port)"`
}

type rawNotify struct {
	GraceWindow    time.Duration `long:"grace-window" env:"NOTIFY_GRACE_WINDOW" default:"5m" description:"Age under which an item on a newly seen source still notifies"`
	WebhookURL     string        `long:"webhook-url" env:"NOTIFY_WEBHOOK_URL" description:"Webhook receiving notifications as JSON (optional)"`
	WebhookTimeout time.Duration `long:"webhook-timeout" env:"NOTIFY_WEBHOOK_TIMEOUT" default:"10s" description:"Webhook request timeout"`
	NoDigest       bool          `long:"no-digest" env:"NOTIFY_NO_DIGEST" description:"Disable the digest queue"`
}

type rawPoll struct {
	FetchTimeout    time.Duration `long:"fetch-timeout" env:"POLL_FETCH_TIMEOUT" default:"10s" description:"Feed request timeout"`
	RequestInterval time.Duration `long:"request-interval" env:"POLL_REQUEST_INTERVAL" default:"1s" description:"Minimum delay between requests to one host"`
	RetryAttempts   int           `long:"retry-attempts" env:"POLL_RETRY_ATTEMPTS" default:"3" description:"Attempts per feed request"`
	RetryBaseDelay  time.Duration `long:"retry-base-delay" env:"POLL_RETRY_BASE_DELAY" default:"500ms" description:"Initial retry backoff"`
}

type rawCfg struct {
	// Storage configuration
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/tubewatch.db" description:"SQLite database file"`
	SourcesDir string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`

	// Application configuration
	Port         string        `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string        `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://watch.example.com)"`
	WorkerCount  int           `long:"worker-count" env:"WORKER_COUNT" default:"4" description:"Number of background workers for feed polling"`
	PollInterval time.Duration `long:"poll-interval" env:"POLL_INTERVAL" default:"15m" description:"Interval between poll cycles"`
	APIAccessKey string        `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	Watch  rawWatch  `group:"Watch" namespace:"watch"`
	Score  rawScore  `group:"Score" namespace:"score"`
	Notify rawNotify `group:"Notify" namespace:"notify"`
	Poll   rawPoll   `group:"Poll" namespace:"poll"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"tubewatch/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load reads .env if present, then flags and environment from the process.
func Load() (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args and the environment. It returns nil, nil when help was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:       raw.DBPath,
		SourcesDir:   raw.SourcesDir,
		Port:         raw.Port,
		BaseUrl:      raw.BaseUrl,
		WorkerCount:  raw.WorkerCount,
		PollInterval: raw.PollInterval,
		APIAccessKey: raw.APIAccessKey,
		Watch: WatchCfg{
			Threshold:        raw.Watch.Threshold,
			MinWatchSeconds:  raw.Watch.MinWatchSeconds,
			SkipSlack:        raw.Watch.SkipSlack,
			MinSkipMagnitude: raw.Watch.MinSkip,
			RewindMagnitude:  raw.Watch.MinRewind,
			SampleInterval:   raw.Watch.SampleInterval,
			IdleTimeout:      raw.Watch.IdleTimeout,
		},
		Score: ScoreCfg{
			Weights: score.Weights{
				Frequency: raw.Score.Frequency,
				Recency:   raw.Score.Recency,
				Depth:     raw.Score.Depth,
				Loyalty:   raw.Score.Loyalty,
				Growth:    raw.Score.Growth,
			},
			Badges: score.Badges{
				Favorite: raw.Score.Favorite,
				Regular:  raw.Score.Regular,
				Casual:   raw.Score.Casual,
				New:      raw.Score.New,
			},
			CacheTTL:  raw.Score.CacheTTL,
			CacheSize: raw.Score.CacheSize,
			RedisAddr: raw.Score.RedisAddr,
		},
		Notify: NotifyCfg{
			GraceWindow:    raw.Notify.GraceWindow,
			WebhookURL:     raw.Notify.WebhookURL,
			WebhookTimeout: raw.Notify.WebhookTimeout,
			DigestEnabled:  !raw.Notify.NoDigest,
		},
		Poll: PollCfg{
			FetchTimeout:    raw.Poll.FetchTimeout,
			RequestInterval: raw.Poll.RequestInterval,
			RetryAttempts:   raw.Poll.RetryAttempts,
			RetryBaseDelay:  raw.Poll.RetryBaseDelay,
		},
		UserAgent: raw.UserAgent,
		Timezone:  raw.Timezone,
		Debug:     raw.Debug,
		Version:   GetVersion(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func (c *Cfg) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db-path is required")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker-count must be positive, got %d", c.WorkerCount)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive, got %s", c.PollInterval)
	}

	if c.Watch.Threshold <= 0 || c.Watch.Threshold > 1 {
		return fmt.Errorf("watch threshold must be in (0, 1], got %v", c.Watch.Threshold)
	}
	if c.Watch.MinWatchSeconds < 0 {
		return fmt.Errorf("watch min-seconds must not be negative, got %v", c.Watch.MinWatchSeconds)
	}
	if c.Watch.SkipSlack < 0 {
		return fmt.Errorf("watch skip-slack must not be negative, got %v", c.Watch.SkipSlack)
	}
	if c.Watch.MinSkipMagnitude <= 0 || c.Watch.RewindMagnitude <= 0 {
		return fmt.Errorf("watch min-skip and min-rewind must be positive")
	}
	if c.Watch.SampleInterval <= 0 || c.Watch.IdleTimeout <= 0 {
		return fmt.Errorf("watch sample-interval and idle-timeout must be positive")
	}

	if err := c.Score.Weights.Validate(); err != nil {
		return fmt.Errorf("score weights: %w", err)
	}
	if err := c.Score.Badges.Validate(); err != nil {
		return fmt.Errorf("score badges: %w", err)
	}
	if c.Score.CacheTTL <= 0 || c.Score.CacheSize <= 0 {
		return fmt.Errorf("score cache-ttl and cache-size must be positive")
	}
	if c.Score.RedisAddr != "" {
		if _, _, err := net.SplitHostPort(c.Score.RedisAddr); err != nil {
			return fmt.Errorf("redis-addr must be host:port: %w", err)
		}
	}

	if c.Notify.GraceWindow < 0 {
		return fmt.Errorf("grace-window must not be negative, got %s", c.Notify.GraceWindow)
	}
	if c.Notify.WebhookURL != "" {
		u, err := url.ParseRequestURI(c.Notify.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("webhook-url must be an http(s) URL, got %q", c.Notify.WebhookURL)
		}
	}

	if c.Poll.FetchTimeout <= 0 {
		return fmt.Errorf("fetch-timeout must be positive, got %s", c.Poll.FetchTimeout)
	}
	if c.Poll.RetryAttempts < 1 {
		return fmt.Errorf("retry-attempts must be at least 1, got %d", c.Poll.RetryAttempts)
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
