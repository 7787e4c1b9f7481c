package cfg

import (
	"time"

	"github.com/lysyi3m/tubewatch/app/score"
)

type Cfg struct {
	// Storage configuration
	DBPath     string
	SourcesDir string

	// Application configuration
	Port         string
	BaseUrl      string
	WorkerCount  int
	PollInterval time.Duration
	APIAccessKey string

	Watch  WatchCfg
	Score  ScoreCfg
	Notify NotifyCfg
	Poll   PollCfg

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

type WatchCfg struct {
	Threshold        float64
	MinWatchSeconds  float64
	SkipSlack        float64
	MinSkipMagnitude float64
	RewindMagnitude  float64
	SampleInterval   time.Duration
	IdleTimeout      time.Duration
}

type ScoreCfg struct {
	Weights   score.Weights
	Badges    score.Badges
	CacheTTL  time.Duration
	CacheSize int
	RedisAddr string
}

type NotifyCfg struct {
	GraceWindow    time.Duration
	WebhookURL     string
	WebhookTimeout time.Duration
	DigestEnabled  bool
}

type PollCfg struct {
	FetchTimeout    time.Duration
	RequestInterval time.Duration
	RetryAttempts   int
	RetryBaseDelay  time.Duration
}
