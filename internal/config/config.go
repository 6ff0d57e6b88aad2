package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for linkaudit.
type Config struct {
	Worker  WorkerConfig  `mapstructure:"worker"  yaml:"worker"`
	Queue   QueueConfig   `mapstructure:"queue"   yaml:"queue"`
	Render  RenderConfig  `mapstructure:"render"  yaml:"render"`
	Proxy   ProxyConfig   `mapstructure:"proxy"   yaml:"proxy"`
	Sheets  SheetsConfig  `mapstructure:"sheets"  yaml:"sheets"`
	DB      DBConfig      `mapstructure:"db"      yaml:"db"`
	Redis   RedisConfig   `mapstructure:"redis"   yaml:"redis"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// WorkerConfig controls the worker pool (C5).
type WorkerConfig struct {
	Concurrency      int           `mapstructure:"concurrency"        yaml:"concurrency"`
	IdlePollInterval time.Duration `mapstructure:"idle_poll_interval" yaml:"idle_poll_interval"`
	ShutdownGrace    time.Duration `mapstructure:"shutdown_grace"     yaml:"shutdown_grace"`
}

// QueueConfig controls the priority queue (C4).
type QueueConfig struct {
	Backend         string        `mapstructure:"backend"           yaml:"backend"` // memory, redis
	MaxAttempts     int           `mapstructure:"max_attempts"      yaml:"max_attempts"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"      yaml:"backoff_base"`
	LeaseTimeout    time.Duration `mapstructure:"lease_timeout"     yaml:"lease_timeout"`
	RetainCompleted int           `mapstructure:"retain_completed"  yaml:"retain_completed"`
	RetainFailed    int           `mapstructure:"retain_failed"     yaml:"retain_failed"`
	DedupByJobID    bool          `mapstructure:"dedup_by_job_id"   yaml:"dedup_by_job_id"`
}

// RenderConfig controls the direct rendering engine (C3 step 1).
type RenderConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"          yaml:"timeout"`
	SettleTime     time.Duration `mapstructure:"settle_time"      yaml:"settle_time"`
	ReloadSettle   time.Duration `mapstructure:"reload_settle"    yaml:"reload_settle"`
	ScrollWait     time.Duration `mapstructure:"scroll_wait"      yaml:"scroll_wait"`
	MaxRedirects   int           `mapstructure:"max_redirects"    yaml:"max_redirects"`
	MaxPages       int           `mapstructure:"max_pages"        yaml:"max_pages"`
	UserAgents     []string      `mapstructure:"user_agents"      yaml:"user_agents"`
	StealthEnabled bool          `mapstructure:"stealth_enabled"  yaml:"stealth_enabled"`
}

// ProxyConfig controls the external rendering-proxy fallback (C3 step 5).
type ProxyConfig struct {
	Endpoint           string        `mapstructure:"endpoint"             yaml:"endpoint"`
	APIToken           string        `mapstructure:"api_token"            yaml:"api_token"`
	RetryAttempts      int           `mapstructure:"retry_attempts"       yaml:"retry_attempts"`
	Timeout            time.Duration `mapstructure:"timeout"              yaml:"timeout"`
	BreakerThreshold   int           `mapstructure:"breaker_threshold"    yaml:"breaker_threshold"`
	BreakerCooldown    time.Duration `mapstructure:"breaker_cooldown"     yaml:"breaker_cooldown"`
	BreakerHalfOpenMax int           `mapstructure:"breaker_half_open_max" yaml:"breaker_half_open_max"`
}

// Enabled reports whether the proxy fallback is configured, per the
// "enabled iff API token present" rule in SPEC_FULL.md §6.
func (p ProxyConfig) Enabled() bool { return p.APIToken != "" }

// SheetsConfig controls the Sheet Adapter (C7). Exactly one of
// CredentialsFile (a service-account key) or TokenFile (a user OAuth2
// token, refreshed automatically against Google's token endpoint) is
// expected to be set; CredentialsFile takes precedence if both are.
type SheetsConfig struct {
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file"`
	TokenFile       string        `mapstructure:"token_file"       yaml:"token_file"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
}

// DBConfig controls the relational repository (C1).
type DBConfig struct {
	DSN             string `mapstructure:"dsn"               yaml:"dsn"`
	MaxConns        int    `mapstructure:"max_conns"         yaml:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"         yaml:"min_conns"`
}

// RedisConfig controls the durable queue backend and the redis notifier,
// including the circuit breaker wrapped around the notifier's publish path.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"     yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db"       yaml:"db"`

	NotifierBreakerThreshold   int           `mapstructure:"notifier_breaker_threshold"    yaml:"notifier_breaker_threshold"`
	NotifierBreakerCooldown    time.Duration `mapstructure:"notifier_breaker_cooldown"     yaml:"notifier_breaker_cooldown"`
	NotifierBreakerHalfOpenMax int           `mapstructure:"notifier_breaker_half_open_max" yaml:"notifier_breaker_half_open_max"`
	NotifierTimeout            time.Duration `mapstructure:"notifier_timeout"               yaml:"notifier_timeout"`
}

// APIConfig controls the batch-ingress HTTP surface.
type APIConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics and tracing export.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"     yaml:"enabled"`
	Port       int    `mapstructure:"port"        yaml:"port"`
	Path       string `mapstructure:"path"        yaml:"path"`
	OTLPTarget string `mapstructure:"otlp_target" yaml:"otlp_target"`
}

// DefaultConfig returns a Config with the defaults enumerated in
// SPEC_FULL.md §6.
func DefaultConfig() *Config {
	return &Config{
		Worker: WorkerConfig{
			Concurrency:      5,
			IdlePollInterval: 100 * time.Millisecond,
			ShutdownGrace:    30 * time.Second,
		},
		Queue: QueueConfig{
			Backend:         "memory",
			MaxAttempts:     3,
			BackoffBase:     2 * time.Second,
			LeaseTimeout:    90 * time.Second, // render_timeout * 1.5
			RetainCompleted: 100,
			RetainFailed:    50,
			DedupByJobID:    true,
		},
		Render: RenderConfig{
			Timeout:      60 * time.Second,
			SettleTime:   3 * time.Second,
			ReloadSettle: 5 * time.Second,
			ScrollWait:   2 * time.Second,
			MaxRedirects: 5,
			MaxPages:     10,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			StealthEnabled: true,
		},
		Proxy: ProxyConfig{
			RetryAttempts:      2,
			Timeout:            60 * time.Second,
			BreakerThreshold:   3,
			BreakerCooldown:    15 * time.Second,
			BreakerHalfOpenMax: 1,
		},
		Sheets: SheetsConfig{
			RequestTimeout: 30 * time.Second,
		},
		DB: DBConfig{
			MaxConns: 10,
			MinConns: 2,
		},
		Redis: RedisConfig{
			Addr:                       "localhost:6379",
			NotifierBreakerThreshold:   3,
			NotifierBreakerCooldown:    15 * time.Second,
			NotifierBreakerHalfOpenMax: 1,
			NotifierTimeout:            5 * time.Second,
		},
		API: APIConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
