package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
// No CLI flags are bound here.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("LINKAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("linkaudit")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".linkaudit"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("worker.concurrency", cfg.Worker.Concurrency)
	v.SetDefault("worker.idle_poll_interval", cfg.Worker.IdlePollInterval)
	v.SetDefault("worker.shutdown_grace", cfg.Worker.ShutdownGrace)

	v.SetDefault("queue.backend", cfg.Queue.Backend)
	v.SetDefault("queue.max_attempts", cfg.Queue.MaxAttempts)
	v.SetDefault("queue.backoff_base", cfg.Queue.BackoffBase)
	v.SetDefault("queue.lease_timeout", cfg.Queue.LeaseTimeout)
	v.SetDefault("queue.retain_completed", cfg.Queue.RetainCompleted)
	v.SetDefault("queue.retain_failed", cfg.Queue.RetainFailed)
	v.SetDefault("queue.dedup_by_job_id", cfg.Queue.DedupByJobID)

	v.SetDefault("render.timeout", cfg.Render.Timeout)
	v.SetDefault("render.settle_time", cfg.Render.SettleTime)
	v.SetDefault("render.reload_settle", cfg.Render.ReloadSettle)
	v.SetDefault("render.scroll_wait", cfg.Render.ScrollWait)
	v.SetDefault("render.max_redirects", cfg.Render.MaxRedirects)
	v.SetDefault("render.max_pages", cfg.Render.MaxPages)
	v.SetDefault("render.user_agents", cfg.Render.UserAgents)
	v.SetDefault("render.stealth_enabled", cfg.Render.StealthEnabled)

	v.SetDefault("proxy.retry_attempts", cfg.Proxy.RetryAttempts)
	v.SetDefault("proxy.timeout", cfg.Proxy.Timeout)
	v.SetDefault("proxy.breaker_threshold", cfg.Proxy.BreakerThreshold)
	v.SetDefault("proxy.breaker_cooldown", cfg.Proxy.BreakerCooldown)
	v.SetDefault("proxy.breaker_half_open_max", cfg.Proxy.BreakerHalfOpenMax)

	v.SetDefault("sheets.request_timeout", cfg.Sheets.RequestTimeout)

	v.SetDefault("db.max_conns", cfg.DB.MaxConns)
	v.SetDefault("db.min_conns", cfg.DB.MinConns)

	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.notifier_breaker_threshold", cfg.Redis.NotifierBreakerThreshold)
	v.SetDefault("redis.notifier_breaker_cooldown", cfg.Redis.NotifierBreakerCooldown)
	v.SetDefault("redis.notifier_breaker_half_open_max", cfg.Redis.NotifierBreakerHalfOpenMax)
	v.SetDefault("redis.notifier_timeout", cfg.Redis.NotifierTimeout)

	v.SetDefault("api.addr", cfg.API.Addr)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
