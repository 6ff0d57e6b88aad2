package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be >= 1, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Worker.Concurrency > 1000 {
		return fmt.Errorf("worker.concurrency must be <= 1000, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Worker.IdlePollInterval <= 0 {
		return fmt.Errorf("worker.idle_poll_interval must be > 0")
	}
	if cfg.Worker.ShutdownGrace < 0 {
		return fmt.Errorf("worker.shutdown_grace must be >= 0")
	}

	validBackends := map[string]bool{"memory": true, "redis": true}
	if !validBackends[cfg.Queue.Backend] {
		return fmt.Errorf("queue.backend must be 'memory' or 'redis', got %q", cfg.Queue.Backend)
	}
	if cfg.Queue.MaxAttempts < 0 {
		return fmt.Errorf("queue.max_attempts must be >= 0, got %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.BackoffBase <= 0 {
		return fmt.Errorf("queue.backoff_base must be > 0")
	}
	if cfg.Queue.LeaseTimeout <= 0 {
		return fmt.Errorf("queue.lease_timeout must be > 0")
	}
	if cfg.Queue.RetainCompleted < 0 || cfg.Queue.RetainFailed < 0 {
		return fmt.Errorf("queue.retain_completed/retain_failed must be >= 0")
	}

	if cfg.Render.Timeout <= 0 {
		return fmt.Errorf("render.timeout must be > 0")
	}
	if cfg.Render.MaxRedirects < 0 {
		return fmt.Errorf("render.max_redirects must be >= 0, got %d", cfg.Render.MaxRedirects)
	}
	if cfg.Render.MaxPages < 1 {
		return fmt.Errorf("render.max_pages must be >= 1, got %d", cfg.Render.MaxPages)
	}
	if len(cfg.Render.UserAgents) == 0 {
		return fmt.Errorf("render.user_agents must not be empty")
	}

	if cfg.Proxy.Enabled() {
		if cfg.Proxy.Endpoint == "" {
			return fmt.Errorf("proxy.endpoint must be set when proxy.api_token is present")
		}
		if _, err := url.Parse(cfg.Proxy.Endpoint); err != nil {
			return fmt.Errorf("invalid proxy.endpoint %q: %w", cfg.Proxy.Endpoint, err)
		}
		if cfg.Proxy.RetryAttempts < 0 {
			return fmt.Errorf("proxy.retry_attempts must be >= 0")
		}
		if cfg.Proxy.BreakerThreshold < 1 {
			return fmt.Errorf("proxy.breaker_threshold must be >= 1, got %d", cfg.Proxy.BreakerThreshold)
		}
		if cfg.Proxy.BreakerCooldown <= 0 {
			return fmt.Errorf("proxy.breaker_cooldown must be > 0")
		}
		if cfg.Proxy.BreakerHalfOpenMax < 1 {
			return fmt.Errorf("proxy.breaker_half_open_max must be >= 1")
		}
	}

	if cfg.Sheets.RequestTimeout <= 0 {
		return fmt.Errorf("sheets.request_timeout must be > 0")
	}

	if cfg.Queue.Backend == "redis" || cfg.DB.DSN != "" {
		if cfg.DB.MaxConns < 1 {
			return fmt.Errorf("db.max_conns must be >= 1, got %d", cfg.DB.MaxConns)
		}
		if cfg.DB.MinConns < 0 || cfg.DB.MinConns > cfg.DB.MaxConns {
			return fmt.Errorf("db.min_conns must be between 0 and db.max_conns")
		}
	}

	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", cfg.Redis.DB)
	}
	if cfg.Queue.Backend == "redis" {
		if cfg.Redis.NotifierBreakerThreshold < 1 {
			return fmt.Errorf("redis.notifier_breaker_threshold must be >= 1, got %d", cfg.Redis.NotifierBreakerThreshold)
		}
		if cfg.Redis.NotifierBreakerCooldown <= 0 {
			return fmt.Errorf("redis.notifier_breaker_cooldown must be > 0")
		}
		if cfg.Redis.NotifierBreakerHalfOpenMax < 1 {
			return fmt.Errorf("redis.notifier_breaker_half_open_max must be >= 1")
		}
		if cfg.Redis.NotifierTimeout <= 0 {
			return fmt.Errorf("redis.notifier_timeout must be > 0")
		}
	}

	if cfg.API.Addr == "" {
		return fmt.Errorf("api.addr must not be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
		if cfg.Metrics.Path == "" {
			return fmt.Errorf("metrics.path must not be empty when metrics are enabled")
		}
	}

	return nil
}
