package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Stream     StreamConfig     `yaml:"stream"`
	Sync       SyncConfig       `yaml:"sync"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the local read-only API configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// UpstreamConfig holds the gate-management REST API connection settings.
type UpstreamConfig struct {
	BaseURL        string            `yaml:"base_url"`
	AuthToken      string            `yaml:"auth_token"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

// StreamConfig holds the WebSocket event-stream settings.
type StreamConfig struct {
	URL                  string        `yaml:"url"` // overrides derivation from upstream.base_url
	ReconnectInitialMS   int           `yaml:"reconnect_initial_ms"`
	ReconnectMaxMS       int           `yaml:"reconnect_max_ms"`
	ReconnectMaxAttempts int           `yaml:"reconnect_max_attempts"`
	ReconnectInitial     time.Duration `yaml:"-"` // Ignored by YAML parser
	ReconnectMax         time.Duration `yaml:"-"`
}

// SyncConfig holds the reconciliation and polling settings.
type SyncConfig struct {
	JobSiteID          string        `yaml:"job_site_id"`
	PollIntervalSec    int           `yaml:"poll_interval_seconds"`
	StalenessSec       int           `yaml:"staleness_seconds"`
	RefetchDebounceMS  int           `yaml:"refetch_debounce_ms"`
	PollInterval       time.Duration `yaml:"-"`
	StalenessThreshold time.Duration `yaml:"-"`
	RefetchDebounce    time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the alert worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Upstream.TimeoutSeconds <= 0 {
		cfg.Upstream.TimeoutSeconds = 30
	}

	if cfg.Stream.ReconnectInitialMS <= 0 {
		cfg.Stream.ReconnectInitialMS = 1000
	}
	if cfg.Stream.ReconnectMaxMS <= 0 {
		cfg.Stream.ReconnectMaxMS = 30000
	}
	if cfg.Stream.ReconnectMaxAttempts <= 0 {
		cfg.Stream.ReconnectMaxAttempts = 5
	}
	cfg.Stream.ReconnectInitial = time.Duration(cfg.Stream.ReconnectInitialMS) * time.Millisecond
	cfg.Stream.ReconnectMax = time.Duration(cfg.Stream.ReconnectMaxMS) * time.Millisecond

	if cfg.Sync.PollIntervalSec <= 0 {
		cfg.Sync.PollIntervalSec = 30
	}
	if cfg.Sync.StalenessSec <= 0 {
		cfg.Sync.StalenessSec = 10
	}
	if cfg.Sync.RefetchDebounceMS <= 0 {
		cfg.Sync.RefetchDebounceMS = 500
	}
	cfg.Sync.PollInterval = time.Duration(cfg.Sync.PollIntervalSec) * time.Second
	cfg.Sync.StalenessThreshold = time.Duration(cfg.Sync.StalenessSec) * time.Second
	cfg.Sync.RefetchDebounce = time.Duration(cfg.Sync.RefetchDebounceMS) * time.Millisecond

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
