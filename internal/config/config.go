package config

import (
	"time"
)

type Config struct {
	Intel          IntelConfig          `mapstructure:"intel"`
	MISP           MISPConfig           `mapstructure:"misp"`
	Sync           SyncConfig           `mapstructure:"sync"`
	Checkpoint     CheckpointConfig     `mapstructure:"checkpoint"`
	Tagging        TaggingConfig        `mapstructure:"tagging"`
	Retry          RetryConfig          `mapstructure:"retry"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

type IntelConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	// ActorKind filters the delta feed ("all", "targeted", "ecrime", ...).
	ActorKind string `mapstructure:"actor_kind"`
}

type MISPConfig struct {
	URL         string `mapstructure:"url"`
	AuthKey     string `mapstructure:"auth_key"`
	OrgUUID     string `mapstructure:"org_uuid"`
	ThreadCount int    `mapstructure:"thread_count"`
}

type SyncConfig struct {
	// LookbackDays bounds the first-run delta window; clamped to the maximum
	// lookback at run time.
	LookbackDays  int    `mapstructure:"lookback_days"`
	VerboseTags   bool   `mapstructure:"verbose_tags"`
	Publish       bool   `mapstructure:"publish"`
	UnknownRegion string `mapstructure:"unknown_region"`
}

type CheckpointConfig struct {
	Backend  string `mapstructure:"backend"` // "file" or "redis"
	FilePath string `mapstructure:"file_path"`
	RedisKey string `mapstructure:"redis_key"`
}

type TaggingConfig struct {
	// StaticTags are applied verbatim to every event.
	StaticTags []string `mapstructure:"static_tags"`
	// Taxonomic toggles the compliance tag families (type, iep, iep2,
	// information_security_data_source, tlp). Each family is independent.
	Taxonomic map[string]bool `mapstructure:"taxonomic"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type CircuitBreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
