package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/alhumaw/MISP-tools-fork/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func bindEnvVariables() {
	viper.BindEnv("intel.base_url", "INTEL_BASE_URL")
	viper.BindEnv("intel.client_id", "INTEL_CLIENT_ID")
	viper.BindEnv("intel.client_secret", "INTEL_CLIENT_SECRET")

	viper.BindEnv("misp.url", "MISP_URL")
	viper.BindEnv("misp.auth_key", "MISP_AUTH_KEY")
	viper.BindEnv("misp.org_uuid", "MISP_ORG_UUID")

	viper.BindEnv("checkpoint.backend", "CHECKPOINT_BACKEND")
	viper.BindEnv("checkpoint.file_path", "CHECKPOINT_FILE_PATH")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")
}

func setDefaults() {
	viper.SetDefault("intel.actor_kind", "all")
	viper.SetDefault("sync.lookback_days", constants.DefaultLookbackDays)
	viper.SetDefault("sync.unknown_region", "UNIDENTIFIED")
	viper.SetDefault("checkpoint.backend", "file")
	viper.SetDefault("checkpoint.redis_key", constants.CheckpointRedisKey)
	viper.SetDefault("misp.thread_count", constants.DefaultConcurrency)
	viper.SetDefault("retry.max_attempts", constants.RetryMaxAttempts)
	viper.SetDefault("retry.initial_interval", constants.RetryInitialInterval)
	viper.SetDefault("retry.multiplier", constants.RetryMultiplier)
	viper.SetDefault("retry.max_interval", constants.RetryMaxInterval)
	viper.SetDefault("logging.level", "info")
}
