package config

import (
	"fmt"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateMISP(cfg.MISP); err != nil {
		errors = append(errors, err)
	}

	if err := validateSync(cfg.Sync); err != nil {
		errors = append(errors, err)
	}

	if err := validateCheckpoint(cfg.Checkpoint); err != nil {
		errors = append(errors, err)
	}

	if err := validateRetry(cfg.Retry); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateMISP(cfg MISPConfig) error {
	if cfg.URL == "" {
		return &ValidationError{
			Field:   "misp.url",
			Message: "MISP URL is required",
		}
	}

	if cfg.OrgUUID == "" {
		return &ValidationError{
			Field:   "misp.org_uuid",
			Message: "owning organisation UUID is required",
		}
	}

	if cfg.ThreadCount < 1 {
		return &ValidationError{
			Field:   "misp.thread_count",
			Message: fmt.Sprintf("thread count must be at least 1, got %d", cfg.ThreadCount),
		}
	}

	return nil
}

func validateSync(cfg SyncConfig) error {
	if cfg.LookbackDays < 1 {
		return &ValidationError{
			Field:   "sync.lookback_days",
			Message: fmt.Sprintf("lookback window must be at least 1 day, got %d", cfg.LookbackDays),
		}
	}

	return nil
}

func validateCheckpoint(cfg CheckpointConfig) error {
	switch cfg.Backend {
	case "file":
		if cfg.FilePath == "" {
			return &ValidationError{
				Field:   "checkpoint.file_path",
				Message: "file path is required for the file backend",
			}
		}
	case "redis":
		if cfg.RedisKey == "" {
			return &ValidationError{
				Field:   "checkpoint.redis_key",
				Message: "redis key is required for the redis backend",
			}
		}
	default:
		return &ValidationError{
			Field:   "checkpoint.backend",
			Message: fmt.Sprintf("backend must be \"file\" or \"redis\", got %q", cfg.Backend),
		}
	}

	return nil
}

func validateRetry(cfg RetryConfig) error {
	if cfg.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "retry.max_attempts",
			Message: fmt.Sprintf("max attempts must be at least 1, got %d", cfg.MaxAttempts),
		}
	}

	return nil
}
