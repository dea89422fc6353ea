package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	logLevels     = []string{"debug", "info", "warn", "error"}
	corpusSources = []string{"database", "templates", "http"}
)

// ValidateConfig checks the configuration for the environment it was loaded
// in. All problems are reported together.
func ValidateConfig(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port <= 0 || port > 65535 {
		add("server.port", "must be a port number, got %q", cfg.Server.Port)
	}

	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.Host == "" {
			add("database.host", "is required for postgres")
		}
		if cfg.Database.Name == "" {
			add("database.name", "is required for postgres")
		}
		if cfg.Database.User == "" {
			add("database.user", "is required for postgres")
		}
		if cfg.Environment != Development && cfg.Database.Password == "" {
			add("database.password", "is required in %s", cfg.Environment)
		}
	case "sqlite":
		if cfg.Database.Path == "" {
			add("database.path", "is required for sqlite")
		}
		if cfg.Environment == Production {
			add("database.driver", "sqlite is not supported in production")
		}
	default:
		add("database.driver", "must be postgres or sqlite, got %q", cfg.Database.Driver)
	}

	if cfg.Redis.Enabled && cfg.Redis.URL == "" && cfg.Redis.Host == "" {
		add("redis", "host or url is required when redis is enabled")
	}
	if cfg.S3.Enabled && cfg.S3.Bucket == "" {
		add("s3.bucket", "is required when s3 offload is enabled")
	}
	if !contains(corpusSources, cfg.Corpus.Source) {
		add("corpus.source", "must be one of %s", strings.Join(corpusSources, ", "))
	}
	if cfg.Corpus.Source == "http" && cfg.Corpus.URL == "" {
		add("corpus.url", "is required for the http corpus")
	}

	if cfg.Model.Name == "" {
		add("model.name", "is required")
	}
	if cfg.Model.TopK <= 0 {
		add("model.top_k", "must be positive")
	}
	if cfg.Training.Epochs <= 0 {
		add("training.epochs", "must be positive")
	}
	if cfg.Training.BatchSize <= 0 {
		add("training.batch_size", "must be positive")
	}
	if cfg.Training.MinRecipes < 2 {
		add("training.min_recipes", "must be at least 2")
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.Requests <= 0 || cfg.RateLimit.Window <= 0) {
		add("rate_limit", "requests and window must be positive when enabled")
	}
	if !contains(logLevels, cfg.Log.Level) {
		add("log.level", "must be one of %s", strings.Join(logLevels, ", "))
	}

	// The admin endpoints are unusable without a signing secret
	if cfg.Environment == Production || cfg.Environment == CI {
		if cfg.JWTSecret == "" {
			add("jwt_secret", "is required in %s", cfg.Environment)
		}
	}

	return errors.Join(errs...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
