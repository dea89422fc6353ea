package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ALCHEMORSEL_SERVER_PORT
const EnvPrefix = "ALCHEMORSEL"

// Config holds all configuration for the application
type Config struct {
	Environment Environment     `mapstructure:"-"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	S3          S3Settings      `mapstructure:"s3"`
	Corpus      CorpusConfig    `mapstructure:"corpus"`
	Model       ModelConfig     `mapstructure:"model"`
	Training    TrainingConfig  `mapstructure:"training"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Log         LogConfig       `mapstructure:"log"`
	JWTSecret   string          `mapstructure:"jwt_secret"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// Addr is host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig selects postgres or sqlite
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN is the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig configures the cache, training lock and rate limiter backend.
// URL wins over the discrete fields when set.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	URL      string `mapstructure:"url"`
}

// S3Settings configures model blob offload
type S3Settings struct {
	Enabled      bool   `mapstructure:"enabled"`
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// CorpusConfig selects where recipes are read from: "database",
// "templates" or "http"
type CorpusConfig struct {
	Source  string        `mapstructure:"source"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ModelConfig names the served model
type ModelConfig struct {
	Name     string        `mapstructure:"name"`
	Type     string        `mapstructure:"type"`
	TopK     int           `mapstructure:"top_k"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// TrainingConfig holds defaults for training runs
type TrainingConfig struct {
	ExamplesPerRecipe  int           `mapstructure:"examples_per_recipe"`
	MinLogged          int           `mapstructure:"min_logged"`
	MinRecipes         int           `mapstructure:"min_recipes"`
	Epochs             int           `mapstructure:"epochs"`
	BatchSize          int           `mapstructure:"batch_size"`
	Patience           int           `mapstructure:"patience"`
	Timeout            time.Duration `mapstructure:"timeout"`
	SelectArchitecture bool          `mapstructure:"select_architecture"`
	WidthDivisor       int           `mapstructure:"width_divisor"`
	Parallel           int           `mapstructure:"parallel"`
	Seed               int64         `mapstructure:"seed"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
}

// RateLimitConfig limits requests per client and window
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LogConfig configures zap
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps the unprefixed variable names used by the deployment
// manifests onto config keys
var legacyEnv = map[string]string{
	"server.host":       "SERVER_HOST",
	"server.port":       "SERVER_PORT",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.name":     "DB_NAME",
	"database.ssl_mode": "DB_SSL_MODE",
	"redis.host":        "REDIS_HOST",
	"redis.port":        "REDIS_PORT",
	"redis.password":    "REDIS_PASSWORD",
	"redis.url":         "REDIS_URL",
	"s3.bucket":         "S3_BUCKET_NAME",
	"s3.region":         "AWS_REGION",
	"jwt_secret":        "JWT_SECRET",
	"log.level":         "LOG_LEVEL",
}

// secretKeys maps docker secret file names onto config keys
var secretKeys = map[string]string{
	"db_user":        "database.user",
	"db_password":    "database.password",
	"jwt_secret":     "jwt_secret",
	"redis_password": "redis.password",
	"redis_url":      "redis.url",
}

// LoadConfig layers defaults, a .env file, environment variables and docker
// secrets, then validates the result for the current environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	env := GetEnvironment()
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	// CI takes sensitive values from the environment only
	if env != CI {
		for name, key := range secretKeys {
			if value := readSecret(name); value != "" {
				v.Set(key, value)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Environment = env

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "alchemorsel")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "alchemorsel.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.url", "")

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.bucket", "alchemorsel-models")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.use_path_style", false)

	v.SetDefault("corpus.source", "database")
	v.SetDefault("corpus.url", "")
	v.SetDefault("corpus.timeout", "10s")

	v.SetDefault("model.name", "recipe_recommender")
	v.SetDefault("model.type", "neural_network")
	v.SetDefault("model.top_k", 10)
	v.SetDefault("model.cache_ttl", "10m")

	v.SetDefault("training.examples_per_recipe", 40)
	v.SetDefault("training.min_logged", 100)
	v.SetDefault("training.min_recipes", 10)
	v.SetDefault("training.epochs", 100)
	v.SetDefault("training.batch_size", 32)
	v.SetDefault("training.patience", 15)
	v.SetDefault("training.timeout", "30m")
	v.SetDefault("training.select_architecture", false)
	v.SetDefault("training.width_divisor", 4)
	v.SetDefault("training.parallel", 2)
	v.SetDefault("training.seed", 42)
	v.SetDefault("training.lock_ttl", "1h")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt_secret", "")
}

// readSecret reads a Docker secret from the secrets directory
func readSecret(name string) string {
	secretsDir := os.Getenv("SECRETS_DIR")
	if secretsDir == "" {
		secretsDir = "/run/secrets"
	}
	if data, err := os.ReadFile(filepath.Join(secretsDir, name)); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}
