package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends understood by the binaries.
const (
	BackendMongo    = "mongodb"
	BackendRedis    = "redis"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// ServerConfig holds all configuration for tokend and tokenctl.
// Tags use mapstructure for Viper unmarshalling; every key can be set from
// the environment with the TOKEN_ prefix.
type ServerConfig struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	Collection     string `mapstructure:"COLLECTION"`
	MongoURI       string `mapstructure:"MONGO_URI"`
	MongoDBName    string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	RedisPrefix    string `mapstructure:"REDIS_PREFIX"`
	BoltPath       string `mapstructure:"BOLT_PATH"`
	PostgresDSN    string `mapstructure:"POSTGRES_DSN"`

	// ConnectRetries is how often opening a networked backend is retried.
	ConnectRetries int `mapstructure:"CONNECT_RETRIES"`

	SessionTimeout  time.Duration `mapstructure:"SESSION_TIMEOUT"`
	FinalTimeout    time.Duration `mapstructure:"FINAL_TIMEOUT"`
	FinalPolicy     string        `mapstructure:"FINAL_POLICY"`
	CleanupInterval time.Duration `mapstructure:"CLEANUP_INTERVAL"`
	TokenGenerator  string        `mapstructure:"TOKEN_GENERATOR"`

	// AdminRole, when set, requires a live bearer token carrying this role
	// on the collection wide HTTP routes.
	AdminRole string `mapstructure:"ADMIN_ROLE"`

	// AuditEnabled writes an audit line to stdout per admin operation.
	AuditEnabled bool `mapstructure:"AUDIT_ENABLED"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	MetricsEnabled  bool   `mapstructure:"METRICS_ENABLED"`
	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("STORAGE_BACKEND", BackendMongo)
	v.SetDefault("COLLECTION", "tokens")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "shadow_token")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "shadow-token")
	v.SetDefault("BOLT_PATH", "data/tokens.db")
	v.SetDefault("POSTGRES_DSN", "postgres://localhost:5432/shadow_token?sslmode=disable")
	v.SetDefault("CONNECT_RETRIES", 3)
	v.SetDefault("SESSION_TIMEOUT", time.Hour)
	v.SetDefault("FINAL_TIMEOUT", 100*365*24*time.Hour)
	v.SetDefault("FINAL_POLICY", "refresh")
	v.SetDefault("CLEANUP_INTERVAL", time.Minute)
	v.SetDefault("TOKEN_GENERATOR", "uuid")
	v.SetDefault("ADMIN_ROLE", "")
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "shadow-token")
}

// LoadConfig reads configuration from file, environment variables and
// defaults. An empty path searches token_config.yaml in the usual places.
func LoadConfig(path string) (*ServerConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("token_config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/shadow-token/")
		v.AddConfigPath("$HOME/.shadow-token")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TOKEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file means defaults and env vars only.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the binaries cannot start without.
func (c *ServerConfig) Validate() error {
	switch c.StorageBackend {
	case BackendMongo, BackendRedis, BackendBolt, BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.Collection == "" {
		return errors.New("collection name must not be empty")
	}
	if c.SessionTimeout <= 0 || c.FinalTimeout <= 0 {
		return errors.New("session and final timeouts must be positive")
	}
	if c.ConnectRetries < 0 {
		return errors.New("connect retries must not be negative")
	}
	if c.CleanupInterval < 0 {
		return errors.New("cleanup interval must not be negative")
	}
	return nil
}
