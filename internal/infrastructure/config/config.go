// Package config loads process configuration with viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Engine   EngineConfig
	Worker   WorkerConfig
}

// AppConfig holds HTTP server settings.
type AppConfig struct {
	Name            string
	Env             string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MetricsEnabled  bool
}

// IsDevelopment reports whether the app runs in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string // debug, info, warn, error
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL              string
	MaxConns         int32
	MinConns         int32
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// RedisConfig holds Redis settings. An empty Addr disables Redis locking.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// JWTConfig holds bearer token settings.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

// EngineConfig tunes the unit engine.
type EngineConfig struct {
	LockTTL              time.Duration
	LockWait             time.Duration
	MaxCreateAttempts    int
	OperationTTL         time.Duration
	HistoryCompressBytes int
	DefaultLowStockLimit int
	PrefixCacheSize      int
}

// WorkerConfig holds background sweep settings.
type WorkerConfig struct {
	ExpiryInterval  time.Duration
	CleanupInterval time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "unitrack")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.read_timeout", 15*time.Second)
	v.SetDefault("app.write_timeout", 30*time.Second)
	v.SetDefault("app.idle_timeout", 60*time.Second)
	v.SetDefault("app.shutdown_timeout", 30*time.Second)
	v.SetDefault("app.metrics_enabled", true)

	v.SetDefault("log.level", "info")

	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.statement_timeout", 30*time.Second)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.issuer", "unitrack")
	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)

	v.SetDefault("engine.lock_ttl", 30*time.Second)
	v.SetDefault("engine.lock_wait", 5*time.Second)
	v.SetDefault("engine.max_create_attempts", 3)
	v.SetDefault("engine.operation_ttl", 24*time.Hour)
	v.SetDefault("engine.history_compress_bytes", 4096)
	v.SetDefault("engine.default_low_stock_limit", 10)
	v.SetDefault("engine.prefix_cache_size", 4096)

	v.SetDefault("worker.expiry_interval", time.Hour)
	v.SetDefault("worker.cleanup_interval", 6*time.Hour)
}

// Load reads configuration. Priority, highest first:
// environment variables with the UNITRACK_ prefix (UNITRACK_DATABASE_URL),
// a .env file in the working directory, config.yaml in the working
// directory or /etc/unitrack, built-in defaults.
func Load() (*Config, error) {
	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/unitrack")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("UNITRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:            v.GetString("app.name"),
			Env:             v.GetString("app.env"),
			Port:            v.GetString("app.port"),
			ReadTimeout:     v.GetDuration("app.read_timeout"),
			WriteTimeout:    v.GetDuration("app.write_timeout"),
			IdleTimeout:     v.GetDuration("app.idle_timeout"),
			ShutdownTimeout: v.GetDuration("app.shutdown_timeout"),
			CORSOrigins:     splitList(v.GetString("app.cors_origins")),
			MetricsEnabled:  v.GetBool("app.metrics_enabled"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		Database: DatabaseConfig{
			URL:              v.GetString("database.url"),
			MaxConns:         v.GetInt32("database.max_conns"),
			MinConns:         v.GetInt32("database.min_conns"),
			ConnMaxLifetime:  v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime:  v.GetDuration("database.conn_max_idle_time"),
			StatementTimeout: v.GetDuration("database.statement_timeout"),
			AutoMigrate:      v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("jwt.secret"),
			Issuer:         v.GetString("jwt.issuer"),
			AccessTokenTTL: v.GetDuration("jwt.access_token_ttl"),
		},
		Engine: EngineConfig{
			LockTTL:              v.GetDuration("engine.lock_ttl"),
			LockWait:             v.GetDuration("engine.lock_wait"),
			MaxCreateAttempts:    v.GetInt("engine.max_create_attempts"),
			OperationTTL:         v.GetDuration("engine.operation_ttl"),
			HistoryCompressBytes: v.GetInt("engine.history_compress_bytes"),
			DefaultLowStockLimit: v.GetInt("engine.default_low_stock_limit"),
			PrefixCacheSize:      v.GetInt("engine.prefix_cache_size"),
		},
		Worker: WorkerConfig{
			ExpiryInterval:  v.GetDuration("worker.expiry_interval"),
			CleanupInterval: v.GetDuration("worker.cleanup_interval"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.JWT.Secret == "" && !c.App.IsDevelopment() {
		errs = append(errs, errors.New("jwt.secret is required outside development"))
	}
	if c.Engine.MaxCreateAttempts < 1 {
		errs = append(errs, errors.New("engine.max_create_attempts must be at least 1"))
	}
	if c.Worker.ExpiryInterval <= 0 || c.Worker.CleanupInterval <= 0 {
		errs = append(errs, errors.New("worker intervals must be positive"))
	}
	return errors.Join(errs...)
}

// splitList splits a comma separated setting, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
