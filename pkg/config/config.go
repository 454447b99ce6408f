package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the consulta authorization engine.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Quota     QuotaConfig     `mapstructure:"quota" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

type LoggerConfig struct {
	Level  string     `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string     `mapstructure:"format" validate:"omitempty,oneof=text json"`
	File   FileConfig `mapstructure:"file"`
}

// FileConfig enables log rotation to disk in addition to stdout.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type SentryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string for lib/pq.
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode,
	)
}

type RedisConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// QuotaConfig carries the credit policy: the ledger backend, the quota
// period and the daily limit for each role tier. Limits are re-read on
// config change so policy can move without a restart.
type QuotaConfig struct {
	Backend         string        `mapstructure:"backend" validate:"omitempty,oneof=postgres redis memory"`
	Period          time.Duration `mapstructure:"period" validate:"required"`
	Limits          QuotaLimits   `mapstructure:"limits"`
	BlockOnRestrict bool          `mapstructure:"block_on_restrict"`
}

type QuotaLimits struct {
	User    int `mapstructure:"user" validate:"gte=0"`
	Premium int `mapstructure:"premium" validate:"gte=0"`
	Admin   int `mapstructure:"admin" validate:"gte=0"`
	Owner   int `mapstructure:"owner" validate:"gte=0"`
}

// RateLimitRule pairs a request count with a window expressed as a duration
// string, e.g. "10s".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

type RateLimitConfig struct {
	PerUser   RateLimitRule            `mapstructure:"per_user"`
	Lookups   map[string]RateLimitRule `mapstructure:"lookups"`
	Whitelist []string                 `mapstructure:"whitelist"`
}

type JobsConfig struct {
	SweepCron   string `mapstructure:"sweep_cron"`
	SweepBatch  int    `mapstructure:"sweep_batch"`
	Concurrency int    `mapstructure:"concurrency"`
}
