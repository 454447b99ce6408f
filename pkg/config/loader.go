// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from YAML files and environment variables,
// validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// env files are optional
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = env

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, v, nil
}

// WatchQuotaPolicy re-reads the quota section whenever the config file
// changes and hands the fresh policy to onChange. Invalid edits are logged
// and skipped, the previous policy stays in effect.
func WatchQuotaPolicy(v *viper.Viper, log *slog.Logger, onChange func(QuotaConfig)) {
	if v == nil || onChange == nil {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			if log != nil {
				log.Error("config reload failed", slog.String("file", e.Name), slog.Any("error", err))
			}
			return
		}

		validate := validator.New(validator.WithRequiredStructEnabled())
		if err := validate.Struct(cfg.Quota); err != nil {
			if log != nil {
				log.Error("config reload rejected", slog.String("file", e.Name), slog.Any("error", err))
			}
			return
		}

		if log != nil {
			log.Info("quota policy reloaded", slog.String("file", e.Name))
		}
		onChange(cfg.Quota)
	})
	v.WatchConfig()
}
