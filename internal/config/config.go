// Package config loads service configuration from the environment, with an
// optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	imgpkg "bgfill/internal/image"
)

type Config struct {
	Port      string `env:"PORT" default:"5000"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	RemoveBGAPIKey          string        `env:"REMOVEBG_API_KEY"`
	RemoveBGURL             string        `env:"REMOVEBG_URL" default:"https://api.remove.bg/v1.0/removebg"`
	RemoveBGTimeout         time.Duration `env:"REMOVEBG_TIMEOUT" default:"60s"`
	RemoveBGBreakerFailures int           `env:"REMOVEBG_BREAKER_FAILURES" default:"5"`

	AssetsDir    string  `env:"ASSETS_DIR" default:"public/assets"`
	TintColor    string  `env:"TINT_COLOR" default:"#66D4FF"`
	TintFactor   float64 `env:"TINT_FACTOR" default:"0.2"`
	ResizeFilter string  `env:"RESIZE_FILTER" default:"linear"`

	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" default:"33554432"` // 32 MiB
	MaxPixels      int64 `env:"MAX_PIXELS" default:"50000000"`

	RateGlobal      int `env:"RATE_GLOBAL" default:"0"`
	RateGlobalBurst int `env:"RATE_GLOBAL_BURST" default:"0"`
	RateIP          int `env:"RATE_IP" default:"0"`
	RateIPBurst     int `env:"RATE_IP_BURST" default:"0"`

	CORSOrigins string `env:"CORS_ORIGINS" default:"*"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}
	if cfg.AssetsDir == "" {
		return errors.New("ASSETS_DIR is required")
	}
	if cfg.RemoveBGURL == "" {
		return errors.New("REMOVEBG_URL is required")
	}
	if _, err := imgpkg.ParseColor(cfg.TintColor); err != nil {
		return fmt.Errorf("TINT_COLOR: %w", err)
	}
	if cfg.TintFactor < 0 || cfg.TintFactor > 1 {
		return fmt.Errorf("TINT_FACTOR must be between 0 and 1, got %v", cfg.TintFactor)
	}
	if _, err := imgpkg.ParseFilter(cfg.ResizeFilter); err != nil {
		return fmt.Errorf("RESIZE_FILTER: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.MaxPixels <= 0 {
		return errors.New("MAX_PIXELS must be positive")
	}
	if cfg.RemoveBGBreakerFailures < 0 {
		return errors.New("REMOVEBG_BREAKER_FAILURES must not be negative")
	}
	for name, v := range map[string]int{
		"RATE_GLOBAL":       cfg.RateGlobal,
		"RATE_GLOBAL_BURST": cfg.RateGlobalBurst,
		"RATE_IP":           cfg.RateIP,
		"RATE_IP_BURST":     cfg.RateIPBurst,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
