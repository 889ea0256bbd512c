package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// EngineConfig holds the scheduler and executor knobs. Values come from the
// environment so deployments can tune capacity without a rebuild.
type EngineConfig struct {
	Capacity       int           `env:"ENGINE_CAPACITY,default=3"`
	TickInterval   time.Duration `env:"ENGINE_TICK,default=2s"`
	MaxRetries     int           `env:"ENGINE_MAX_RETRIES,default=3"`
	BackoffInitial time.Duration `env:"ENGINE_BACKOFF_INITIAL,default=5s"`
	BackoffMax     time.Duration `env:"ENGINE_BACKOFF_MAX,default=5m"`
	StallThreshold time.Duration `env:"ENGINE_STALL_THRESHOLD,default=2m"`
	ListenAddr     string        `env:"LISTEN_ADDR,default=:8080"`
}

// to help with testing
var envProcess = envconfig.Process

func LoadEngineConfigFromEnv(ctx context.Context) (*EngineConfig, error) {
	var cfg EngineConfig
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateEngineConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateEngineConfig(cfg *EngineConfig) error {
	var errors []string

	if cfg.Capacity < 1 {
		errors = append(errors, "ENGINE_CAPACITY must be at least 1")
	}

	if cfg.TickInterval <= 0 {
		errors = append(errors, "ENGINE_TICK must be positive")
	}

	if cfg.MaxRetries < 0 {
		errors = append(errors, "ENGINE_MAX_RETRIES must be non-negative")
	}

	if cfg.BackoffInitial <= 0 {
		errors = append(errors, "ENGINE_BACKOFF_INITIAL must be positive")
	}

	if cfg.BackoffMax < cfg.BackoffInitial {
		errors = append(errors, "ENGINE_BACKOFF_MAX must not be smaller than ENGINE_BACKOFF_INITIAL")
	}

	if cfg.StallThreshold <= 0 {
		errors = append(errors, "ENGINE_STALL_THRESHOLD must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}
