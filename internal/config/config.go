package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// RealtimeURL and RealtimeModel configure the upstream translation
	// endpoint. The API key is not configured here: the speaker supplies
	// it per session over the websocket.
	RealtimeURL   string `env:"REALTIME_URL" default:"wss://api.openai.com/v1/realtime"`
	RealtimeModel string `env:"REALTIME_MODEL" default:"gpt-4o-realtime-preview"`

	MaxViewers int `env:"MAX_VIEWERS" default:"256"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

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
		return fmt.Errorf("PORT is required")
	}
	if cfg.RealtimeURL == "" {
		return fmt.Errorf("REALTIME_URL is required")
	}
	if cfg.MaxViewers <= 0 {
		return fmt.Errorf("MAX_VIEWERS must be positive, got %d", cfg.MaxViewers)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %v", cfg.ShutdownTimeout)
	}
	return nil
}
