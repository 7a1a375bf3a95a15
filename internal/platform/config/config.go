package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv            string `env:"APP_ENV" default:"development"`
	Port              int    `env:"PORT" default:"5001"`
	PortRetryAttempts int    `env:"PORT_RETRY_ATTEMPTS" default:"10"`
	LogLevel          string `env:"LOG_LEVEL" default:"info"`
	LogFormat         string `env:"LOG_FORMAT" default:"text"`

	// Number of events pushed to a freshly connected client.
	SnapshotSize int `env:"SNAPSHOT_SIZE" default:"10"`
	// Number of events returned by the listing endpoint.
	ListLimit int `env:"LIST_LIMIT" default:"20"`

	IngressRateLimit float64 `env:"INGRESS_RATE_LIMIT" default:"10"`
	IngressRateBurst int     `env:"INGRESS_RATE_BURST" default:"20"`

	MaxWebSocketConnections      int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxWebSocketConnectionsPerIP int `env:"MAX_WEBSOCKET_CONNECTIONS_PER_IP" default:"50"`

	StaticDir       string        `env:"STATIC_DIR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

const storeCapacity = 100

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

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	if !slices.Contains([]string{"development", "production", "test"}, cfg.AppEnv) {
		return fmt.Errorf("APP_ENV must be one of development, production, test; got %q", cfg.AppEnv)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.PortRetryAttempts < 1 {
		return errors.New("PORT_RETRY_ATTEMPTS must be at least 1")
	}
	if cfg.Port+cfg.PortRetryAttempts-1 > 65535 {
		return errors.New("PORT_RETRY_ATTEMPTS would probe past port 65535")
	}
	if cfg.SnapshotSize < 0 || cfg.SnapshotSize > storeCapacity {
		return fmt.Errorf("SNAPSHOT_SIZE must be between 0 and %d, got %d", storeCapacity, cfg.SnapshotSize)
	}
	if cfg.ListLimit < 1 || cfg.ListLimit > storeCapacity {
		return fmt.Errorf("LIST_LIMIT must be between 1 and %d, got %d", storeCapacity, cfg.ListLimit)
	}
	if cfg.IngressRateLimit <= 0 {
		return errors.New("INGRESS_RATE_LIMIT must be positive")
	}
	if cfg.IngressRateBurst < 1 {
		return errors.New("INGRESS_RATE_BURST must be at least 1")
	}
	if cfg.MaxWebSocketConnections < 1 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be at least 1")
	}
	if cfg.MaxWebSocketConnectionsPerIP < 1 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS_PER_IP must be at least 1")
	}
	if cfg.MaxWebSocketConnectionsPerIP > cfg.MaxWebSocketConnections {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS_PER_IP must not exceed MAX_WEBSOCKET_CONNECTIONS")
	}
	if cfg.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.StaticDir != "" {
		info, err := os.Stat(cfg.StaticDir)
		if err != nil {
			return fmt.Errorf("STATIC_DIR: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("STATIC_DIR %q is not a directory", cfg.StaticDir)
		}
	}
	return nil
}
