package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const PROD_STRING = "prod"

// Config holds all application configuration loaded from environment.
type Config struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`

	// Empty DB_DSN runs every store in memory.
	DBDSN string `envconfig:"DB_DSN"`

	// Empty RABBIT_URL logs domain events instead of publishing them.
	RabbitURL      string `envconfig:"RABBIT_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"facility.events"`

	SettingsFile  string        `envconfig:"SETTINGS_FILE"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	MetricsAddr   string        `envconfig:"METRICS_ADDR" default:":9090"`
	HoldTimeout   time.Duration `envconfig:"HOLD_TIMEOUT" default:"30m"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == PROD_STRING
}

// Load loads configuration from .env (optional) and environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	if cfg.HoldTimeout <= 0 {
		return nil, fmt.Errorf("HOLD_TIMEOUT must be positive, got %s", cfg.HoldTimeout)
	}
	return cfg, nil
}
