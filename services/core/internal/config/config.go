package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is Core's full runtime configuration, loaded from the
// environment per spec §6 ("every timer and limit named in §5 is
// exposed as an env var; connection strings for the store and bus are
// required; bind address is required").
type Config struct {
	BindAddr string `env:"CORE_BIND_ADDR,required"`

	PostgresDSN string `env:"CORE_POSTGRES_DSN,required"`

	RabbitMQURL       string        `env:"CORE_RABBITMQ_URL,required"`
	BusReconnectDelay time.Duration `env:"CORE_BUS_RECONNECT_DELAY" envDefault:"10s"`

	JWTSecret    string   `env:"CORE_JWT_SECRET,required"`
	JWTAlgorithm []string `env:"CORE_JWT_ALGORITHMS" envDefault:"HS256" envSeparator:","`

	MaxContentBytes int `env:"CORE_MAX_CONTENT_BYTES" envDefault:"4096"`
	MaxBodyBytes    int `env:"CORE_MAX_BODY_BYTES" envDefault:"8192"`

	ShutdownGrace time.Duration `env:"CORE_SHUTDOWN_GRACE" envDefault:"15s"`
}

// Load reads a .env file if present (local development convenience,
// mirroring Pachada-go_api_nosql's entrypoint) and then parses the
// process environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
