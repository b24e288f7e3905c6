// Package config loads WS-Delivery's runtime configuration, mirroring
// core/internal/config's env-var-per-setting shape (spec §6: "every
// timer and limit named in §5 is exposed as an env var").
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	BindAddr string `env:"WSD_BIND_ADDR,required"`

	RedisAddr     string `env:"WSD_REDIS_ADDR,required"`
	RedisPassword string `env:"WSD_REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"WSD_REDIS_DB" envDefault:"0"`

	RabbitMQURL       string        `env:"WSD_RABBITMQ_URL,required"`
	BusReconnectDelay time.Duration `env:"WSD_BUS_RECONNECT_DELAY" envDefault:"10s"`

	JWTSecret    string   `env:"WSD_JWT_SECRET,required"`
	JWTAlgorithm []string `env:"WSD_JWT_ALGORITHMS" envDefault:"HS256" envSeparator:","`

	TicketLifespan time.Duration `env:"WSD_TICKET_LIFESPAN" envDefault:"30s"`
	TicketRatePS   float64       `env:"WSD_TICKET_RATE_PER_SECOND" envDefault:"1"`
	TicketBurst    int           `env:"WSD_TICKET_BURST" envDefault:"5"`

	ConnectionBufferSize int           `env:"WSD_CONNECTION_BUFFER_SIZE" envDefault:"16"`
	PingInterval         time.Duration `env:"WSD_PING_INTERVAL" envDefault:"30s"`
	RetryInterval        time.Duration `env:"WSD_RETRY_INTERVAL" envDefault:"10s"`
	RetryMaxCount        int           `env:"WSD_RETRY_MAX_COUNT" envDefault:"5"`

	DedupTTL           time.Duration `env:"WSD_DEDUP_TTL" envDefault:"30s"`
	DedupSweepInterval time.Duration `env:"WSD_DEDUP_SWEEP_INTERVAL" envDefault:"120s"`

	ShutdownGrace time.Duration `env:"WSD_SHUTDOWN_GRACE" envDefault:"15s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
