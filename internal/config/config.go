package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN        string `env:"DATABASE_DSN,required=true"`
	RedisURL           string `env:"REDIS_URL,required=true"`
	RabbitMQURL        string `env:"RABBITMQ_URL"`
	EmailRelayURL      string `env:"EMAIL_RELAY_URL"`
	ProfileServiceURL  string `env:"PROFILE_SERVICE_URL"`
	MaxDeliveryRetries int    `env:"MAX_DELIVERY_ATTEMPTS,default=3"`
	DeliveryTimeoutSec int    `env:"DELIVERY_TIMEOUT_SEC,default=10"`
	DrainBatchSize     int    `env:"DRAIN_BATCH_SIZE,default=100"`
	DrainIntervalSec   int    `env:"DRAIN_INTERVAL_SEC,default=15"`
	DrainConcurrency   int    `env:"DRAIN_CONCURRENCY,default=8"`
	RateLimitPerSec    int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	APIPort            int    `env:"API_PORT,default=8080"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
