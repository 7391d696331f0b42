package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	// ProviderSendURL is the upstream sending provider endpoint used by the
	// send worker.
	ProviderSendURL string `env:"PROVIDER_SEND_URL,required=true"`

	// CallbackSecretKey seals bearer tokens and queued callback payloads;
	// 32 bytes, hex encoded.
	CallbackSecretKey string `env:"CALLBACK_SECRET_KEY,required=true"`

	// Strategy labels per notification type; validated eagerly at startup.
	EmailProviderStrategy  string `env:"EMAIL_PROVIDER_STRATEGY,default=highest_priority"`
	SMSProviderStrategy    string `env:"SMS_PROVIDER_STRATEGY,default=highest_priority"`
	LetterProviderStrategy string `env:"LETTER_PROVIDER_STRATEGY,default=highest_priority"`

	CallbackMaxRetries        int `env:"CALLBACK_MAX_RETRIES,default=5"`
	CallbackRetryDelaySeconds int `env:"CALLBACK_RETRY_DELAY_SECONDS,default=300"`
	EventGraceWindowSeconds   int `env:"EVENT_GRACE_WINDOW_SECONDS,default=300"`

	DispatchRatePerSec int    `env:"DISPATCH_RATE_PER_SEC,default=100"`
	WorkerConcurrency  int    `env:"WORKER_CONCURRENCY,default=16"`
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
