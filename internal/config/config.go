package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PGDSN string

	RedisAddr     string
	RedisPassword string
	PresenceTTL   time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string
	TokenTTL  time.Duration

	HubWriteTimeout time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		PresenceTTL:     60 * time.Second,
		KafkaTopic:      "ride-events",
		JWTSecret:       "local-dev-secret",
		TokenTTL:        24 * time.Hour,
		HubWriteTimeout: 5 * time.Second,
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setDurationFromEnv(&cfg.PresenceTTL, "PRESENCE_TTL", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setStringFromEnv(&cfg.JWTSecret, "JWT_SECRET")
	setDurationFromEnv(&cfg.TokenTTL, "TOKEN_TTL", &errs)
	setDurationFromEnv(&cfg.HubWriteTimeout, "HUB_WRITE_TIMEOUT", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must be > 0"))
	}
	if cfg.PresenceTTL <= 0 {
		errs = append(errs, fmt.Errorf("PRESENCE_TTL must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// UsingDefaultSecret reports whether the signing secret was left at its
// local-development default.
func (c ServerConfig) UsingDefaultSecret() bool {
	return c.JWTSecret == defaultServerConfig().JWTSecret
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
