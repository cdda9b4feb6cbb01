// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a development default; production overrides
// through SUBPORT_* variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	// BackendTokenHash is the bcrypt hash of the backend operator token.
	// Privileged routes compare the presented token against it.
	BackendTokenHash string
	// FulfillmentURL points at the warehouse service; empty disables
	// cancellation calls.
	FulfillmentURL  string
	ShutdownTimeout time.Duration

	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// PostgresConfig selects the order/audit persistence backend. An empty DSN
// runs the service on the in-memory stores, which is the dev default.
type PostgresConfig struct {
	DSN string
}

// RedisConfig configures the submission-token guard backend. An empty URL
// falls back to the in-process guard.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event fan-out. No brokers means audit
// events stay in the store only.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	Partitions int32
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:             envOr("SUBPORT_ADDR", ":8080"),
		JWTSigningKey:    envOr("SUBPORT_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:        envOr("SUBPORT_JWT_ISSUER", "subport"),
		JWTAudience:      envOr("SUBPORT_JWT_AUDIENCE", "subport-portal"),
		BackendTokenHash: os.Getenv("SUBPORT_BACKEND_TOKEN_HASH"),
		FulfillmentURL:   os.Getenv("SUBPORT_FULFILLMENT_URL"),
		ShutdownTimeout:  envDurationOr("SUBPORT_SHUTDOWN_TIMEOUT", 10*time.Second),
		Postgres: PostgresConfig{
			DSN: os.Getenv("SUBPORT_POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("SUBPORT_REDIS_URL"),
			PoolSize:     envIntOr("SUBPORT_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("SUBPORT_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("SUBPORT_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("SUBPORT_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("SUBPORT_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Topic:      envOr("SUBPORT_KAFKA_AUDIT_TOPIC", "subport.audit"),
			Partitions: int32(envIntOr("SUBPORT_KAFKA_AUDIT_PARTITIONS", 3)),
		},
	}
	if brokers := os.Getenv("SUBPORT_KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, broker)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
