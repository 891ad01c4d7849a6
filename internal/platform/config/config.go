package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-wide configuration for the identity registry.
// It is loaded once at startup and passed into the engine at construction;
// nothing in the engine reads the environment directly.
type Config struct {
	Addr        string
	MetricsAddr string

	// DatabaseURL points at the registry PostgreSQL instance. Empty means
	// in-memory stores (dev and tests).
	DatabaseURL string
	// RedisURL enables distributed per-identifier update locks. Empty
	// falls back to in-process locking.
	RedisURL string
	// KafkaBrokers enables the lifecycle event publisher. Empty keeps
	// events on the in-process sink.
	KafkaBrokers []string
	EventTopic   string

	// ShardModulus partitions identifiers across salt shards.
	ShardModulus int64
	// ActiveStatus is the status code that keeps credentials issuable.
	ActiveStatus string
	// BiometricCategories lists payload keys whose documents carry
	// biometric containers rather than demographic scans.
	BiometricCategories []string
	// PartnerID is the downstream partner credited on reissue requests.
	PartnerID string

	// BlobDir is the pebble-backed blob store directory. Empty means
	// in-memory blobs.
	BlobDir string

	JWTSigningKey string
	// APIKeyHash is a bcrypt hash of the service API key. Empty disables
	// API key checks (dev only).
	APIKeyHash string

	ShutdownTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("IDREG_ADDR", ":8080"),
		MetricsAddr:     envOr("IDREG_METRICS_ADDR", ":9090"),
		DatabaseURL:     os.Getenv("IDREG_DATABASE_URL"),
		RedisURL:        os.Getenv("IDREG_REDIS_URL"),
		EventTopic:      envOr("IDREG_EVENT_TOPIC", "identity.lifecycle"),
		ShardModulus:    envInt64("IDREG_SHARD_MODULUS", 1000),
		ActiveStatus:    envOr("IDREG_ACTIVE_STATUS", "ACTIVATED"),
		PartnerID:       envOr("IDREG_PARTNER_ID", "online-verification-partner"),
		BlobDir:         os.Getenv("IDREG_BLOB_DIR"),
		JWTSigningKey:   envOr("IDREG_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		APIKeyHash:      os.Getenv("IDREG_API_KEY_HASH"),
		ShutdownTimeout: 10 * time.Second,
	}
	if brokers := os.Getenv("IDREG_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.BiometricCategories = strings.Split(
		envOr("IDREG_BIOMETRIC_CATEGORIES", "individualBiometrics,parentOrGuardianBiometrics"), ",")
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
