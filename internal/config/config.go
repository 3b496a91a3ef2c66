// Package config loads runtime settings from environment variables with
// sensible defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	HTTPAddr string

	// Empty means the in-memory store with seeded demo data.
	PostgresDSN string
	// Empty disables event publishing.
	NATSURL string
	// Empty selects the in-process LRU cache backend.
	RedisAddr string

	PredictionURL     string
	PredictionTimeout time.Duration
	CacheTTL          time.Duration
	CacheSize         int

	AttentionAlerts bool
	DedupeCooldown  time.Duration

	QueueSize int
	Workers   int

	SimInterval           time.Duration
	SimFailureProbability float64
	SimNoiseLevel         float64
	SimAutoStart          bool
	// Optional YAML file overriding the built-in sensor profiles.
	ProfilesPath string
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		HTTPAddr:              getEnv("NM_HTTP_ADDR", ":8080"),
		PostgresDSN:           getEnv("NM_POSTGRES_DSN", ""),
		NATSURL:               getEnv("NM_NATS_URL", ""),
		RedisAddr:             getEnv("NM_REDIS_ADDR", ""),
		PredictionURL:         getEnv("NM_PREDICTION_URL", "http://localhost:5000"),
		PredictionTimeout:     getEnvDuration("NM_PREDICTION_TIMEOUT", 2*time.Second),
		CacheTTL:              getEnvDuration("NM_CACHE_TTL", 5*time.Minute),
		CacheSize:             getEnvInt("NM_CACHE_SIZE", 4096),
		AttentionAlerts:       getEnvBool("NM_ATTENTION_ALERTS", false),
		DedupeCooldown:        getEnvDuration("NM_DEDUPE_COOLDOWN", 0),
		QueueSize:             getEnvInt("NM_QUEUE_SIZE", 256),
		Workers:               getEnvInt("NM_WORKERS", 4),
		SimInterval:           getEnvDuration("NM_SIM_INTERVAL", 5*time.Second),
		SimFailureProbability: getEnvFloat("NM_SIM_FAILURE_PROBABILITY", 0.01),
		SimNoiseLevel:         getEnvFloat("NM_SIM_NOISE_LEVEL", 1.0),
		SimAutoStart:          getEnvBool("NM_SIM_AUTO_START", false),
		ProfilesPath:          getEnv("NM_PROFILES_PATH", ""),
	}
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as a float with a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean with a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default
// value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
