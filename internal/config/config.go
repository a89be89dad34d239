// Package config handles engine configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all engine configuration. Required values fail Load loudly;
// optional subsystems (Postgres audit store, Etherscan, Kafka) stay empty
// and the caller degrades with a warning.
type Config struct {
	Port           string
	AllowedOrigins string // comma-separated, empty or "*" allows all
	AuthToken      string // bearer token; empty disables auth (dev mode)
	RateLimitRPM   int    // requests per minute per IP

	// Graph store (required)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Postgres audit store (optional)
	DatabaseURL string

	// Transaction data provider (optional)
	EtherscanAPIKey  string
	EtherscanBaseURL string

	// Kafka transaction feed (optional)
	KafkaBrokers string // comma-separated; empty disables the consumer
	KafkaTopic   string
	KafkaGroup   string
}

const (
	DefaultPort             = "5340"
	DefaultRateLimitRPM     = 120
	DefaultEtherscanBaseURL = "https://api.etherscan.io/api"
	DefaultKafkaTopic       = "eth.transactions"
	DefaultKafkaGroup       = "ethergraph-ingest"
)

// Load reads configuration from the environment, loading a .env file first
// if one is present (local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		AllowedOrigins:   os.Getenv("ALLOWED_ORIGINS"),
		AuthToken:        os.Getenv("API_AUTH_TOKEN"),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		Neo4jURI:         os.Getenv("NEO4J_URI"),
		Neo4jUser:        os.Getenv("NEO4J_USER"),
		Neo4jPassword:    os.Getenv("NEO4J_PASSWORD"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		EtherscanAPIKey:  os.Getenv("ETHERSCAN_API_KEY"),
		EtherscanBaseURL: getEnv("ETHERSCAN_BASE_URL", DefaultEtherscanBaseURL),
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:       getEnv("KAFKA_TOPIC", DefaultKafkaTopic),
		KafkaGroup:       getEnv("KAFKA_GROUP", DefaultKafkaGroup),
	}

	var missing []string
	for key, val := range map[string]string{
		"NEO4J_URI":      cfg.Neo4jURI,
		"NEO4J_USER":     cfg.Neo4jUser,
		"NEO4J_PASSWORD": cfg.Neo4jPassword,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}
