// Package configs provides application configuration loaded from environment variables.
// All configuration is externalized via environment variables for 12-factor app compliance.
package configs

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// Influx contains the time-series store connection settings.
	Influx InfluxConfig

	// Deriv contains the market data vendor settings.
	Deriv DerivConfig

	// Kafka contains the downstream candle topic settings.
	Kafka KafkaConfig

	// Pipeline contains the ingestion pipeline settings.
	Pipeline PipelineConfig

	// Symbols is the list of vendor symbols to ingest (comma-separated in env).
	Symbols []string
}

// InfluxConfig holds InfluxDB connection settings.
type InfluxConfig struct {
	// URL is the InfluxDB server address (e.g., "http://localhost:8086").
	URL string

	// Token is the API token used for all operations.
	Token string

	// Org is the InfluxDB organization name.
	Org string
}

// DerivConfig holds vendor API settings.
type DerivConfig struct {
	// AppID identifies this application to the vendor.
	AppID string

	// Endpoint is the vendor WebSocket URL.
	Endpoint string

	// RateLimitPerSecond caps outgoing vendor requests.
	RateLimitPerSecond float64
}

// KafkaConfig holds Kafka connection settings for the candle feed.
type KafkaConfig struct {
	// Enabled toggles candle publishing entirely.
	Enabled bool

	// Broker is the Kafka broker address (e.g., "localhost:9092").
	Broker string

	// Topic is the Kafka topic finalized candles are published to.
	Topic string
}

// PipelineConfig holds ingestion pipeline settings.
type PipelineConfig struct {
	// BatchSize is the tick buffer flush threshold.
	BatchSize int

	// BucketPrefix prefixes every store bucket name.
	BucketPrefix string
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // Ignore error - .env is optional

	var symbols []string
	if raw := getEnv("SYMBOLS", ""); raw != "" {
		symbols = strings.Split(raw, ",")
	}

	return &AppConfig{
		Influx: InfluxConfig{
			URL:   getEnv("INFLUXDB_URL", "http://localhost:8086"),
			Token: getEnv("INFLUXDB_TOKEN", ""),
			Org:   getEnv("INFLUXDB_ORG", "agentictrader"),
		},
		Deriv: DerivConfig{
			AppID:              getEnv("DERIV_APP_ID", ""),
			Endpoint:           getEnv("DERIV_API_ENDPOINT", ""),
			RateLimitPerSecond: getEnvFloat("DERIV_RATE_LIMIT", 2),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Broker:  getEnv("KAFKA_BROKER", "localhost:9092"),
			Topic:   getEnv("KAFKA_CANDLE_TOPIC", "market_candles"),
		},
		Pipeline: PipelineConfig{
			BatchSize:    getEnvInt("BATCH_SIZE", 1000),
			BucketPrefix: getEnv("BUCKET_PREFIX", "market_data"),
		},
		Symbols: symbols,
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
