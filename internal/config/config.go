package config

import (
	"fmt"
	"os"
	"time"
)

// Service configuration constants
const (
	ServiceName    = "order-service"
	ServiceVersion = "0.1.0"
)

// Kafka configuration constants
const (
	OrderCreatedTopic  = "OrderCreated"
	StockResponseTopic = "StockResponse"
	DeadLetterTopic    = "StockResponse.DLQ"
	GroupID            = "order-service-group"
	BatchTimeout       = 10 * time.Millisecond
	BatchSize          = 100
)

// Retry tuning. Lookup delays grow as LookupBaseDelay * attempt, so three
// attempts wait 100ms then 200ms between lookups.
const (
	LookupMaxAttempts   = 3
	LookupBaseDelay     = 100 * time.Millisecond
	HandlerMaxAttempts  = 3
	HandlerRetryDelay   = 200 * time.Millisecond
	ConflictMaxAttempts = 3
)

// OpenTelemetry configuration constants
const (
	LogsPath      = "/otlp/v1/logs"
	TracesPath    = "/otlp/v1/traces"
	ExportTimeout = 30 * time.Second
	MaxQueueSize  = 2048
)

// Config holds environment-specific configuration
type Config struct {
	KafkaBroker    string
	DatabaseURL    string
	HTTPPort       string
	OtelEndpoint   string
	OtelAuthHeader string
}

// LoadConfig loads configuration from environment variables with validation.
// DATABASE_URL is optional: without it the service keeps orders in memory,
// which is enough for local runs against a broker. OTEL_ENDPOINT is optional:
// without it the service logs to the console only.
func LoadConfig() (*Config, error) {
	config := &Config{
		KafkaBroker:    os.Getenv("KAFKA_BROKER"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		HTTPPort:       os.Getenv("HTTP_PORT"),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
	}

	if config.KafkaBroker == "" {
		return nil, fmt.Errorf("KAFKA_BROKER environment variable is required")
	}
	if config.HTTPPort == "" {
		config.HTTPPort = "8080"
	}

	return config, nil
}
