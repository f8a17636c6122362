package config

import "os"

// Config holds settings for the audit CLI and service wiring.
type Config struct {
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseURL    string
	RedisAddr      string
	LogLevel       string
	OTLPEndpoint   string
	Telemetry      bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	driver := os.Getenv("MANDATE_DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}

	dbURL := os.Getenv("MANDATE_DB_URL")
	if dbURL == "" {
		dbURL = "mandate.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	otlp := os.Getenv("OTLP_ENDPOINT")
	if otlp == "" {
		otlp = "localhost:4317"
	}

	return &Config{
		DatabaseDriver: driver,
		DatabaseURL:    dbURL,
		RedisAddr:      os.Getenv("MANDATE_REDIS_ADDR"),
		LogLevel:       logLevel,
		OTLPEndpoint:   otlp,
		Telemetry:      os.Getenv("MANDATE_TELEMETRY") == "true",
	}
}
