package common

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Store    StoreConfig
	Blob     BlobConfig
	OCR      OCRConfig
	Intake   IntakeConfig
	Server   ServerConfig
	LogLevel slog.Level
}

// StoreConfig holds object store configuration
type StoreConfig struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// BlobConfig holds raw file storage configuration
type BlobConfig struct {
	Driver    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// OCRConfig holds the OCR collaborator settings
type OCRConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration
}

// IntakeConfig holds orchestrator tuning
type IntakeConfig struct {
	Retention     time.Duration
	SweepInterval time.Duration
	MaxRetries    int
	InboxDir      string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string
	MetricsAddr string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:           getEnv("STORE_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "file:intake.db?_pragma=busy_timeout(5000)"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Blob: BlobConfig{
			Driver:    getEnv("BLOB_DRIVER", "memory"),
			Endpoint:  getEnv("BLOB_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("BLOB_ACCESS_KEY", ""),
			SecretKey: getEnv("BLOB_SECRET_KEY", ""),
			Bucket:    getEnv("BLOB_BUCKET", "intake"),
			UseSSL:    getEnvAsBool("BLOB_USE_SSL", false),
		},
		OCR: OCRConfig{
			BaseURL:      getEnv("OCR_URL", ""),
			APIKey:       getEnv("OCR_API_KEY", ""),
			Timeout:      getEnvAsDuration("OCR_TIMEOUT", 2*time.Minute),
			PollInterval: getEnvAsDuration("OCR_POLL_INTERVAL", time.Second),
		},
		Intake: IntakeConfig{
			Retention:     getEnvAsDuration("INTAKE_RETENTION", 72*time.Hour),
			SweepInterval: getEnvAsDuration("INTAKE_SWEEP_INTERVAL", 60*time.Minute),
			MaxRetries:    getEnvAsInt("INTAKE_MAX_RETRIES", 3),
			InboxDir:      getEnv("INBOX_DIR", ""),
		},
		Server: ServerConfig{
			GRPCAddr:    getEnv("GRPC_ADDR", ":8080"),
			MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	if value := os.Getenv(key); value != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(strings.ToUpper(value))); err == nil {
			return lvl
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown STORE_DRIVER %q", c.Store.Driver), ErrInvalidInput)
	}
	switch c.Blob.Driver {
	case "memory":
	case "minio":
		if c.Blob.Endpoint == "" || c.Blob.Bucket == "" {
			return NewAppError("CONFIG_ERROR", "BLOB_ENDPOINT and BLOB_BUCKET are required", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown BLOB_DRIVER %q", c.Blob.Driver), ErrInvalidInput)
	}
	if c.OCR.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "OCR_URL is required", ErrInvalidInput)
	}
	if c.OCR.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_TIMEOUT must be positive", ErrInvalidInput)
	}
	if c.Intake.MaxRetries < 0 {
		return NewAppError("CONFIG_ERROR", "INTAKE_MAX_RETRIES must not be negative", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	return nil
}
