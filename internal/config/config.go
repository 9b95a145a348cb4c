// Package config provides configuration management with environment variable support
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Settlement SettlementConfig
	Sweeps     SweepsConfig
	Log        LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig holds Redis connection configuration for settlement locks
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds message broker configuration for notification dispatch
type KafkaConfig struct {
	Brokers           []string
	NotificationTopic string
	DispatchInterval  time.Duration
	DispatchBatch     int
	MaxRetries        int
}

// SettlementConfig holds reconciliation orchestrator configuration
type SettlementConfig struct {
	ConflictRetries int
	RetryDelay      time.Duration
	LockTTL         time.Duration
	LockRetryDelay  time.Duration
	LockRetries     int
}

// SweepsConfig holds background sweep configuration
type SweepsConfig struct {
	Interval  time.Duration
	BatchSize int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "medifin"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: getIntEnv("DB_MAX_CONNS", 25),
			MaxIdle:  getIntEnv("DB_MAX_IDLE", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:           getSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "medifin.notifications"),
			DispatchInterval:  getDurationEnv("OUTBOX_DISPATCH_INTERVAL", 500*time.Millisecond),
			DispatchBatch:     getIntEnv("OUTBOX_DISPATCH_BATCH", 100),
			MaxRetries:        getIntEnv("OUTBOX_MAX_RETRIES", 5),
		},
		Settlement: SettlementConfig{
			ConflictRetries: getIntEnv("SETTLEMENT_CONFLICT_RETRIES", 3),
			RetryDelay:      getDurationEnv("SETTLEMENT_RETRY_DELAY", 25*time.Millisecond),
			LockTTL:         getDurationEnv("SETTLEMENT_LOCK_TTL", 30*time.Second),
			LockRetryDelay:  getDurationEnv("SETTLEMENT_LOCK_RETRY_DELAY", 100*time.Millisecond),
			LockRetries:     getIntEnv("SETTLEMENT_LOCK_RETRIES", 30),
		},
		Sweeps: SweepsConfig{
			Interval:  getDurationEnv("SWEEP_INTERVAL", 60*time.Second),
			BatchSize: getIntEnv("SWEEP_BATCH_SIZE", 500),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// ConnectionString returns the PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getSliceEnv gets a comma-separated environment variable or returns a default value
func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
