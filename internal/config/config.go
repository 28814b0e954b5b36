package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

type Config struct {
	// Servers
	Port     string
	GRPCPort string

	// Storage
	DataBackend  string
	SQLiteDBPath string
	MySQLDSN     string

	// AMQP
	AMQPURL            string
	AMQPExchange       string
	AMQPEventsQueue    string
	AMQPRecurringQueue string

	// Balance cache
	BalanceCacheSize int
	BalanceCacheTTL  time.Duration

	// Recurring poller
	RecurringInterval time.Duration

	// HTTP
	RateLimitRPM int

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	validBackends   = []string{"memory", "sqlite", "mysql"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8081"),
		GRPCPort: getEnv("GRPC_PORT", "9091"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/wealthflow.db"),
		MySQLDSN:     getEnv("MYSQL_DSN", ""),

		AMQPURL:            getEnv("AMQP_URL", ""),
		AMQPExchange:       getEnv("AMQP_EXCHANGE", "wealthflow"),
		AMQPEventsQueue:    getEnv("AMQP_EVENTS_QUEUE", "ledger_events"),
		AMQPRecurringQueue: getEnv("AMQP_RECURRING_QUEUE", "recurring_runs"),

		BalanceCacheSize: getEnvInt("BALANCE_CACHE_SIZE", 1000),
		BalanceCacheTTL:  getEnvDuration("BALANCE_CACHE_TTL", 5*time.Minute),

		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),

		RateLimitRPM: getEnvInt("RATE_LIMIT_RPM", 120),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	return cfg
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool { return c.AMQPURL != "" }

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	errors = append(errors, validatePort("port", c.Port)...)
	errors = append(errors, validatePort("gRPC port", c.GRPCPort)...)
	if c.Port == c.GRPCPort {
		errors = append(errors, fmt.Sprintf("HTTP and gRPC ports must differ, both are %s", c.Port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "mysql":
		if c.MySQLDSN == "" {
			errors = append(errors, "MySQL DSN cannot be empty when using mysql backend")
		} else if _, err := mysql.ParseDSN(c.MySQLDSN); err != nil {
			errors = append(errors, fmt.Sprintf("invalid MySQL DSN: %v", err))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPEventsQueue == "" {
			errors = append(errors, "AMQP events queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRecurringQueue == "" {
			errors = append(errors, "AMQP recurring queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.BalanceCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid balance cache size %d: must not be negative", c.BalanceCacheSize))
	}
	if c.BalanceCacheSize > 0 && c.BalanceCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid balance cache TTL %v: must be at least 1 second", c.BalanceCacheTTL))
	}

	if c.RecurringInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at least 1 minute", c.RecurringInterval))
	} else if c.RecurringInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at most 24 hours", c.RecurringInterval))
	}

	if c.RateLimitRPM < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func validatePort(name, value string) []string {
	port, err := strconv.Atoi(value)
	if err != nil {
		return []string{fmt.Sprintf("invalid %s '%s': must be a number", name, value)}
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("invalid %s %d: must be between 1 and 65535", name, port)}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
