package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"casino/database"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Redis configuration (optional advisory cache)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated), empty disables forwarding

	// HTTP / gRPC adapters
	HTTPAddr           string
	GRPCHealthAddr     string
	JWTSecret          string
	CORSAllowedOrigins []string

	// Game engine configuration
	BetCooldownMillis         int64
	RoomJoinBalanceMultiplier int64
	JackpotRollMode           string // "committed" or "random"
	TaiXiuHistorySize         int

	// Ledger retention
	TransactionRetentionDays int

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelServiceName          string
	OTelExportIntervalMillis int64

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// RedisEnabled reports whether a Redis address was configured
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// NATSEnabled reports whether NATS forwarding was configured
func (c *Config) NATSEnabled() bool {
	return c.NATSServers != ""
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		NATSServers: os.Getenv("NATS_SERVERS"),

		HTTPAddr:       getEnvWithDefault("HTTP_ADDR", ":8080"),
		GRPCHealthAddr: getEnvWithDefault("GRPC_HEALTH_ADDR", ":9090"),
		JWTSecret:      os.Getenv("JWT_SECRET"),

		BetCooldownMillis:         getInt64WithDefault("BET_COOLDOWN_MS", 1000),
		RoomJoinBalanceMultiplier: getInt64WithDefault("ROOM_JOIN_BALANCE_MULTIPLIER", 10),
		JackpotRollMode:           getEnvWithDefault("JACKPOT_ROLL_MODE", "committed"),
		TaiXiuHistorySize:         int(getInt64WithDefault("TAIXIU_HISTORY_SIZE", 20)),

		TransactionRetentionDays: int(getInt64WithDefault("TRANSACTION_RETENTION_DAYS", 30)),

		OTelEnabled:              os.Getenv("OTEL_ENABLED") == "true",
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "none"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_OTLP_ENDPOINT", "otel-collector:4317"),
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "casino"),
		OTelExportIntervalMillis: getInt64WithDefault("OTEL_EXPORT_INTERVAL_MS", 15000),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		Environment: os.Getenv("ENVIRONMENT"),
	}

	config.RedisDB = int(getInt64WithDefault("REDIS_DB", 0))

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				config.CORSAllowedOrigins = append(config.CORSAllowedOrigins, origin)
			}
		}
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
		if config.JackpotRollMode != "committed" && config.JackpotRollMode != "random" {
			return nil, fmt.Errorf("JACKPOT_ROLL_MODE must be 'committed' or 'random', got %q", config.JackpotRollMode)
		}
		if config.RoomJoinBalanceMultiplier < 0 {
			return nil, fmt.Errorf("ROOM_JOIN_BALANCE_MULTIPLIER cannot be negative")
		}
	}

	return config, nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:               "test",
		BetCooldownMillis:         1000,
		RoomJoinBalanceMultiplier: 10,
		JackpotRollMode:           "committed",
		TaiXiuHistorySize:         20,
		TransactionRetentionDays:  30,
		OTelExporterType:          "none",
		OTelServiceName:           "casino-test",
		LogLevel:                  "debug",
		LogFormat:                 "text",
	}
}
