package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis session store configuration
	Redis RedisConfig

	// Kafka event publisher configuration
	Kafka KafkaConfig

	// Route service seat-lock client configuration
	SeatLock SeatLockConfig

	// VNPay gateway configuration
	VNPay VNPayConfig

	// Background job schedules
	Scheduler SchedulerConfig

	// Payment reconciliation polling configuration
	Polling PollingConfig

	// Admin token configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// RedisConfig holds the booking session store connection
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	OpTimeout time.Duration
}

// KafkaConfig holds booking lifecycle event publishing settings
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	CanceledTopic  string
	ConfirmedTopic string
	WriteTimeout   time.Duration
}

// SeatLockConfig holds the route service endpoint used to release seat locks
type SeatLockConfig struct {
	BaseURL string
	Timeout time.Duration
}

// VNPayConfig holds VNPay merchant credentials and the querydr endpoint
type VNPayConfig struct {
	TmnCode    string
	HashSecret string // SECRET - never log
	Version    string
	QueryURL   string
	Timeout    time.Duration
}

// SchedulerConfig holds cron specs (with seconds field) for the background jobs
type SchedulerConfig struct {
	ExpirationSpec      string
	PollingSpec         string
	TrackingCleanupSpec string
	SweepTimeout        time.Duration
}

// PollingConfig holds reconciliation poller tuning
type PollingConfig struct {
	Method      string
	MaxAttempts int
	Lookback    time.Duration
	Cooldown    time.Duration
	TrackingTTL time.Duration
	BackoffGap  int
	CallerIP    string
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	Issuer             string
	ServiceTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := FromEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// FromEnv builds the configuration from the current environment without
// loading .env or validating.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			OpTimeout: getEnvAsDuration("REDIS_OP_TIMEOUT", 2*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:        getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:        getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			CanceledTopic:  getEnv("KAFKA_TOPIC_BOOKING_CANCELED", "booking.canceled"),
			ConfirmedTopic: getEnv("KAFKA_TOPIC_BOOKING_CONFIRMED", "booking.confirmed"),
			WriteTimeout:   getEnvAsDuration("KAFKA_WRITE_TIMEOUT", 5*time.Second),
		},
		SeatLock: SeatLockConfig{
			BaseURL: getEnv("ROUTE_SERVICE_URL", "http://localhost:8082"),
			Timeout: getEnvAsDuration("ROUTE_SERVICE_TIMEOUT", 10*time.Second),
		},
		VNPay: VNPayConfig{
			TmnCode:    getEnv("VNPAY_TMN_CODE", ""),
			HashSecret: getEnv("VNPAY_HASH_SECRET", ""),
			Version:    getEnv("VNPAY_VERSION", "2.1.0"),
			QueryURL:   getEnv("VNPAY_QUERY_URL", "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction"),
			Timeout:    getEnvAsDuration("VNPAY_TIMEOUT", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			ExpirationSpec:      getEnv("SCHEDULE_BOOKING_EXPIRATION", "@every 60s"),
			PollingSpec:         getEnv("SCHEDULE_PAYMENT_POLLING", "@every 120s"),
			TrackingCleanupSpec: getEnv("SCHEDULE_TRACKING_CLEANUP", "0 0 * * * *"),
			SweepTimeout:        getEnvAsDuration("SCHEDULE_SWEEP_TIMEOUT", 50*time.Second),
		},
		Polling: PollingConfig{
			Method:      getEnv("POLLING_METHOD", "VNPAY"),
			MaxAttempts: getEnvAsInt("POLLING_MAX_ATTEMPTS", 30),
			Lookback:    getEnvAsDuration("POLLING_LOOKBACK", 24*time.Hour),
			Cooldown:    getEnvAsDuration("POLLING_COOLDOWN", 90*time.Second),
			TrackingTTL: getEnvAsDuration("POLLING_TRACKING_TTL", 2*time.Hour),
			BackoffGap:  getEnvAsInt("POLLING_BACKOFF_GAP", 5),
			CallerIP:    getEnv("POLLING_CALLER_IP", "127.0.0.1"),
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			Issuer:             getEnv("JWT_ISSUER", "ms-booking"),
			ServiceTokenExpiry: getEnvAsDuration("JWT_SERVICE_TOKEN_EXPIRY", 5*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	// Gateway credentials are only mandatory outside development
	if c.Server.Environment == "production" {
		if c.VNPay.TmnCode == "" {
			return fmt.Errorf("VNPAY_TMN_CODE is required in production")
		}
		if c.VNPay.HashSecret == "" {
			return fmt.Errorf("VNPAY_HASH_SECRET is required in production")
		}
	}

	if c.Polling.MaxAttempts <= 0 {
		return fmt.Errorf("POLLING_MAX_ATTEMPTS must be positive, got %d", c.Polling.MaxAttempts)
	}
	if c.Polling.BackoffGap < 0 || c.Polling.BackoffGap >= c.Polling.MaxAttempts {
		return fmt.Errorf("POLLING_BACKOFF_GAP must be in [0, %d), got %d", c.Polling.MaxAttempts, c.Polling.BackoffGap)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("90s", "2h") or a bare
// number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
