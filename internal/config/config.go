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

	// JWT configuration
	JWT JWTConfig

	// Admin access configuration
	Admin AdminConfig

	// Stripe configuration
	Stripe StripeConfig

	// CORS configuration
	CORS CORSConfig

	// Redis configuration (idempotency keys and locks)
	Redis RedisConfig

	// Kafka configuration (booking events)
	Kafka KafkaConfig

	// Pending-session reconciliation sweeper
	Reconcile ReconcileConfig
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

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// AdminConfig holds the bcrypt hash of the operator API key
type AdminConfig struct {
	APIKeyHash string
}

// StripeConfig holds Stripe checkout configuration
type StripeConfig struct {
	SecretKey         string // sk_test_... or sk_live_... (never logged)
	WebhookSecret     string // whsec_...
	Currency          string
	Timeout           time.Duration
	MaxNetworkRetries int64
	FrontendURL       string // base for success/cancel redirects
	APIBaseURL        string // overrides api.stripe.com, e.g. for stripe-mock
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// RedisConfig holds Redis connection configuration. Empty Addr disables Redis.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

// KafkaConfig holds Kafka producer configuration. No brokers disables publishing.
type KafkaConfig struct {
	Brokers      []string
	BookingTopic string
}

// ReconcileConfig holds the pending-session sweeper configuration
type ReconcileConfig struct {
	Enabled  bool
	Schedule string
	MinAge   time.Duration
	Batch    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	frontendURL := strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/")

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8000"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Admin: AdminConfig{
			APIKeyHash: getEnv("ADMIN_API_KEY_HASH", ""),
		},
		Stripe: StripeConfig{
			SecretKey:         getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:     getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:          strings.ToLower(getEnv("STRIPE_CURRENCY", "usd")),
			Timeout:           time.Duration(getEnvAsInt("STRIPE_TIMEOUT_SECONDS", 15)) * time.Second,
			MaxNetworkRetries: int64(getEnvAsInt("STRIPE_MAX_NETWORK_RETRIES", 2)),
			FrontendURL:       frontendURL,
			APIBaseURL:        getEnv("STRIPE_API_BASE", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{frontendURL}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Admin-Key"}),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			IdempotencyTTL: time.Duration(getEnvAsInt("IDEMPOTENCY_TTL_SECONDS", 86400)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvAsSlice("KAFKA_BROKERS", nil),
			BookingTopic: getEnv("KAFKA_BOOKING_TOPIC", "booking-events"),
		},
		Reconcile: ReconcileConfig{
			Enabled:  getEnvAsBool("RECONCILE_SWEEP_ENABLED", false),
			Schedule: getEnv("RECONCILE_SWEEP_SCHEDULE", "0 */5 * * * *"),
			MinAge:   time.Duration(getEnvAsInt("RECONCILE_SWEEP_MIN_AGE_MINUTES", 10)) * time.Minute,
			Batch:    getEnvAsInt("RECONCILE_SWEEP_BATCH", 50),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Stripe.Timeout <= 0 {
		return fmt.Errorf("STRIPE_TIMEOUT_SECONDS must be positive")
	}

	// Live keys are only accepted in production
	if strings.HasPrefix(c.Stripe.SecretKey, "sk_live_") && !c.IsProduction() {
		return fmt.Errorf("live STRIPE_SECRET_KEY is only allowed when ENVIRONMENT=production")
	}

	if c.Reconcile.Enabled && c.Stripe.SecretKey == "" {
		return fmt.Errorf("RECONCILE_SWEEP_ENABLED requires STRIPE_SECRET_KEY")
	}

	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// IsDevelopment reports whether verbose error details may be returned to clients
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
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
