/**
 * @description
 * Configuration management for the superapp backend. Settings are read from
 * environment variables (and an optional .env file) through Viper, with defaults
 * for every tunable so a local stack boots with only DATABASE_URL and JWT_SECRET.
 *
 * @dependencies
 * - github.com/spf13/viper: Environment binding and defaults.
 * - github.com/joho/godotenv: Loads a local .env file before Viper reads the environment.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the superapp backend.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	AutoMigrate bool   `mapstructure:"AUTO_MIGRATE"`

	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	EventExchange        string `mapstructure:"EVENT_EXCHANGE"`
	NotificationQueue    string `mapstructure:"NOTIFICATION_QUEUE"`

	JWTSecret             string `mapstructure:"JWT_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	OTPIssuer             string `mapstructure:"OTP_ISSUER"`
	OTPMaxAttempts        int    `mapstructure:"OTP_MAX_ATTEMPTS"`
	OTPLockoutSeconds     int    `mapstructure:"OTP_LOCKOUT_SECONDS"`

	LoginRateLimitPerMinute int `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	MoneyRateLimitPerMinute int `mapstructure:"MONEY_RATE_LIMIT_PER_MINUTE"`

	IdempotencyTTLMinutes int  `mapstructure:"IDEMPOTENCY_TTL_MINUTES"`
	RequireIdempotencyKey bool `mapstructure:"REQUIRE_IDEMPOTENCY_KEY"`

	Currency string `mapstructure:"CURRENCY"`

	// MaxTransactionAmount caps a single money movement, in minor units.
	MaxTransactionAmount int64 `mapstructure:"MAX_TRANSACTION_AMOUNT"`

	BankAPIBaseURL   string `mapstructure:"BANK_API_BASE_URL"`
	BankAPIKey       string `mapstructure:"BANK_API_KEY"`
	CardAPIBaseURL   string `mapstructure:"CARD_API_BASE_URL"`
	CardAPIKey       string `mapstructure:"CARD_API_KEY"`
	MarketAPIBaseURL string `mapstructure:"MARKET_API_BASE_URL"`
	MarketAPIKey     string `mapstructure:"MARKET_API_KEY"`

	BillJobSchedule     string `mapstructure:"BILL_JOB_SCHEDULE"`
	ReminderJobSchedule string `mapstructure:"REMINDER_JOB_SCHEDULE"`
	CardHoldJobSchedule string `mapstructure:"CARD_HOLD_JOB_SCHEDULE"`

	// CardHoldTimeoutMinutes is how long a card hold may stay pending before it is reversed.
	CardHoldTimeoutMinutes int `mapstructure:"CARD_HOLD_TIMEOUT_MINUTES"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogFormat       string `mapstructure:"LOG_FORMAT"`
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

var configKeys = []string{
	"SERVER_PORT",
	"DATABASE_URL",
	"AUTO_MIGRATE",
	"REDIS_URL",
	"REDIS_RATE_LIMIT_PREFIX",
	"RABBITMQ_URL",
	"EVENT_EXCHANGE",
	"NOTIFICATION_QUEUE",
	"JWT_SECRET",
	"ACCESS_TOKEN_TTL_MINUTES",
	"OTP_ISSUER",
	"OTP_MAX_ATTEMPTS",
	"OTP_LOCKOUT_SECONDS",
	"LOGIN_RATE_LIMIT_PER_MINUTE",
	"MONEY_RATE_LIMIT_PER_MINUTE",
	"IDEMPOTENCY_TTL_MINUTES",
	"REQUIRE_IDEMPOTENCY_KEY",
	"CURRENCY",
	"MAX_TRANSACTION_AMOUNT",
	"BANK_API_BASE_URL",
	"BANK_API_KEY",
	"CARD_API_BASE_URL",
	"CARD_API_KEY",
	"MARKET_API_BASE_URL",
	"MARKET_API_KEY",
	"BILL_JOB_SCHEDULE",
	"REMINDER_JOB_SCHEDULE",
	"CARD_HOLD_JOB_SCHEDULE",
	"CARD_HOLD_TIMEOUT_MINUTES",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_SERVICE_NAME",
}

// DefaultMaxTransactionAmount is 100 million major units expressed in minor units.
const DefaultMaxTransactionAmount int64 = 10_000_000_000

// ErrMissingJWTSecret is returned by Validate when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("JWT_SECRET must be configured")

// ErrMissingDatabaseURL is returned by Validate when DATABASE_URL is empty.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL must be configured")

// LoadConfig reads configuration from the environment, using an optional .env
// file found in path.
func LoadConfig(path string) (config Config, err error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(filepath.Join(path, ".env"))

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("AUTO_MIGRATE", true)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "superapp:rate_limit")
	viper.SetDefault("EVENT_EXCHANGE", "superapp.events")
	viper.SetDefault("NOTIFICATION_QUEUE", "superapp.notifications")
	viper.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 30)
	viper.SetDefault("OTP_ISSUER", "SuperApp")
	viper.SetDefault("OTP_MAX_ATTEMPTS", 5)
	viper.SetDefault("OTP_LOCKOUT_SECONDS", 600)
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("MONEY_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("IDEMPOTENCY_TTL_MINUTES", 1440)
	viper.SetDefault("REQUIRE_IDEMPOTENCY_KEY", false)
	viper.SetDefault("CURRENCY", "NGN")
	viper.SetDefault("MAX_TRANSACTION_AMOUNT", DefaultMaxTransactionAmount)
	viper.SetDefault("BILL_JOB_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("REMINDER_JOB_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("CARD_HOLD_JOB_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("CARD_HOLD_TIMEOUT_MINUTES", 15)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("OTEL_SERVICE_NAME", "superapp-backend")

	// Bind explicitly so keys without defaults still appear in Unmarshal.
	for _, key := range configKeys {
		_ = viper.BindEnv(key)
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSuffix(strings.TrimSpace(config.RedisRateLimitPrefix), ":")
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "superapp:rate_limit"
	}
	config.Currency = strings.ToUpper(strings.TrimSpace(config.Currency))
	if config.Currency == "" {
		config.Currency = "NGN"
	}
	if config.AccessTokenTTLMinutes <= 0 {
		config.AccessTokenTTLMinutes = 30
	}
	if config.OTPMaxAttempts <= 0 {
		config.OTPMaxAttempts = 5
	}
	if config.OTPLockoutSeconds <= 0 {
		config.OTPLockoutSeconds = 600
	}
	if config.IdempotencyTTLMinutes <= 0 {
		config.IdempotencyTTLMinutes = 1440
	}
	if config.MaxTransactionAmount <= 0 {
		config.MaxTransactionAmount = DefaultMaxTransactionAmount
	}
	if config.CardHoldTimeoutMinutes <= 0 {
		config.CardHoldTimeoutMinutes = 15
	}

	return config, nil
}

// Validate reports settings the API process cannot start without.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}
