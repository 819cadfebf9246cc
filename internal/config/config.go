// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Email       EmailConfig
	Offer       OfferConfig
	Market      MarketConfig
	Scheduler   SchedulerConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type OfferConfig struct {
	ValidityPeriodHours int // lifetime of a freshly calculated offer
	WarningWindowHours  int // expiration warning window for lenders
	CalculationTimeout  int // per-lender calculation timeout, seconds
}

type MarketConfig struct {
	MinimumBanks int // privacy floor for market analysis
}

type SchedulerConfig struct {
	ExpirationSpec string // cron spec for the expiry sweep
	WarningSpec    string // cron spec for the warning sweep
	OutboxInterval int    // email outbox poll interval, seconds
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "loanbridge"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24), // 24 hours
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@loanbridge.io"),
			FromName:     getEnv("FROM_NAME", "LoanBridge"),
		},
		Offer: OfferConfig{
			ValidityPeriodHours: getEnvAsInt("OFFER_VALIDITY_HOURS", 24),
			WarningWindowHours:  getEnvAsInt("OFFER_WARNING_WINDOW_HOURS", 24),
			CalculationTimeout:  getEnvAsInt("OFFER_CALCULATION_TIMEOUT", 10),
		},
		Market: MarketConfig{
			MinimumBanks: getEnvAsInt("MARKET_MINIMUM_BANKS", 3),
		},
		Scheduler: SchedulerConfig{
			ExpirationSpec: getEnv("SCHEDULER_EXPIRATION_SPEC", "0 0 * * *"),
			WarningSpec:    getEnv("SCHEDULER_WARNING_SPEC", "0 * * * *"),
			OutboxInterval: getEnvAsInt("SCHEDULER_OUTBOX_INTERVAL", 30),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Offer.ValidityPeriodHours <= 0 {
		return fmt.Errorf("offer validity period must be positive")
	}

	if c.Market.MinimumBanks < 2 {
		return fmt.Errorf("market minimum banks must be at least 2")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
