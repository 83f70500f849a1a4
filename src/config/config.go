package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Broker API settings
	BrokerBaseURL     string
	BrokerUser        string
	BrokerPassword    string
	BrokerTimeout     time.Duration
	AuthCooldown      time.Duration
	TokenSafetyMargin time.Duration
	HistoryStartDate  string

	// FX rate provider settings
	FXBaseURL      string
	FXLookbackDays int
	FXRefreshSpec  string

	// Cache settings
	CacheEnabled   bool
	CacheTTL       time.Duration
	ReportCacheTTL time.Duration

	// Reconciliation tolerances. Empirically chosen against years of real
	// statements; override via env, do not re-derive.
	DedupPriceTolAbs       float64
	DedupPriceTolRel       float64
	RedemptionLookbackDays int

	// Frontend URL for CORS
	FrontendBaseURL string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	// 1. Try loading from the current directory (standard behavior)
	errEnv := godotenv.Load()

	// 2. If not found, try loading from the parent directory (common when running from /backend)
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables.")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	brokerUser := getRequiredEnv("BROKER_USER")
	brokerPassword := getRequiredEnv("BROKER_PASSWORD")

	Cfg = &AppConfig{
		// Core
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./cartera.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		// Broker
		BrokerBaseURL:     getEnv("BROKER_BASE_URL", "https://clientes.broker.com.ar/api"),
		BrokerUser:        brokerUser,
		BrokerPassword:    brokerPassword,
		BrokerTimeout:     getEnvAsDuration("BROKER_TIMEOUT", 20*time.Second),
		AuthCooldown:      getEnvAsDuration("AUTH_COOLDOWN", 5*time.Minute),
		TokenSafetyMargin: getEnvAsDuration("TOKEN_SAFETY_MARGIN", 1*time.Minute),
		HistoryStartDate:  getEnv("HISTORY_START_DATE", "2015-01-01"),

		// FX
		FXBaseURL:      getEnv("FX_BASE_URL", "https://api.argentinadatos.com/v1/cotizaciones/dolares"),
		FXLookbackDays: getEnvAsInt("FX_LOOKBACK_DAYS", 7),
		FXRefreshSpec:  getEnv("FX_REFRESH_SPEC", "0 11 * * *"),

		// Cache
		CacheEnabled:   getEnvAsBool("CACHE_ENABLED", true),
		CacheTTL:       getEnvAsDuration("CACHE_TTL", 24*time.Hour),
		ReportCacheTTL: getEnvAsDuration("REPORT_CACHE_TTL", 15*time.Minute),

		// Tolerances
		DedupPriceTolAbs:       getEnvAsFloat("DEDUP_PRICE_TOL_ABS", 0.10),
		DedupPriceTolRel:       getEnvAsFloat("DEDUP_PRICE_TOL_REL", 0.005),
		RedemptionLookbackDays: getEnvAsInt("REDEMPTION_LOOKBACK_DAYS", 21),

		// Frontend
		FrontendBaseURL: getEnv("APP_BASE_URL", "http://localhost:3000"),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, CacheEnabled=%t",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.CacheEnabled)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getRequiredEnv retrieves an environment variable or terminates the application if not set.
func getRequiredEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set or is empty. Application cannot start.", key)
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsFloat retrieves an environment variable as a float64 or returns a fallback.
func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

// getEnvAsBool retrieves an environment variable as a bool or returns a fallback.
func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid boolean value for %s ('%s'), using default: %t", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
