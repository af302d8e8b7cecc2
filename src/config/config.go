package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port         string
	DatabasePath string
	LogLevel     string

	JWTSecret         string
	AdminPassword     string
	AccessTokenExpiry time.Duration

	// Market session parameters. The reference exchange trades
	// 09:30-15:00 local time; timezone must match the holiday data.
	MarketTimezone  string
	HolidayDataPath string

	// Valuation scheduler intervals.
	TradingInterval    time.Duration
	NonTradingInterval time.Duration
	QuoteFetchDelay    time.Duration
	QuoteTimeout       time.Duration

	// Quote source endpoints. Overridable so tests can point at stubs.
	EstimateBaseURL string
	HistoryBaseURL  string
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found. Relying on OS environment variables and defaults.")
	} else {
		log.Println(".env file loaded successfully.")
	}

	jwtSecret := getEnv("JWT_SECRET", "an-insecure-development-only-jwt-secret-of-32-bytes!")
	if jwtSecret == "an-insecure-development-only-jwt-secret-of-32-bytes!" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET for production.")
	}

	adminPassword := getEnv("ADMIN_PASSWORD", "fundfolio")
	if adminPassword == "fundfolio" {
		log.Println("WARNING: Using default ADMIN_PASSWORD. Set ADMIN_PASSWORD for production.")
	}

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./fundfolio.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		JWTSecret:         jwtSecret,
		AdminPassword:     adminPassword,
		AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 12*time.Hour),

		MarketTimezone:  getEnv("MARKET_TIMEZONE", "Asia/Shanghai"),
		HolidayDataPath: getEnv("HOLIDAY_DATA_PATH", "data/market_holidays.json"),

		TradingInterval:    getEnvAsDuration("TRADING_INTERVAL", 10*time.Second),
		NonTradingInterval: getEnvAsDuration("NON_TRADING_INTERVAL", 120*time.Second),
		QuoteFetchDelay:    getEnvAsDuration("QUOTE_FETCH_DELAY", 200*time.Millisecond),
		QuoteTimeout:       getEnvAsDuration("QUOTE_TIMEOUT", 5*time.Second),

		EstimateBaseURL: getEnv("ESTIMATE_BASE_URL", "http://fundgz.1234567.com.cn"),
		HistoryBaseURL:  getEnv("HISTORY_BASE_URL", "http://fund.eastmoney.com"),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, Timezone=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.MarketTimezone)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

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
