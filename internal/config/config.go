package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Admin key guarding manual reconciliation / maintenance endpoints.
	AdminAPIKey string

	// Ledger defaults
	StartingBalance string

	// Reconciliation scheduler
	SyncInterval         time.Duration
	MaxConcurrentUpdates int
	RetryAttempts        int
	RetryDelay           time.Duration
	LeaderboardCooldown  time.Duration

	// Market data gateway
	CacheFreshTTL      time.Duration
	CacheStaleTTL      time.Duration
	RateLimitPerMinute int
	FetchTimeout       time.Duration
	MarketDataBaseURL  string
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		// Server
		Port: getEnv("PORT", "8080"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "cryptosim"),
		DBPassword: getEnv("DB_PASSWORD", "cryptosim"),
		DBName:     getEnv("DB_NAME", "cryptosim"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),

		StartingBalance: getEnv("STARTING_BALANCE", "100000"),

		// Scheduler
		SyncInterval:         getEnvMillis("SYNC_INTERVAL_MS", 30*time.Second),
		MaxConcurrentUpdates: getEnvInt("MAX_CONCURRENT_UPDATES", 10),
		RetryAttempts:        getEnvInt("RETRY_ATTEMPTS", 3),
		RetryDelay:           getEnvMillis("RETRY_DELAY_MS", 5*time.Second),
		LeaderboardCooldown:  getEnvMillis("LEADERBOARD_COOLDOWN_MS", time.Minute),

		// Market data
		CacheFreshTTL:      getEnvMillis("CACHE_FRESH_TTL_MS", 15*time.Minute),
		CacheStaleTTL:      getEnvMillis("CACHE_STALE_TTL_MS", 2*time.Hour),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		FetchTimeout:       getEnvMillis("FETCH_TIMEOUT_MS", 15*time.Second),
		MarketDataBaseURL:  getEnv("MARKET_DATA_BASE_URL", "https://api.coingecko.com/api/v3"),
	}

	// Parse JWT expiration duration
	expStr := getEnv("JWT_EXPIRES_IN", "24h")
	expDur, err := time.ParseDuration(expStr)
	if err != nil {
		log.Printf("Warning: invalid JWT_EXPIRES_IN value '%s', falling back to 24h\n", expStr)
		expDur = 24 * time.Hour
	}
	config.JWTExpirationDur = expDur

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvMillis retrieves a millisecond environment variable as a duration.
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, value, defaultValue)
		return defaultValue
	}
	return time.Duration(parsed) * time.Millisecond
}
