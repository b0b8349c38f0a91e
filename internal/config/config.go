package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort           string // Application port
	DBUser            string // Database user
	DBPassword        string // Database password
	DBHost            string // Database host
	DBPort            string // Database port
	DBName            string // Database name
	JWTSecret         string // JWT secret key for user sessions
	ServiceSecret     string // Shared secret for the webhook/admin surface
	RedisAddr         string // Redis server address
	RedisPass         string // Redis password
	RedisDB           int    // Redis database number
	EtherGrantMP      int64  // MP granted per purchasable ether pack
	EtherPriceCents   int64  // Price of one ether pack in cents
	MPGrantMonthly    int64  // Free MP granted when a membership activates
	DownloadTokenTTL  int64  // Download token lifetime in seconds
	PendingTxTTLHours int64  // Age after which abandoned pending tx may be purged (0 disables)
	IsProd            bool   // Is production environment
}

// envInt64 reads an integer environment variable with a fallback
func envInt64(key string, fallback int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return fallback
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:           os.Getenv("APP_PORT"),                   // Application port
		DBUser:            os.Getenv("DB_USER"),                    // Database user
		DBPassword:        os.Getenv("DB_PASSWORD"),                // Database password
		DBHost:            os.Getenv("DB_HOST"),                    // Database host
		DBPort:            os.Getenv("DB_PORT"),                    // Database port
		DBName:            os.Getenv("DB_NAME"),                    // Database name
		JWTSecret:         os.Getenv("JWT_SECRET"),                 // JWT secret key
		ServiceSecret:     os.Getenv("SERVICE_SECRET"),             // Webhook/admin shared secret
		RedisAddr:         os.Getenv("REDIS_ADDR"),                 // Redis server address
		RedisPass:         os.Getenv("REDIS_PASS"),                 // Redis password
		RedisDB:           redisDB,                                 // Redis database number
		EtherGrantMP:      envInt64("ETHER_GRANT_MP", 333),         // MP per ether pack
		EtherPriceCents:   envInt64("ETHER_PRICE_CENTS", 300),      // Price per ether pack
		MPGrantMonthly:    envInt64("MP_GRANT_MONTHLY", 1000),      // Monthly membership grant
		DownloadTokenTTL:  envInt64("DOWNLOAD_TOKEN_TTL_SEC", 300), // Download token lifetime
		PendingTxTTLHours: envInt64("PENDING_TX_TTL_HOURS", 24),    // Abandoned pending tx age
		IsProd:            os.Getenv("IS_PROD") == "true",          // Is production environment
	}
}
