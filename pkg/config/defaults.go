// Package config provides centralized default values for LeadSpring
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		if err := godotenv.Load(); err == nil {
			log.Println("Loading configuration overrides from .env file...")
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if valStr := os.Getenv(key); valStr != "" {
		parts := strings.Split(valStr, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	AllowedOrigins     []string

	// Database
	DBDriver                 string
	DBPath                   string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	SlowQueryThreshold       time.Duration

	// Secrets
	MasterSecret      string
	JWTSecret         string
	AdminPasswordHash string

	// Provider credentials (client side of the OAuth apps)
	GoogleAdsClientID        string
	GoogleAdsClientSecret    string
	GoogleAdsDeveloperToken  string
	GoogleAdsCustomerID      string
	MicrosoftAdsClientID     string
	MicrosoftAdsClientSecret string
	MicrosoftAdsAccountID    string
	HubSpotClientID          string
	HubSpotClientSecret      string
	OAuthRedirectBase        string

	// Token lifecycle
	TokenExpirySkew     time.Duration
	DefaultTokenTTL     time.Duration
	ProviderCallTimeout time.Duration

	// Dispatch
	DispatchWorkersPerChannel int
	DispatchQueueDepth        int

	// Ingest
	DedupWindow     time.Duration
	DefaultCurrency string

	// Retention
	VisitorRetention         time.Duration
	RetentionCleanupInterval time.Duration

	// Email
	ResendAPIKey      string
	LeadNotifyEmail   string
	EmailFromAddress  string
	EmailFromName     string
	EmailNotifyEnable bool
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{
		"http://localhost:3000",
		"http://localhost:4321",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:4321",
	})

	// Database
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBPath = getEnvString("DB_PATH", "leadspring.db")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 250*time.Millisecond)

	// Secrets
	MasterSecret = getEnvString("LEADSPRING_MASTER_SECRET", "")
	JWTSecret = getEnvString("JWT_SECRET", "")
	AdminPasswordHash = getEnvString("ADMIN_PASSWORD_HASH", "")

	// Provider credentials
	GoogleAdsClientID = getEnvString("GOOGLE_ADS_CLIENT_ID", "")
	GoogleAdsClientSecret = getEnvString("GOOGLE_ADS_CLIENT_SECRET", "")
	GoogleAdsDeveloperToken = getEnvString("GOOGLE_ADS_DEVELOPER_TOKEN", "")
	GoogleAdsCustomerID = getEnvString("GOOGLE_ADS_CUSTOMER_ID", "")
	MicrosoftAdsClientID = getEnvString("MICROSOFT_ADS_CLIENT_ID", "")
	MicrosoftAdsClientSecret = getEnvString("MICROSOFT_ADS_CLIENT_SECRET", "")
	MicrosoftAdsAccountID = getEnvString("MICROSOFT_ADS_ACCOUNT_ID", "")
	HubSpotClientID = getEnvString("HUBSPOT_CLIENT_ID", "")
	HubSpotClientSecret = getEnvString("HUBSPOT_CLIENT_SECRET", "")
	OAuthRedirectBase = getEnvString("OAUTH_REDIRECT_BASE", "http://localhost:8080")

	// Token lifecycle
	TokenExpirySkew = getEnvDuration("TOKEN_EXPIRY_SKEW", 5*time.Minute)
	DefaultTokenTTL = getEnvDuration("DEFAULT_TOKEN_TTL", 1*time.Hour)
	ProviderCallTimeout = getEnvDuration("PROVIDER_CALL_TIMEOUT", 15*time.Second)

	// Dispatch
	DispatchWorkersPerChannel = getEnvInt("DISPATCH_WORKERS_PER_CHANNEL", 2)
	DispatchQueueDepth = getEnvInt("DISPATCH_QUEUE_DEPTH", 256)

	// Ingest
	DedupWindow = getEnvDuration("POSTBACK_DEDUP_WINDOW", 24*time.Hour)
	DefaultCurrency = getEnvString("DEFAULT_CURRENCY", "USD")

	// Retention
	VisitorRetention = time.Duration(getEnvInt("VISITOR_RETENTION_DAYS", 90)) * 24 * time.Hour
	RetentionCleanupInterval = getEnvDuration("RETENTION_CLEANUP_INTERVAL", 6*time.Hour)

	// Email
	ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	LeadNotifyEmail = getEnvString("LEAD_NOTIFY_EMAIL", "")
	EmailFromAddress = getEnvString("EMAIL_FROM_ADDRESS", "noreply@leadspring.io")
	EmailFromName = getEnvString("EMAIL_FROM_NAME", "LeadSpring")
	EmailNotifyEnable = getEnvString("EMAIL_NOTIFY_ENABLE", "true") == "true"
}
