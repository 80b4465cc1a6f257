package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port     string
	DataPath string
	LogLevel string

	// Config file paths (accounts and webhook subscribers are managed
	// by the setup flow; this service only reads them)
	AccountsPath    string
	WebhooksPath    string
	CredentialsPath string
	InboxPath       string

	// Provider API settings
	ProviderABaseURL string
	ProviderBBaseURL string
	ProviderASecret  string
	ProviderBSecret  string
	ProviderTimeout  time.Duration

	// Sync behaviour
	SchedulerInterval  time.Duration
	DedupWindow        time.Duration
	CredentialCacheTTL time.Duration

	// Webhook delivery defaults (per-subscriber retry policy overrides these)
	WebhookUserAgent    string
	WebhookMaxRetries   int
	WebhookInitialDelay time.Duration
	WebhookMaxDelay     time.Duration
	WebhookTimeout      time.Duration
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	dataPath := getEnv("DATA_PATH", "./data")

	Cfg = &AppConfig{
		// Core
		Port:     getEnv("PORT", "8080"),
		DataPath: dataPath,
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Config files
		AccountsPath:    getEnv("ACCOUNTS_PATH", dataPath+"/accounts.json"),
		WebhooksPath:    getEnv("WEBHOOKS_PATH", dataPath+"/webhooks.json"),
		CredentialsPath: getEnv("CREDENTIALS_PATH", dataPath+"/credentials.json"),
		InboxPath:       getEnv("INBOX_PATH", dataPath+"/inbox.json"),

		// Provider APIs
		ProviderABaseURL: getEnv("PROVIDER_A_BASE_URL", "https://sandbox.provider-a.com"),
		ProviderBBaseURL: getEnv("PROVIDER_B_BASE_URL", "https://api.provider-b.com"),
		ProviderASecret:  getEnv("PROVIDER_A_WEBHOOK_SECRET", ""),
		ProviderBSecret:  getEnv("PROVIDER_B_WEBHOOK_SECRET", ""),
		ProviderTimeout:  getEnvAsDuration("PROVIDER_TIMEOUT", 20*time.Second),

		// Sync
		SchedulerInterval:  getEnvAsDuration("SCHEDULER_INTERVAL", 15*time.Minute),
		DedupWindow:        getEnvAsDuration("DEDUP_WINDOW", 24*time.Hour),
		CredentialCacheTTL: getEnvAsDuration("CREDENTIAL_CACHE_TTL", 10*time.Minute),

		// Webhook delivery
		WebhookUserAgent:    getEnv("WEBHOOK_USER_AGENT", "FinSync-Webhook/1.0"),
		WebhookMaxRetries:   getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookInitialDelay: getEnvAsDuration("WEBHOOK_INITIAL_DELAY", 1*time.Second),
		WebhookMaxDelay:     getEnvAsDuration("WEBHOOK_MAX_DELAY", 30*time.Second),
		WebhookTimeout:      getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DataPath=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DataPath)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
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
