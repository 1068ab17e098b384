package config

import (
	"os"
	"strconv"
	"strings"
)

// AppConfig represents the application configuration
type AppConfig struct {
	Port          string
	Environment   string
	ActiveGateway string

	// Store backend: "sqlite" or "postgres".
	StoreDriver string
	SQLitePath  string
	PostgresDSN string

	OpenSearchURL  string
	OpenSearchUser string
	OpenSearchPass string
	EnableLogging  bool

	AdminEmails []string
}

var appConfigInstance *AppConfig

// GetAppConfig returns the application configuration singleton
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:           GetEnv("APP_PORT", "9999"),
			Environment:    GetEnv("ENVIRONMENT", "development"),
			ActiveGateway:  GetEnv("ACTIVE_GATEWAY", "mockpay"),
			StoreDriver:    GetEnv("STORE_DRIVER", "sqlite"),
			SQLitePath:     GetEnv("SQLITE_PATH", "data/paycore.db"),
			PostgresDSN:    GetEnv("POSTGRES_DSN", ""),
			OpenSearchURL:  GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser: GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass: GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableLogging:  GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
			AdminEmails:    splitList(GetEnv("ADMIN_EMAILS", "")),
		}
	}
	return appConfigInstance
}

// GatewayCredentials reads the credential set for a provider tag from the
// environment, e.g. RAZORPAY_API_KEY / RAZORPAY_API_SECRET /
// RAZORPAY_WEBHOOK_SECRET.
func GatewayCredentials(provider string) (apiKey, apiSecret, webhookSecret string) {
	prefix := strings.ToUpper(provider) + "_"
	return GetEnv(prefix+"API_KEY", ""),
		GetEnv(prefix+"API_SECRET", ""),
		GetEnv(prefix+"WEBHOOK_SECRET", "")
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
