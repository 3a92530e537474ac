package config

import (
	"os"
	"strconv"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	DatabaseURL string

	ListenAddr string

	// BaseURL is the externally reachable root of this instance, used to
	// build OAuth redirect URIs and password reset links.
	BaseURL string

	// SyncSecretToken authenticates cron-style calls to the sync endpoint
	// when no browser session is present. If empty, only session auth works.
	SyncSecretToken string

	// RetentionMonths is how many calendar months of activities are kept.
	// Older records are purged by the retention worker and after each sync.
	RetentionMonths int

	// SyncBackgroundThreshold: when a stats request finds fewer locally
	// stored activities than this, a background sync is scheduled.
	SyncBackgroundThreshold int

	// SandboxClientID/SandboxClientSecret are only honored when
	// APP_SANDBOX_CREDENTIALS=1 is deliberately set. Without the flag,
	// accounts with no stored Strava credentials are skipped.
	SandboxCredentials  bool
	SandboxClientID     string
	SandboxClientSecret string

	// AdminUser/AdminPassword bootstrap an initial dashboard user so a
	// fresh install can be logged into before registration is used.
	AdminUser     string
	AdminPassword string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		DatabaseURL:             os.Getenv("APP_DATABASE_URL"),
		ListenAddr:              getenv("APP_LISTEN_ADDR", ":8080"),
		BaseURL:                 getenv("APP_BASE_URL", "http://localhost:8080"),
		SyncSecretToken:         os.Getenv("APP_SYNC_SECRET_TOKEN"),
		RetentionMonths:         2,
		SyncBackgroundThreshold: 10,
		SandboxCredentials:      os.Getenv("APP_SANDBOX_CREDENTIALS") == "1",
		SandboxClientID:         os.Getenv("APP_SANDBOX_CLIENT_ID"),
		SandboxClientSecret:     os.Getenv("APP_SANDBOX_CLIENT_SECRET"),
		AdminUser:               getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:           getenv("APP_ADMIN_PASSWORD", "changeme"),
	}

	if v := os.Getenv("APP_RETENTION_MONTHS"); v != "" {
		if months, err := strconv.Atoi(v); err == nil && months > 0 {
			cfg.RetentionMonths = months
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
