package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Version is reported by the health probe.
const Version = "1.0.0"

// Config holds all configuration for the hub process.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// DatabaseURL selects the backend: a postgres:// URL uses
	// PostgreSQL, anything else is treated as an SQLite path.
	DatabaseURL string

	// SettingsPath is the JSON file holding the alert settings.
	SettingsPath string

	// AdminToken authenticates the administrative API. When empty the
	// admin surface is disabled.
	AdminToken string

	// DashboardURL is the link embedded in alert messages.
	DashboardURL string

	// RateLimitMax and RateLimitWindow bound requests per site key.
	RateLimitMax    int
	RateLimitWindow time.Duration

	// SMTP relay settings. Email alerting is disabled while SMTPHost is
	// empty.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// DefaultEmail is the fallback recipient when the configured list
	// parses to nothing.
	DefaultEmail string
}

// Load reads configuration from the environment (and a .env file when
// present) with sensible defaults.
func Load() (*Config, error) {
	// Missing .env is the common case in production.
	_ = godotenv.Load()

	port, err := intEnv("PORT", 8080)
	if err != nil {
		return nil, err
	}
	rateMax, err := intEnv("RATE_LIMIT_MAX", 60)
	if err != nil {
		return nil, err
	}
	rateWindow, err := intEnv("RATE_LIMIT_WINDOW_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	smtpPort, err := intEnv("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "hub.db"
	}

	settingsPath := os.Getenv("SETTINGS_PATH")
	if settingsPath == "" {
		settingsPath = "alert_settings.json"
	}

	dashboardURL := os.Getenv("DASHBOARD_URL")
	if dashboardURL == "" {
		dashboardURL = "https://hub.example.com/dashboard"
	}

	return &Config{
		Port:            port,
		DatabaseURL:     dbURL,
		SettingsPath:    settingsPath,
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
		DashboardURL:    dashboardURL,
		RateLimitMax:    rateMax,
		RateLimitWindow: time.Duration(rateWindow) * time.Second,
		SMTPHost:        os.Getenv("SMTP_HOST"),
		SMTPPort:        smtpPort,
		SMTPUsername:    os.Getenv("SMTP_USERNAME"),
		SMTPPassword:    os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:        os.Getenv("SMTP_FROM"),
		DefaultEmail:    os.Getenv("DEFAULT_ALERT_EMAIL"),
	}, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
