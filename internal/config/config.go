package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// Auth
	AuthSecret string
	SkipAuth   bool

	// Persistence
	DataDir     string
	ArtifactDir string

	// Artifact retention
	RetentionDays int

	// CRM task API
	CRMBaseURL      string
	CRMAPIKey       string
	CRMPageSize     int
	CRMTimeout      time.Duration
	CRMRefreshEvery time.Duration
	CRMRateRPS      float64

	// Telegram transport (disabled when token is empty)
	TelegramToken string

	// SFTP sync (disabled when host is empty)
	SFTPHost string
	SFTPUser string
	SFTPPass string
	SFTPPath string

	// Display slideshow
	SlideInterval time.Duration

	// WebSocket timings
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		AuthSecret: getEnv("AUTH_SECRET", ""),
		SkipAuth:   getEnv("SKIP_AUTH", "") == "true",

		DataDir:     getEnv("DATA_DIR", "data"),
		ArtifactDir: getEnv("ARTIFACT_DIR", "artifacts"),

		CRMBaseURL: getEnv("CRM_BASE_URL", ""),
		CRMAPIKey:  getEnv("CRM_API_KEY", ""),

		TelegramToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		SFTPHost: getEnv("SFTP_HOST", ""),
		SFTPUser: getEnv("SFTP_USER", ""),
		SFTPPass: getEnv("SFTP_PASS", ""),
		SFTPPath: getEnv("SFTP_PATH", "/"),
	}

	retention, err := getEnvInt("ARTIFACT_RETENTION_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.RetentionDays = retention

	pageSize, err := getEnvInt("CRM_PAGE_SIZE", 50)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("CRM_PAGE_SIZE must be positive, got %d", pageSize)
	}
	cfg.CRMPageSize = pageSize

	crmTimeout, err := getEnvInt("CRM_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.CRMTimeout = time.Duration(crmTimeout) * time.Second

	refreshMinutes, err := getEnvInt("CRM_REFRESH_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	cfg.CRMRefreshEvery = time.Duration(refreshMinutes) * time.Minute

	rateRPS, err := getEnvFloat("CRM_RATE_RPS", 2)
	if err != nil {
		return nil, err
	}
	cfg.CRMRateRPS = rateRPS

	slideSeconds, err := getEnvInt("SLIDE_INTERVAL_SECONDS", 15)
	if err != nil {
		return nil, err
	}
	cfg.SlideInterval = time.Duration(slideSeconds) * time.Second

	wsReadTimeout, err := getEnvInt("WS_READ_TIMEOUT", 60)
	if err != nil {
		return nil, err
	}
	cfg.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := getEnvInt("WS_WRITE_TIMEOUT", 10)
	if err != nil {
		return nil, err
	}
	cfg.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	cfg.PongWait = cfg.WSReadTimeout
	cfg.PingPeriod = (cfg.PongWait * 9) / 10 // Must be less than pongWait
	cfg.WriteWait = cfg.WSWriteTimeout

	if !cfg.SkipAuth && cfg.AuthSecret == "" {
		return nil, fmt.Errorf("AUTH_SECRET is required unless SKIP_AUTH=true")
	}

	// Trim spaces from allowed origins
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return cfg, nil
}

// CRMEnabled reports whether the remote task API is configured.
func (c *Config) CRMEnabled() bool {
	return c.CRMBaseURL != ""
}

// SFTPEnabled reports whether artifact upload is configured.
func (c *Config) SFTPEnabled() bool {
	return c.SFTPHost != "" && c.SFTPUser != "" && c.SFTPPass != ""
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
