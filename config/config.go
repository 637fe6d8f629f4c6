package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPHost        string
	HTTPPort        string
	MySQLDSN        string
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	ResetURL        string
	SMTP            SMTPConfig
	LogLevel        string
	LogFormat       string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Pass     string
	From     string
	FromName string
}

// Load reads configuration from the environment. Every secret the process
// depends on must be present at startup; a missing one fails the boot
// instead of surfacing mid-request.
func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		HTTPHost:        getEnv("HTTP_HOST", ""),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		AccessTokenTTL:  getDurationEnv("ACCESS_TOKEN_TTL", 60*time.Minute),
		RefreshTokenTTL: getDurationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		ResetTokenTTL:   getDurationEnv("RESET_TOKEN_TTL", time.Hour),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		SMTP: SMTPConfig{
			Port:     getIntEnv("SMTP_PORT", 587),
			FromName: getEnv("SMTP_FROM_NAME", "Accounts"),
		},
	}

	required := []struct {
		key string
		dst *string
	}{
		{"MYSQL_DSN", &cfg.MySQLDSN},
		{"JWT_SECRET", &cfg.JWTSecret},
		{"JWT_ISSUER", &cfg.JWTIssuer},
		{"JWT_AUDIENCE", &cfg.JWTAudience},
		{"APP_RESET_URL", &cfg.ResetURL},
		{"SMTP_HOST", &cfg.SMTP.Host},
		{"SMTP_USER", &cfg.SMTP.User},
		{"SMTP_PASS", &cfg.SMTP.Pass},
		{"SMTP_FROM", &cfg.SMTP.From},
	}
	for _, req := range required {
		value := os.Getenv(req.key)
		if value == "" {
			return nil, errors.New(req.key + " environment variable is required")
		}
		*req.dst = value
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return c.MySQLDSN
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
