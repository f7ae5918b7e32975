package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// MemberPress
	MemberPressURL    string
	MemberPressAPIKey string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	LookupTimeout     time.Duration

	// ThriveCart
	ThriveCartSecret string
	MappingsFile     string

	// Admin
	AdminToken     string
	AdminTokenHash string
	AdminJWTSecret string
	AdminJWTExpiry time.Duration
	AdminEmail     string

	// Logging
	LogRetentionDays int
	LogPersistLevel  slog.Level

	// Mail
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPSender   string

	// Cache
	RedisURL string

	// Server
	Port        string
	CORSOrigins string
	SentryDSN   string
	Environment string
}

// Load reads the environment. A .env file in the working directory is applied
// first when present; real environment variables win over it.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env file", "error", err)
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "membership_sync"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		MemberPressURL:    strings.TrimRight(getEnv("MEMBERPRESS_URL", ""), "/"),
		MemberPressAPIKey: getEnv("MEMBERPRESS_API_KEY", ""),
		ReadTimeout:       parseDuration(getEnv("MEMBERPRESS_READ_TIMEOUT", "20s"), 20*time.Second),
		WriteTimeout:      parseDuration(getEnv("MEMBERPRESS_WRITE_TIMEOUT", "30s"), 30*time.Second),
		LookupTimeout:     parseDuration(getEnv("MEMBERPRESS_LOOKUP_TIMEOUT", "10s"), 10*time.Second),

		ThriveCartSecret: getEnv("THRIVECART_SECRET", ""),
		MappingsFile:     getEnv("MAPPINGS_FILE", ""),

		AdminToken:     getEnv("ADMIN_TOKEN", ""),
		AdminTokenHash: getEnv("ADMIN_TOKEN_HASH", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		AdminJWTExpiry: parseDuration(getEnv("ADMIN_JWT_EXPIRY", "12h"), 12*time.Hour),
		AdminEmail:     getEnv("ADMIN_EMAIL", ""),

		LogRetentionDays: getInt("LOG_RETENTION_DAYS", 30),
		LogPersistLevel:  parseLevel(getEnv("LOG_PERSIST_LEVEL", "INFO")),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPSender:   getEnv("SMTP_SENDER", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		Environment: getEnv("APP_ENV", "production"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
