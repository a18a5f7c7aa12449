package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the storefront API.
type Config struct {
	Env      string
	Server   ServerConfig
	Postgres PostgresConfig
	Auth     AuthConfig
	Mail     MailConfig
	Metrics  MetricsConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	ResetTokenTTL      time.Duration
	BcryptCost         int
}

// MailConfig carries SMTP delivery settings and the public client URL
// embedded in outbound links.
type MailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	ClientURL    string
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Env: strings.ToLower(getString("STOREFRONT_ENV", "development")),
		Server: ServerConfig{
			Host:         getString("STOREFRONT_API_HOST", "0.0.0.0"),
			Port:         getInt("STOREFRONT_API_PORT", 8080),
			ReadTimeout:  getDuration("STOREFRONT_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("STOREFRONT_API_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDuration("STOREFRONT_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "storefront_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "storefront"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		Auth: loadAuthConfig(),
		Mail: MailConfig{
			SMTPHost:     getString("SMTP_HOST", "localhost"),
			SMTPPort:     getInt("SMTP_PORT", 587),
			SMTPUsername: getString("SMTP_USERNAME", ""),
			SMTPPassword: getString("SMTP_PASSWORD", ""),
			From:         getString("EMAIL_FROM", "no-reply@storefront.local"),
			ClientURL:    strings.TrimRight(getString("CLIENT_URL", "http://localhost:3000"), "/"),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("STOREFRONT_METRICS_PATH", "/metrics"),
		},
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig() AuthConfig {
	cost := getInt("STOREFRONT_AUTH_BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		AccessTokenSecret:  getString("STOREFRONT_JWT_SECRET", "change-me-to-a-32-byte-secret"),
		RefreshTokenSecret: getString("STOREFRONT_JWT_REFRESH_SECRET", "change-me-to-a-64-byte-secret"),
		AccessTokenTTL:     getDuration("STOREFRONT_AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getDuration("STOREFRONT_AUTH_REFRESH_TOKEN_TTL", 168*time.Hour),
		ResetTokenTTL:      getDuration("STOREFRONT_AUTH_RESET_TOKEN_TTL", time.Hour),
		BcryptCost:         cost,
	}
}
