package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const minProductionSecretLen = 32

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	APIKey   APIKeyConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token and session parameters.
type AuthConfig struct {
	JWTSecret               string
	Issuer                  string
	AccessTokenTTLMinutes   int
	RefreshTokenTTLHours    int
	AbsoluteSessionHours    int
	BcryptCost              int
	ImpersonationTTLMinutes int
}

// APIKeyConfig defines API key defaults.
type APIKeyConfig struct {
	DefaultRateLimit  int
	RateWindowSeconds int
	TouchTimeoutMS    int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "facility-auth"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:               getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:                  getEnv("AUTH_ISSUER", "facility-auth"),
			AccessTokenTTLMinutes:   getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 15),
			RefreshTokenTTLHours:    getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_HOURS", 168),
			AbsoluteSessionHours:    getEnvAsInt("AUTH_ABSOLUTE_SESSION_HOURS", 24),
			BcryptCost:              getEnvAsInt("AUTH_BCRYPT_COST", 12),
			ImpersonationTTLMinutes: getEnvAsInt("AUTH_IMPERSONATION_TTL_MINUTES", 60),
		},
		APIKey: APIKeyConfig{
			DefaultRateLimit:  getEnvAsInt("APIKEY_DEFAULT_RATE_LIMIT", 1000),
			RateWindowSeconds: getEnvAsInt("APIKEY_RATE_WINDOW_SECONDS", 60),
			TouchTimeoutMS:    getEnvAsInt("APIKEY_TOUCH_TIMEOUT_MS", 2000),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.App.Env == "production" && len(c.Auth.JWTSecret) < minProductionSecretLen {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes in production (got %d)", minProductionSecretLen, len(c.Auth.JWTSecret))
	}
	if c.Auth.AbsoluteSessionHours <= 0 {
		return fmt.Errorf("AUTH_ABSOLUTE_SESSION_HOURS must be positive")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTTL returns the access token lifetime.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTTL returns the refresh token lifetime.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTokenTTLHours) * time.Hour
}

// AbsoluteSessionTimeout returns the hard ceiling on refresh-session lifetime.
func (a AuthConfig) AbsoluteSessionTimeout() time.Duration {
	return time.Duration(a.AbsoluteSessionHours) * time.Hour
}

// ImpersonationTTL returns how long an impersonation session may stay open.
func (a AuthConfig) ImpersonationTTL() time.Duration {
	return time.Duration(a.ImpersonationTTLMinutes) * time.Minute
}

// RateWindow returns the API key rate-limit window.
func (a APIKeyConfig) RateWindow() time.Duration {
	if a.RateWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(a.RateWindowSeconds) * time.Second
}

// TouchTimeout bounds the background last-used update.
func (a APIKeyConfig) TouchTimeout() time.Duration {
	if a.TouchTimeoutMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(a.TouchTimeoutMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
