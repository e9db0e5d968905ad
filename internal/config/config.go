package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Lockout  LockoutConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	// Channel carries session create/terminate events across replicas.
	Channel string
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
	// TrustedProxies are CIDR ranges whose forwarded-IP headers are honored.
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	SessionTTL         time.Duration
	ChallengeTTL       time.Duration
	CodeTTL            time.Duration
	// RotateRefreshToken issues a new refresh token on every refresh call.
	// Off by default to match fixed-pair behavior.
	RotateRefreshToken bool
	// SlidingSessions renews the session TTL on authenticated activity.
	SlidingSessions bool
	CleanupInterval time.Duration
	// AttemptRetention bounds how long login attempt rows are kept.
	AttemptRetention time.Duration
}

type LockoutConfig struct {
	// Password lockout: failures within FailureWindow accumulate; exceeding
	// MaxFailures locks the account for LockDuration.
	MaxFailures   int
	FailureWindow time.Duration
	LockDuration  time.Duration
	// Two-factor lockout runs an independent counter with its own threshold
	// and a longer lock.
	MaxCodeFailures  int
	CodeLockDuration time.Duration
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			Channel:      getEnv("REDIS_SESSION_CHANNEL", "gatehouse:sessions"),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 8*time.Hour),
			SessionTTL:         getEnvAsDuration("SESSION_TTL", 8*time.Hour),
			ChallengeTTL:       getEnvAsDuration("CHALLENGE_TOKEN_EXPIRY", 5*time.Minute),
			CodeTTL:            getEnvAsDuration("TWO_FACTOR_CODE_EXPIRY", 20*time.Minute),
			RotateRefreshToken: getEnvAsBool("ROTATE_REFRESH_TOKEN", false),
			SlidingSessions:    getEnvAsBool("SLIDING_SESSIONS", false),
			CleanupInterval:    getEnvAsDuration("ATTEMPT_CLEANUP_INTERVAL", 1*time.Hour),
			AttemptRetention:   getEnvAsDuration("ATTEMPT_RETENTION", 720*time.Hour),
		},
		Lockout: LockoutConfig{
			MaxFailures:      getEnvAsInt("LOCKOUT_MAX_FAILURES", 5),
			FailureWindow:    getEnvAsDuration("LOCKOUT_FAILURE_WINDOW", 60*time.Second),
			LockDuration:     getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			MaxCodeFailures:  getEnvAsInt("LOCKOUT_MAX_CODE_FAILURES", 10),
			CodeLockDuration: getEnvAsDuration("LOCKOUT_CODE_DURATION", 30*time.Minute),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsSlice(key string) []string {
	value := os.Getenv(key)
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

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
