package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/authlink/pkg/errx"
)

// Config is the whole application configuration, read from the environment.
type Config struct {
	Server            ServerConfig
	Database          DatabaseConfig
	Redis             RedisConfig
	Core              CoreConfig
	Session           SessionConfig
	AccountLinking    AccountLinkingConfig
	MFA               MFAConfig
	EmailVerification EmailVerificationConfig
	Passwordless      PasswordlessConfig
	Notifx            NotifxConfig
	Jobx              JobxConfig
}

type ServerConfig struct {
	Port        string
	AppName     string
	Version     string
	CORSOrigins string
	Debug       bool
	APIBaseURL  string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CoreConfig points at the user store. Mode "memory" runs the in-process
// core, "http" talks to a remote one.
type CoreConfig struct {
	Mode          string
	ConnectionURI string
	APIKey        string
	CDIVersion    string
	Timeout       time.Duration
	ReadRetries   int
	RetryDelay    time.Duration
}

type SessionConfig struct {
	Store          string
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

type AccountLinkingConfig struct {
	// Enabled installs the automatic linking callback.
	Enabled              bool
	RequiresVerification bool
	MaxRetries           int
}

// MFAConfig drives the default multi-factor recipe.
type MFAConfig struct {
	Enabled bool
	// Tenants lists the known tenants. Empty means every tenant is accepted.
	Tenants []string
	// FirstFactors lists the factors allowed to start a session. Empty means
	// every factor is allowed.
	FirstFactors []string
	// RequiredSecondaryFactors must all be completed before a session is
	// fully authenticated.
	RequiredSecondaryFactors []string
}

type EmailVerificationConfig struct {
	// Mode is REQUIRED or OPTIONAL.
	Mode          string
	WebsiteDomain string
	VerifyPath    string
}

// PasswordlessConfig drives sign in/up with one time codes.
type PasswordlessConfig struct {
	Enabled     bool
	CodeLength  int
	CodeTTL     time.Duration
	MaxAttempts int
	// ResendCooldown is the minimum time between two codes for a contact.
	ResendCooldown time.Duration
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			AppName:     getEnv("APP_NAME", "Authlink"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			CORSOrigins: getEnv("CORS_ORIGINS", "*"),
			Debug:       getEnvBool("DEBUG", false),
			APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Name:            getEnv("DB_NAME", "authlink"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Core: CoreConfig{
			Mode:          getEnv("CORE_MODE", "memory"),
			ConnectionURI: getEnv("CORE_CONNECTION_URI", "http://localhost:3567"),
			APIKey:        getEnv("CORE_API_KEY", ""),
			CDIVersion:    getEnv("CORE_CDI_VERSION", "5.2"),
			Timeout:       getEnvDuration("CORE_TIMEOUT", 10*time.Second),
			ReadRetries:   getEnvInt("CORE_READ_RETRIES", 3),
			RetryDelay:    getEnvDuration("CORE_RETRY_DELAY", 100*time.Millisecond),
		},
		Session: SessionConfig{
			Store:          getEnv("SESSION_STORE", "redis"),
			Secret:         getEnv("SESSION_SECRET", ""),
			Issuer:         getEnv("SESSION_ISSUER", "authlink"),
			AccessTokenTTL: getEnvDuration("SESSION_ACCESS_TOKEN_TTL", time.Hour),
		},
		AccountLinking: AccountLinkingConfig{
			Enabled:              getEnvBool("ACCOUNT_LINKING_ENABLED", true),
			RequiresVerification: getEnvBool("ACCOUNT_LINKING_REQUIRES_VERIFICATION", true),
			MaxRetries:           getEnvInt("ACCOUNT_LINKING_MAX_RETRIES", 300),
		},
		MFA: MFAConfig{
			Enabled:                  getEnvBool("MFA_ENABLED", false),
			Tenants:                  getEnvStringSlice("MFA_TENANTS", nil),
			FirstFactors:             getEnvStringSlice("MFA_FIRST_FACTORS", nil),
			RequiredSecondaryFactors: getEnvStringSlice("MFA_REQUIRED_SECONDARY_FACTORS", nil),
		},
		EmailVerification: EmailVerificationConfig{
			Mode:          strings.ToUpper(getEnv("EMAIL_VERIFICATION_MODE", "REQUIRED")),
			WebsiteDomain: getEnv("WEBSITE_DOMAIN", "http://localhost:3000"),
			VerifyPath:    getEnv("EMAIL_VERIFICATION_PATH", "/auth/verify-email"),
		},
		Passwordless: PasswordlessConfig{
			Enabled:        getEnvBool("PASSWORDLESS_ENABLED", true),
			CodeLength:     getEnvInt("PASSWORDLESS_CODE_LENGTH", 6),
			CodeTTL:        getEnvDuration("PASSWORDLESS_CODE_TTL", 15*time.Minute),
			MaxAttempts:    getEnvInt("PASSWORDLESS_MAX_ATTEMPTS", 5),
			ResendCooldown: getEnvDuration("PASSWORDLESS_RESEND_COOLDOWN", time.Minute),
		},
		Notifx: loadNotifxConfig(),
		Jobx:   loadJobxConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Core.Mode {
	case "memory", "http":
	default:
		return errx.Configuration("unknown CORE_MODE").WithDetail("value", c.Core.Mode)
	}
	switch c.Session.Store {
	case "memory", "redis":
	default:
		return errx.Configuration("unknown SESSION_STORE").WithDetail("value", c.Session.Store)
	}
	if c.Session.Store == "redis" && c.Session.Secret == "" {
		return errx.Configuration("SESSION_SECRET is required with the redis session store")
	}
	switch c.EmailVerification.Mode {
	case "REQUIRED", "OPTIONAL":
	default:
		return errx.Configuration("EMAIL_VERIFICATION_MODE must be REQUIRED or OPTIONAL").
			WithDetail("value", c.EmailVerification.Mode)
	}
	if c.AccountLinking.MaxRetries <= 0 {
		return errx.Configuration("ACCOUNT_LINKING_MAX_RETRIES must be positive")
	}
	if c.Passwordless.Enabled {
		if c.Passwordless.CodeLength < 4 || c.Passwordless.CodeLength > 12 {
			return errx.Configuration("PASSWORDLESS_CODE_LENGTH must be between 4 and 12").
				WithDetail("value", c.Passwordless.CodeLength)
		}
		if c.Passwordless.MaxAttempts <= 0 || c.Passwordless.CodeTTL <= 0 {
			return errx.Configuration("PASSWORDLESS_MAX_ATTEMPTS and PASSWORDLESS_CODE_TTL must be positive")
		}
	}
	return nil
}

// ============================================================================
// Env helpers
// ============================================================================

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvStringSlice(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
