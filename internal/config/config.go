// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"icemeta/internal/domain"
)

// Persistence strategy names.
const (
	StrategyTransactional = "transactional"
	StrategyAtomic        = "atomic"
)

const insecureDefaultKey = "0000000000000000000000000000000000000000000000000000000000000000"

// Config holds the configuration for the metastore service.
type Config struct {
	MetaDBPath    string // path to the SQLite metastore file
	ListenAddr    string // HTTP listen address (default ":8080")
	EncryptionKey string // 64-char hex string (32-byte AES key) for secrets at rest
	LogLevel      string // log level: debug, info, warn, error (default "info")
	Env           string // environment: "development" (default) or "production"
	Realm         string // realm identifier carried in logs (default "default")
	Strategy      string // persistence strategy: "transactional" (default) or "atomic"

	// TaskTimeoutMillis is how long a leased task stays owned by its
	// executor before it can be re-leased.
	TaskTimeoutMillis int64

	// TaskExecutorSchedule is the cron schedule of the background task
	// executor (default "@every 1m"). The value "off" disables it.
	TaskExecutorSchedule string

	// AdminJWTSecret enables HS256 bearer auth on the admin API when set.
	AdminJWTSecret string

	// AdminOIDCIssuer switches admin auth to OIDC token validation against
	// this issuer. Takes precedence over AdminJWTSecret.
	AdminOIDCIssuer string
	// AdminOIDCAudience is the expected audience of OIDC tokens. Empty skips
	// the audience check.
	AdminOIDCAudience string

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Storage credential vending
	AzureAccountKey    string        // storage account key for signing Azure SAS tokens
	CredentialDuration time.Duration // lifetime of vended credentials (default 1h)

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:        os.Getenv("META_DB_PATH"),
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		EncryptionKey:     os.Getenv("ENCRYPTION_KEY"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		Env:               os.Getenv("ENV"),
		Realm:             os.Getenv("REALM"),
		Strategy:          strings.ToLower(os.Getenv("PERSISTENCE_STRATEGY")),
		AdminJWTSecret:    os.Getenv("ADMIN_JWT_SECRET"),
		AdminOIDCIssuer:   os.Getenv("ADMIN_OIDC_ISSUER"),
		AdminOIDCAudience: os.Getenv("ADMIN_OIDC_AUDIENCE"),
		AzureAccountKey:   os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
	}

	if v := os.Getenv("TASK_TIMEOUT_MILLIS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.TaskTimeoutMillis = n
		} else {
			cfg.Warnings = append(cfg.Warnings, "TASK_TIMEOUT_MILLIS is not a positive integer — using default")
		}
	}
	if v := os.Getenv("TASK_EXECUTOR_SCHEDULE"); v != "" {
		cfg.TaskExecutorSchedule = v
	}
	if v := os.Getenv("CREDENTIAL_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CredentialDuration = d
		} else {
			cfg.Warnings = append(cfg.Warnings, "CREDENTIAL_DURATION is not a valid duration — using default")
		}
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "icemeta.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Realm == "" {
		cfg.Realm = "default"
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyTransactional
	}
	if cfg.Strategy != StrategyTransactional && cfg.Strategy != StrategyAtomic {
		return nil, fmt.Errorf("PERSISTENCE_STRATEGY must be %q or %q, got %q",
			StrategyTransactional, StrategyAtomic, cfg.Strategy)
	}
	if cfg.TaskTimeoutMillis == 0 {
		cfg.TaskTimeoutMillis = domain.DefaultTaskTimeoutMillis
	}
	if cfg.TaskExecutorSchedule == "" {
		cfg.TaskExecutorSchedule = "@every 1m"
	}
	if cfg.CredentialDuration == 0 {
		cfg.CredentialDuration = time.Hour
	}
	if cfg.EncryptionKey == "" {
		cfg.EncryptionKey = insecureDefaultKey
		cfg.Warnings = append(cfg.Warnings, "ENCRYPTION_KEY not set — using insecure default. Set ENCRYPTION_KEY in production!")
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.AdminJWTSecret == "" && cfg.AdminOIDCIssuer == "" {
		cfg.Warnings = append(cfg.Warnings, "ADMIN_JWT_SECRET and ADMIN_OIDC_ISSUER not set — admin API runs unauthenticated")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.EncryptionKey == insecureDefaultKey {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be set in production (ENV=production)")
		}
		if cfg.AdminJWTSecret == "" && cfg.AdminOIDCIssuer == "" {
			return nil, fmt.Errorf("ADMIN_JWT_SECRET or ADMIN_OIDC_ISSUER must be set in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
