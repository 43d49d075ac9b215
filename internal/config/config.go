package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

const defaultDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

// StorageType selects the receipt storage backend.
type StorageType string

const (
	StorageLocal StorageType = "local"
	StorageS3    StorageType = "s3"
	StorageGCS   StorageType = "gcs"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// DevSecretKey signs cookies when APP_ENV=development and SECRET_KEY is unset.
	DevSecretKey = "default-secret-key"
)

// IsValid reports whether the storage type is one of the supported backends.
func (t StorageType) IsValid() bool {
	switch t {
	case StorageLocal, StorageS3, StorageGCS:
		return true
	default:
		return false
	}
}

// Config is built once at startup and passed to every component. Nothing
// reads the environment after Load returns.
type Config struct {
	// Environment is "development" or "production".
	Environment string

	// HTTP Server
	Port          string
	SecretKey     string
	SecureCookies bool
	LogLevel      slog.Level

	// Database
	DatabaseURL string

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleDiscoveryURL string
	OAuthRedirectURL   string

	// Receipt storage
	StorageType        StorageType
	UploadDir          string
	S3Bucket           string
	S3Region           string
	S3AccessKey        string
	S3SecretKey        string
	GCSBucket          string
	GCSCredentialsJSON string
	GCSCredentialsFile string

	// Reports
	CurrencyPrefix string

	// Sessions
	SessionCleanupInterval time.Duration
}

func Load() *Config {
	env := strings.ToLower(getEnv("APP_ENV", EnvProduction))
	secret := getEnv("SECRET_KEY", "")
	if secret == "" && env == EnvDevelopment {
		secret = DevSecretKey
	}

	return &Config{
		Environment: env,

		Port:          getEnv("PORT", "8080"),
		SecretKey:     secret,
		SecureCookies: getEnvBool("SECURE_COOKIES", false),
		LogLevel:      getEnvLevel("LOG_LEVEL", slog.LevelInfo),

		DatabaseURL: getEnv("DATABASE_URL", "sqlite:///database.db"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleDiscoveryURL: getEnv("GOOGLE_DISCOVERY_URL", defaultDiscoveryURL),
		OAuthRedirectURL:   getEnv("OAUTH_REDIRECT_URL", ""),

		StorageType:        StorageType(strings.ToLower(getEnv("STORAGE_TYPE", string(StorageLocal)))),
		UploadDir:          getEnv("UPLOAD_DIR", "static"),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Region:           getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:        getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:        getEnv("S3_SECRET_KEY", ""),
		GCSBucket:          getEnv("GCS_BUCKET", ""),
		GCSCredentialsJSON: getEnv("GCS_CREDENTIALS_JSON", ""),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),

		CurrencyPrefix: getEnv("CURRENCY_PREFIX", "Rs. "),

		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
	}
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		errors = append(errors, fmt.Sprintf("invalid APP_ENV '%s': must be development or production", c.Environment))
	}
	if c.SecretKey == "" {
		errors = append(errors, "SECRET_KEY must be set")
	} else if c.SecretKey == DevSecretKey && c.Environment != EnvDevelopment {
		errors = append(errors, "SECRET_KEY must not use the development default outside development")
	}

	if c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL cannot be empty")
	} else if !hasAnyPrefix(c.DatabaseURL, "sqlite://", "postgres://", "postgresql://") {
		errors = append(errors, fmt.Sprintf("unsupported DATABASE_URL scheme in '%s': must be sqlite://, postgres:// or postgresql://", redactURL(c.DatabaseURL)))
	}

	// Half-configured Google sign-in is almost always a deployment mistake.
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		errors = append(errors, "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	if c.GoogleEnabled() {
		if u, err := url.Parse(c.GoogleDiscoveryURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid GOOGLE_DISCOVERY_URL '%s'", c.GoogleDiscoveryURL))
		}
	}

	if !c.StorageType.IsValid() {
		valid := []string{string(StorageLocal), string(StorageS3), string(StorageGCS)}
		errors = append(errors, fmt.Sprintf("invalid storage type '%s': must be one of %v", c.StorageType, valid))
	}
	if c.UploadDir == "" {
		errors = append(errors, "UPLOAD_DIR cannot be empty")
	}

	switch c.StorageType {
	case StorageS3:
		if c.S3Bucket == "" {
			errors = append(errors, "S3_BUCKET is required when using s3 storage")
		}
		if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
			errors = append(errors, "S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
		}
	case StorageGCS:
		if c.GCSBucket == "" {
			errors = append(errors, "GCS_BUCKET is required when using gcs storage")
		}
		if c.GCSCredentialsFile != "" {
			if _, err := os.Stat(c.GCSCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("GCS credentials file does not exist: %s", c.GCSCredentialsFile))
			}
		}
	}

	if c.SessionCleanupInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session cleanup interval %v: must be at least 1 minute", c.SessionCleanupInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	return slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(s, p) })
}

// redactURL hides credentials embedded in a connection string.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvLevel(key string, defaultValue slog.Level) slog.Level {
	if value := os.Getenv(key); value != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err == nil {
			return level
		}
	}
	return defaultValue
}
