// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8443).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// PublicBaseURL is the externally visible base URL used to build provider redirect URIs.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`
	// ProductSlug is the product segment of API routes (e.g. "account-management").
	ProductSlug string `mapstructure:"PRODUCT_SLUG"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or a path to one.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or a path to one.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim on issued tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim on issued tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "5m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "2160h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// CookieEncryptionKey is the hex-encoded 32-byte AES key sealing the login correlation cookie and state blob.
	CookieEncryptionKey string `mapstructure:"COOKIE_ENCRYPTION_KEY"`
	// BcryptCost is the bcrypt cost for one-time-code hashing (4–31); default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// GoogleClientID and GoogleClientSecret configure the Google external login provider.
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	// GitHubClientID and GitHubClientSecret configure the GitHub external login provider.
	GitHubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET"`

	// SMTPAddr is the host:port of the outbound mail relay; empty enables log-only email.
	SMTPAddr string `mapstructure:"SMTP_ADDR"`
	// SMTPFrom is the From address on verification emails.
	SMTPFrom string `mapstructure:"SMTP_FROM"`
	// SMTPUsername and SMTPPassword authenticate against the relay when set.
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	// CodeReturnToClient when true enables dev code mode: verification codes are kept
	// in memory for GET /dev/verification/code instead of being emailed.
	// Must not be true when Env is production (refused at startup).
	CodeReturnToClient bool `mapstructure:"CODE_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses; empty disables the Kafka emitter.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for telemetry events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group id used by cmd/worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8443")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8443")
	v.SetDefault("PRODUCT_SLUG", "account-management")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "identity-core")
	v.SetDefault("JWT_AUDIENCE", "identity-core-api")
	v.SetDefault("JWT_ACCESS_TTL", "5m")
	v.SetDefault("JWT_REFRESH_TTL", "2160h") // 90d
	v.SetDefault("COOKIE_ENCRYPTION_KEY", "")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("SMTP_ADDR", "")
	v.SetDefault("SMTP_FROM", "no-reply@localhost")
	v.SetDefault("CODE_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "identity-telemetry")
	v.SetDefault("KAFKA_GROUP_ID", "identity-telemetry-worker")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.PublicBaseURL == "" {
		return nil, errors.New("config: PUBLIC_BASE_URL must be set")
	}

	if cfg.CodeReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: CODE_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 2160h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 2160 * time.Hour
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka emitter is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
