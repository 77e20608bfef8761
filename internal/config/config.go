package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/utafrali/identity/internal/auth"
	"github.com/utafrali/identity/internal/notify"
	pkgconfig "github.com/utafrali/identity/pkg/config"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the identity service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPHost       string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort       int           `env:"HTTP_PORT" envDefault:"8000"`
	APIPrefix      string        `env:"API_PREFIX" envDefault:"/api/v1"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// PostgreSQL. DATABASE_URL wins over the discrete settings when set.
	DatabaseURL  string `env:"DATABASE_URL"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"identity"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"identity_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"identity"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"500"`

	// Redis (refresh token store)
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// JWT
	JWTSecret             string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAlgorithm          string        `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTAccessExpiry       time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry      time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	JWTVerificationExpiry time.Duration `env:"JWT_VERIFICATION_TOKEN_EXPIRY" envDefault:"10m"`

	// Credentials and sessions
	BcryptCost         int      `env:"BCRYPT_COST" envDefault:"12"`
	RefreshStrictMatch bool     `env:"REFRESH_STRICT_MATCH" envDefault:"true"`
	AdminEmails        []string `env:"ADMIN_EMAILS" envSeparator:","`

	// PublicBaseURL prefixes links sent by email. Derived from the HTTP
	// settings when empty. A value without a path gets API_PREFIX appended.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	// Notifications
	NotifyTransport   string        `env:"NOTIFY_TRANSPORT" envDefault:"log"`
	NotifySendTimeout time.Duration `env:"NOTIFY_SEND_TIMEOUT" envDefault:"30s"`
	NotifyTopic       string        `env:"NOTIFY_TOPIC" envDefault:"identity.notifications"`

	// SMTP transport
	SMTPHost        string        `env:"SMTP_HOST"`
	SMTPPort        int           `env:"SMTP_PORT" envDefault:"465"`
	SMTPUsername    string        `env:"SMTP_USERNAME"`
	SMTPPassword    string        `env:"SMTP_PASSWORD"`
	SMTPSender      string        `env:"SMTP_SENDER"`
	SMTPImplicitTLS bool          `env:"SMTP_IMPLICIT_TLS" envDefault:"true"`
	SMTPTimeout     time.Duration `env:"SMTP_TIMEOUT" envDefault:"10s"`

	// Kafka transport
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool              `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string            `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure   bool              `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELHeaders    map[string]string `env:"OTEL_EXPORTER_OTLP_HEADERS" envSeparator:"," envKeyValSeparator:"="`
	OTELSampleRate float64           `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load identity config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Keys lists every environment variable Load reads.
func Keys() ([]string, error) {
	return pkgconfig.Keys(&Config{})
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with '/', got %q", c.APIPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.DatabaseURL == "" && c.PostgresHost == "" {
		return fmt.Errorf("DATABASE_URL or POSTGRES_HOST is required")
	}
	if c.RedisPort < 1 || c.RedisPort > 65535 {
		return fmt.Errorf("invalid Redis port: %d", c.RedisPort)
	}

	if !auth.SupportedAlgorithm(c.JWTAlgorithm) {
		return fmt.Errorf("JWT_ALGORITHM must be one of HS256, HS384, HS512, got %q", c.JWTAlgorithm)
	}
	for name, d := range map[string]time.Duration{
		"JWT_ACCESS_TOKEN_EXPIRY":       c.JWTAccessExpiry,
		"JWT_REFRESH_TOKEN_EXPIRY":      c.JWTRefreshExpiry,
		"JWT_VERIFICATION_TOKEN_EXPIRY": c.JWTVerificationExpiry,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.JWTRefreshExpiry <= c.JWTAccessExpiry {
		return fmt.Errorf("JWT_REFRESH_TOKEN_EXPIRY (%s) must exceed JWT_ACCESS_TOKEN_EXPIRY (%s)", c.JWTRefreshExpiry, c.JWTAccessExpiry)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}

	if c.PublicBaseURL != "" {
		if _, err := url.ParseRequestURI(c.PublicBaseURL); err != nil {
			return fmt.Errorf("invalid PUBLIC_BASE_URL %q: %w", c.PublicBaseURL, err)
		}
	}

	switch c.NotifyTransport {
	case notify.TransportSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when NOTIFY_TRANSPORT=smtp")
		}
		if c.SMTPPort < 1 || c.SMTPPort > 65535 {
			return fmt.Errorf("invalid SMTP port: %d", c.SMTPPort)
		}
		if c.SMTPSender == "" {
			return fmt.Errorf("SMTP_SENDER is required when NOTIFY_TRANSPORT=smtp")
		}
	case notify.TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when NOTIFY_TRANSPORT=kafka")
		}
		if c.NotifyTopic == "" {
			return fmt.Errorf("NOTIFY_TOPIC is required when NOTIFY_TRANSPORT=kafka")
		}
	case notify.TransportLog:
	default:
		return fmt.Errorf("NOTIFY_TRANSPORT must be one of smtp, kafka, log, got %q", c.NotifyTransport)
	}

	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// PublicURL returns the base URL used in emailed links.
func (c *Config) PublicURL() string {
	if c.PublicBaseURL != "" {
		base := strings.TrimRight(c.PublicBaseURL, "/")
		if u, err := url.Parse(base); err == nil && u.Path == "" {
			base += strings.TrimRight(c.APIPrefix, "/")
		}
		return base
	}
	host := c.HTTPHost
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d%s", host, c.HTTPPort, strings.TrimRight(c.APIPrefix, "/"))
}

// HTTPAddr returns the listen address of the HTTP server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}
