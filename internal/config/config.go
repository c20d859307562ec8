package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/Tzesh/EcommerceAPI/pkg/config"
	"github.com/Tzesh/EcommerceAPI/pkg/database"
	"github.com/Tzesh/EcommerceAPI/pkg/tracing"
)

const (
	defaultJWTSecret        = "change-this-to-a-secure-secret"
	defaultAuthorizationKey = "change-this-authorization-key"
	minSecretLength         = 32
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"SERVICE_VERSION" envDefault:"0.1.0"`

	// HTTP server
	HTTPPort        int           `env:"AUTH_HTTP_PORT" envDefault:"8001"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// PostgreSQL
	PostgresHost        string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort        int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser        string        `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass        string        `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB          string        `env:"AUTH_DB_NAME" envDefault:"auth_db"`
	PostgresSSL         string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns    int32         `env:"POSTGRES_MAX_CONNS" envDefault:"25"`
	PostgresMinConns    int32         `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	PostgresMaxConnLife time.Duration `env:"POSTGRES_MAX_CONN_LIFETIME" envDefault:"1h"`
	PostgresMaxConnIdle time.Duration `env:"POSTGRES_MAX_CONN_IDLE" envDefault:"30m"`
	SlowQueryThreshold  time.Duration `env:"POSTGRES_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis backs the login attempt limiter. Empty host disables it.
	RedisHost          string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort          int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	LoginMaxAttempts   int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginAttemptWindow time.Duration `env:"LOGIN_ATTEMPT_WINDOW" envDefault:"15m"`

	// Kafka. Empty broker list disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"auth-service"`

	// AuthorizationKey is the shared secret required to change a user's role.
	AuthorizationKey string `env:"AUTHORIZATION_KEY" envDefault:"change-this-authorization-key"`

	// BcryptCost for password hashes.
	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	// Per-client request rate on /api/v1/auth.
	RateLimitRPS            float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst          int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
	RateLimitTrustForwarded bool    `env:"RATE_LIMIT_TRUST_FORWARDED" envDefault:"false"`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// PprofAllowedCIDRs enables /debug/pprof for these networks.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. Outside development it also rejects default
// or short secrets.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}
	if c.JWTRefreshExpiry < c.JWTAccessExpiry {
		return fmt.Errorf("JWT_REFRESH_TOKEN_EXPIRY (%s) must not be shorter than JWT_ACCESS_TOKEN_EXPIRY (%s)",
			c.JWTRefreshExpiry, c.JWTAccessExpiry)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("invalid BCRYPT_COST: %d", c.BcryptCost)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must allow at least one request")
	}

	if c.Environment == "development" {
		return nil
	}

	secrets := []struct {
		name, value, fallback string
	}{
		{"JWT_SECRET", c.JWTSecret, defaultJWTSecret},
		{"AUTHORIZATION_KEY", c.AuthorizationKey, defaultAuthorizationKey},
	}
	for _, s := range secrets {
		if s.value == s.fallback {
			return fmt.Errorf("%s must be explicitly set via environment variable in %q mode", s.name, c.Environment)
		}
		if len(s.value) < minSecretLength {
			return fmt.Errorf("%s must be at least %d characters long, got %d", s.name, minSecretLength, len(s.value))
		}
	}
	if c.JWTSecret == c.AuthorizationKey {
		return fmt.Errorf("JWT_SECRET and AUTHORIZATION_KEY must differ")
	}
	return nil
}

// Postgres returns the connection settings for database.NewPostgresPool.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:               c.PostgresHost,
		Port:               c.PostgresPort,
		User:               c.PostgresUser,
		Password:           c.PostgresPass,
		DBName:             c.PostgresDB,
		SSLMode:            c.PostgresSSL,
		MaxConns:           c.PostgresMaxConns,
		MinConns:           c.PostgresMinConns,
		MaxConnLifetime:    c.PostgresMaxConnLife,
		MaxConnIdleTime:    c.PostgresMaxConnIdle,
		SlowQueryThreshold: c.SlowQueryThreshold,
	}
}

// Redis returns the connection settings for database.NewRedisClient.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Tracing returns the OpenTelemetry settings.
func (c *Config) Tracing(serviceName string) tracing.Config {
	return tracing.Config{
		Enabled:        c.OTELEnabled,
		ServiceName:    serviceName,
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTELEndpoint,
		Insecure:       c.OTELInsecure,
		SampleRate:     c.OTELSampleRate,
	}
}
