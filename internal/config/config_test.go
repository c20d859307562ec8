package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgconfig "github.com/Tzesh/EcommerceAPI/pkg/config"
)

var (
	strongJWT = strings.Repeat("j", 40)
	strongKey = strings.Repeat("k", 40)
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func fromMap(t *testing.T, envs map[string]string) *Config {
	t.Helper()
	cfg := &Config{}
	require.NoError(t, pkgconfig.LoadFrom(cfg, envs))
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development"})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.HTTPPort)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshExpiry)
	assert.Equal(t, "auth-service", cfg.JWTIssuer)
	assert.Equal(t, 5, cfg.LoginMaxAttempts)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Empty(t, cfg.PprofAllowedCIDRs)
}

func TestLoad_Production_RejectsDefaultSecrets(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  defaultJWTSecret,
	})

	cfg, err := Load()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be explicitly set")
}

func TestValidate_Secrets(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{
			name: "development accepts defaults",
			envs: map[string]string{"ENVIRONMENT": "development"},
		},
		{
			name:    "staging rejects default authorization key",
			envs:    map[string]string{"ENVIRONMENT": "staging", "JWT_SECRET": strongJWT},
			wantErr: "AUTHORIZATION_KEY must be explicitly set",
		},
		{
			name:    "production rejects short jwt secret",
			envs:    map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": "short", "AUTHORIZATION_KEY": strongKey},
			wantErr: "JWT_SECRET must be at least 32 characters long, got 5",
		},
		{
			name:    "production rejects shared secret",
			envs:    map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": strongJWT, "AUTHORIZATION_KEY": strongJWT},
			wantErr: "must differ",
		},
		{
			name: "production accepts strong secrets",
			envs: map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": strongJWT, "AUTHORIZATION_KEY": strongKey},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fromMap(t, tt.envs).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{"port", map[string]string{"AUTH_HTTP_PORT": "70000"}, "invalid HTTP port"},
		{"refresh shorter than access", map[string]string{"JWT_ACCESS_TOKEN_EXPIRY": "2h", "JWT_REFRESH_TOKEN_EXPIRY": "1h"}, "must not be shorter"},
		{"bcrypt cost", map[string]string{"BCRYPT_COST": "2"}, "invalid BCRYPT_COST"},
		{"rate limit", map[string]string{"RATE_LIMIT_BURST": "0"}, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fromMap(t, tt.envs).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Derived(t *testing.T) {
	cfg := fromMap(t, map[string]string{
		"POSTGRES_HOST":    "pg",
		"POSTGRES_USER":    "auth",
		"AUTH_DB_NAME":     "auth",
		"REDIS_HOST":       "cache",
		"OTEL_ENABLED":     "true",
		"OTEL_SAMPLE_RATE": "0.1",
	})

	pg := cfg.Postgres()
	assert.Equal(t, "pg", pg.Host)
	assert.Equal(t, int32(25), pg.MaxConns)
	assert.Equal(t, 200*time.Millisecond, pg.SlowQueryThreshold)

	assert.Equal(t, "cache:6379", cfg.Redis().Addr())

	tr := cfg.Tracing("auth-service")
	assert.True(t, tr.Enabled)
	assert.Equal(t, "auth-service", tr.ServiceName)
	assert.InDelta(t, 0.1, tr.SampleRate, 1e-9)
}
