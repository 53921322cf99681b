package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env here
	for _, key := range []string{"PORT", "DATABASE_URL", "COUNTRY_CODE", "ALLOWED_EMAILS", "CORS_ORIGINS", "RATE_LIMIT_PER_MINUTE", "IMPORT_MAX_BYTES"} {
		t.Setenv(key, "") // restored after the test
		require.NoError(t, os.Unsetenv(key))
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "file:db.sqlite", cfg.DatabaseURL)
	assert.Equal(t, "+62", cfg.CountryCode)
	assert.Empty(t, cfg.AllowedEmails)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.Equal(t, int64(10<<20), cfg.ImportMaxBytes)
}

func TestLoad_BlankListAndBadInt(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CORS_ORIGINS", " , ")
	t.Setenv("RATE_LIMIT_BURST", "lots")

	cfg := Load()

	assert.Empty(t, cfg.CORSOrigins)
	assert.Equal(t, 20, cfg.RateLimitBurst)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "local")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")
	t.Setenv("DATABASE_URL", "libsql://tags.turso.io")
	t.Setenv("COUNTRY_CODE", "+44")
	t.Setenv("ALLOWED_EMAILS", "a@example.com, b@example.com,")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "120")
	t.Setenv("IMPORT_MAX_BYTES", "1024")

	cfg := Load()

	assert.Equal(t, "libsql://tags.turso.io", cfg.DatabaseURL)
	assert.Equal(t, "+44", cfg.CountryCode)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.AllowedEmails)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, int64(1024), cfg.ImportMaxBytes)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.TrustedProxies)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EmptyJWTSecretFailsValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "local")
	t.Setenv("JWT_SECRET", "")

	err := Load().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidate_CustomSecretOutsideLocal(t *testing.T) {
	cfg := Config{
		DatabaseURL:        "file:db.sqlite",
		AppEnv:             "production",
		CountryCode:        "+62",
		JWTSecret:          "a-long-random-value",
		RateLimitPerMinute: 60,
		RateLimitBurst:     20,
		ImportMaxBytes:     1 << 20,
	}
	assert.NoError(t, cfg.Validate())
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.1.2.3/8", "192.0.2.7", "::1"})
	require.NoError(t, err)
	require.Len(t, prefixes, 3)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.0.2.7/32", prefixes[1].String())
	assert.Equal(t, "::1/128", prefixes[2].String())

	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		DatabaseURL:        "file:db.sqlite",
		AppEnv:             "local",
		CountryCode:        "+62",
		JWTSecret:          "secret",
		RateLimitPerMinute: 60,
		RateLimitBurst:     20,
		ImportMaxBytes:     1 << 20,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "bad country code", mutate: func(c *Config) { c.CountryCode = "62" }, want: "COUNTRY_CODE"},
		{name: "zero rate", mutate: func(c *Config) { c.RateLimitPerMinute = 0 }, want: "RATE_LIMIT_PER_MINUTE"},
		{name: "zero burst", mutate: func(c *Config) { c.RateLimitBurst = 0 }, want: "RATE_LIMIT_BURST"},
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, want: "DATABASE_URL"},
		{name: "default secret in production", mutate: func(c *Config) { c.AppEnv = "production" }, want: "JWT_SECRET"},
		{name: "default secret in staging", mutate: func(c *Config) { c.AppEnv = "staging" }, want: "JWT_SECRET"},
		{name: "empty secret", mutate: func(c *Config) { c.JWTSecret = "" }, want: "JWT_SECRET must not be empty"},
		{name: "empty secret in production", mutate: func(c *Config) { c.AppEnv = "production"; c.JWTSecret = "" }, want: "JWT_SECRET"},
		{name: "bad trusted proxy", mutate: func(c *Config) { c.TrustedProxies = []string{"not-an-ip"} }, want: "TRUSTED_PROXIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
