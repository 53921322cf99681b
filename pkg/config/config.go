package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/phone"
)

// defaultJWTSecret is only accepted with APP_ENV=local.
const defaultJWTSecret = "secret"

type Config struct {
	Port               string
	DatabaseURL        string
	AppEnv             string
	LogLevel           string
	CountryCode        string
	BasicAuthPassword  string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	JWTSecret          string
	FrontendURL        string
	AllowedEmails      []string
	CORSOrigins        []string
	TrustedProxies     []string
	RateLimitPerMinute int
	RateLimitBurst     int
	ImportMaxBytes     int64
}

func Load() *Config {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", "file:db.sqlite"),
		AppEnv:             getEnv("APP_ENV", "local"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CountryCode:        getEnv("COUNTRY_CODE", phone.DefaultCountryCode),
		BasicAuthPassword:  getEnv("BASIC_AUTH_PASSWORD", ""),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback"),
		JWTSecret:          getEnv("JWT_SECRET", defaultJWTSecret),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:8080/"),
		AllowedEmails:      getList("ALLOWED_EMAILS", nil),
		CORSOrigins:        getList("CORS_ORIGINS", []string{"*"}),
		TrustedProxies:     getList("TRUSTED_PROXIES", nil),
		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 20),
		ImportMaxBytes:     int64(getInt("IMPORT_MAX_BYTES", 10<<20)),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if err := phone.ValidateCountryCode(c.CountryCode); err != nil {
		errs = append(errs, fmt.Errorf("COUNTRY_CODE: %w", err))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute))
	}
	if c.RateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be positive, got %d", c.RateLimitBurst))
	}
	if c.ImportMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("IMPORT_MAX_BYTES must be positive, got %d", c.ImportMaxBytes))
	}
	switch {
	case c.JWTSecret == "":
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	case c.JWTSecret == defaultJWTSecret && c.AppEnv != "local":
		errs = append(errs, fmt.Errorf("JWT_SECRET must be changed from the default when APP_ENV=%s", c.AppEnv))
	}
	if len(c.TrustedProxies) > 0 {
		if _, err := ParseTrustedProxies(c.TrustedProxies); err != nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
		}
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// ParseTrustedProxies parses IPs and CIDR ranges. A bare IP becomes a single-host prefix.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
