package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	CommerceBaseURL string
	CommerceAPIKey  string
	CommerceTimeout time.Duration

	RedisURL      string
	SessionTTL    time.Duration
	SubmitLockTTL time.Duration

	CSVImportEnabled bool
	CSVImportMaxRows int

	CORSAllowedOrigins []string
	RateLimitPerMinute int
	MaxBodyBytes       int64

	LogFormat string
	LogLevel  string

	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingEndpoint  string
	TracingSampling  float64
	PprofEnabled     bool
	PprofToken       string

	CacheTTL time.Duration
	IdemTTL  time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		CommerceBaseURL:    strings.TrimSpace(k.String("COMMERCE_BASE_URL")),
		CommerceAPIKey:     strings.TrimSpace(k.String("COMMERCE_API_KEY")),
		CommerceTimeout:    parseDuration(k.String("COMMERCE_TIMEOUT"), "10s"),
		RedisURL:           k.String("REDIS_URL"),
		SessionTTL:         parseDuration(k.String("SESSION_TTL"), "2h"),
		SubmitLockTTL:      parseDuration(k.String("SUBMIT_LOCK_TTL"), "30s"),
		CSVImportEnabled:   parseBoolDefault(k.String("CSV_IMPORT_ENABLED"), true),
		CSVImportMaxRows:   intOrDefault(k.Int("CSV_IMPORT_MAX_ROWS"), 500),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RateLimitPerMinute: intOrDefault(k.Int("RATE_LIMIT_PER_MINUTE"), 120),
		MaxBodyBytes:       int64(intOrDefault(k.Int("MAX_BODY_BYTES"), 1<<20)),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),
		MetricsNamespace:   valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "splitcheckout"),
		MetricsBuckets:     k.String("OBS_METRICS_BUCKETS_MS"),
		TracingEnabled:     parseBool(k.String("OBS_TRACING_ENABLED")),
		TracingEndpoint:    strings.TrimSpace(k.String("OBS_TRACING_ENDPOINT")),
		TracingSampling:    k.Float64("OBS_TRACING_SAMPLING"),
		PprofEnabled:       parseBool(k.String("OBS_PPROF_ENABLED")),
		PprofToken:         strings.TrimSpace(k.String("OBS_PPROF_TOKEN")),
		CacheTTL:           parseDuration(k.String("REFDATA_CACHE_TTL"), "10m"),
		IdemTTL:            parseDuration(k.String("IDEMPOTENCY_TTL"), "5m"),
	}

	if cfg.CommerceBaseURL == "" {
		return nil, errors.New("COMMERCE_BASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
