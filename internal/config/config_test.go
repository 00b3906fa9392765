package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/split-checkout/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"COMMERCE_BASE_URL": "https://api.example.test",
		"REDIS_URL":         "redis://localhost:6379/0",
		"PORT":              "",
		"SESSION_TTL":       "",
		"CSV_IMPORT_ENABLED": "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 2*time.Hour, cfg.SessionTTL)
	require.Equal(t, 10*time.Second, cfg.CommerceTimeout)
	require.True(t, cfg.CSVImportEnabled)
	require.Equal(t, 500, cfg.CSVImportMaxRows)
	require.Equal(t, "splitcheckout", cfg.MetricsNamespace)
}

func TestLoadRequiresCommerceBaseURL(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"COMMERCE_BASE_URL": "",
		"REDIS_URL":         "redis://localhost:6379/0",
	})
	require.ErrorContains(t, err, "COMMERCE_BASE_URL")
}

func TestLoadRequiresRedisURL(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"COMMERCE_BASE_URL": "https://api.example.test",
		"REDIS_URL":         "",
	})
	require.ErrorContains(t, err, "REDIS_URL")
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"COMMERCE_BASE_URL":     "https://api.example.test",
		"REDIS_URL":             "redis://localhost:6379/0",
		"PORT":                  "9090",
		"CSV_IMPORT_ENABLED":    "false",
		"SESSION_TTL":           "30m",
		"CORS_ALLOWED_ORIGINS":  "https://shop.example.test, https://admin.example.test",
		"RATE_LIMIT_PER_MINUTE": "10",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.False(t, cfg.CSVImportEnabled)
	require.Equal(t, 30*time.Minute, cfg.SessionTTL)
	require.Len(t, cfg.CORSAllowedOrigins, 2)
	require.Equal(t, 10, cfg.RateLimitPerMinute)
}
