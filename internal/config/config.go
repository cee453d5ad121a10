package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "go-vision-analyzer/internal/errors"

	"github.com/joho/godotenv"
)

// Config carries all process-wide settings. It is built once at startup
// and treated as read-only for the process lifetime.
type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	AnalysisTimeout    time.Duration
	MaxRequestBodySize int64
	MaxImageBytes      int64
	BatchWorkers       int

	GeminiAPIKey string
	GeminiModel  string

	AzureAccountName string
	AzureAccountKey  string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// AzureEnabled reports whether blob storage credentials were supplied.
func (c *Config) AzureEnabled() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

// LoadFromEnv reads configuration from the environment. A .env file in the
// working directory is merged in first when present.
func LoadFromEnv() (*Config, error) {
	// Optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 60*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		AnalysisTimeout:    parseDurationOrDefault("ANALYSIS_TIMEOUT", 45*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB
		MaxImageBytes:      parseIntOrDefault("MAX_IMAGE_BYTES", 8*1024*1024),
		BatchWorkers:       int(parseIntOrDefault("BATCH_WORKERS", 4)),

		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:  strings.TrimSpace(getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash")),

		AzureAccountName: strings.TrimSpace(os.Getenv("AZURE_STORAGE_ACCOUNT")),
		AzureAccountKey:  strings.TrimSpace(os.Getenv("AZURE_STORAGE_KEY")),
	}

	// Missing credentials prevent the pipeline from being constructed at all
	if cfg.GeminiAPIKey == "" {
		return nil, apperrors.NewConfigurationError("GEMINI_API_KEY is not set", nil)
	}
	if cfg.GeminiModel == "" {
		return nil, apperrors.NewConfigurationError("GEMINI_MODEL is empty", nil)
	}

	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, apperrors.NewConfigurationError("invalid PORT: "+cfg.Port, err)
	}
	if cfg.MaxRequestBodySize <= 0 {
		return nil, apperrors.NewConfigurationError("MAX_REQUEST_BODY_SIZE must be > 0", nil)
	}
	if cfg.MaxImageBytes <= 0 {
		return nil, apperrors.NewConfigurationError("MAX_IMAGE_BYTES must be > 0", nil)
	}
	if cfg.BatchWorkers <= 0 {
		return nil, apperrors.NewConfigurationError("BATCH_WORKERS must be > 0", nil)
	}
	if cfg.RequestTimeout <= 0 || cfg.ImageFetchTimeout <= 0 || cfg.AnalysisTimeout <= 0 {
		return nil, apperrors.NewConfigurationError("timeouts must be > 0", nil)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
