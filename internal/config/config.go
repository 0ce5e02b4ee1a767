package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the thermalscan server.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Detector DetectorConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	MaxUploadBytes  int64
	RateLimitPerMin int
}

type StorageConfig struct {
	Dir string
}

// RedisConfig is optional: an empty URL disables rate limiting and the
// job-status cache. The service runs fully without Redis.
type RedisConfig struct {
	URL string
}

type DetectorConfig struct {
	Provider            string
	Timeout             time.Duration
	ConfidenceThreshold float64
	SaveAllOutputs      bool
	Remote              RemoteConfig
}

type RemoteConfig struct {
	BaseURL string
}

var validProviders = map[string]bool{
	"remote": true,
	"mock":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("THERMALSCAN_PORT", 8080),
			Env:             envString("THERMALSCAN_ENV", "development"),
			MaxUploadBytes:  envInt64("MAX_UPLOAD_BYTES", 100<<20),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MIN", 60),
		},
		Storage: StorageConfig{
			Dir: os.Getenv("STORAGE_DIR"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Detector: DetectorConfig{
			Provider:            os.Getenv("DETECTOR_PROVIDER"),
			Timeout:             envDurationSecs("DETECTOR_TIMEOUT_SECS", 60*time.Second),
			ConfidenceThreshold: envFloat("DETECT_CONFIDENCE_THRESHOLD", 0.5),
			SaveAllOutputs:      envBool("DETECT_SAVE_ALL_OUTPUTS", false),
			Remote: RemoteConfig{
				BaseURL: os.Getenv("DETECTOR_BASE_URL"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("STORAGE_DIR is required")
	}

	if c.Detector.Provider == "" {
		return fmt.Errorf("DETECTOR_PROVIDER is required")
	}
	if !validProviders[c.Detector.Provider] {
		return fmt.Errorf("DETECTOR_PROVIDER must be one of remote, mock; got %q", c.Detector.Provider)
	}

	if c.Detector.Provider == "remote" {
		if c.Detector.Remote.BaseURL == "" {
			return fmt.Errorf("DETECTOR_BASE_URL is required when DETECTOR_PROVIDER is remote")
		}
		if !strings.HasPrefix(c.Detector.Remote.BaseURL, "http://") && !strings.HasPrefix(c.Detector.Remote.BaseURL, "https://") {
			return fmt.Errorf("DETECTOR_BASE_URL must start with http:// or https://, got %q", c.Detector.Remote.BaseURL)
		}
	}

	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		return fmt.Errorf("DETECT_CONFIDENCE_THRESHOLD must be in [0,1], got %v", c.Detector.ConfidenceThreshold)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
