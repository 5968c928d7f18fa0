package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job and session state
	JobTTL        time.Duration
	SessionTTL    time.Duration
	ImportTimeout time.Duration

	// Host surface used when a session is created without a size
	DefaultHostWidth  float64
	DefaultHostHeight float64

	// PDF page imported when the request names none (1-based)
	PDFPage int

	// Analysis service
	ClassifyURL        string
	ClassifyAPIKey     string
	ClassifyTimeout    time.Duration
	ClassifyMaxRetries int

	// Logging
	LogLevel  string
	LogFormat string
	LogColor  bool
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:               "8090",
		WorkerCount:        4,
		MaxQueueSize:       100,
		MaxUploadBytes:     52428800, // 50MB
		JobTTL:             1 * time.Hour,
		SessionTTL:         24 * time.Hour,
		ImportTimeout:      2 * time.Minute,
		DefaultHostWidth:   1280,
		DefaultHostHeight:  800,
		PDFPage:            1,
		ClassifyTimeout:    60 * time.Second,
		ClassifyMaxRetries: 3,
		LogLevel:           "info",
		LogFormat:          "json",
		LogColor:           true,
	}
}

// Load builds the configuration from defaults, then the file named by
// INKPORT_CONFIG, then environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("INKPORT_CONFIG"); path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := fc.Apply(&cfg); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg = Config{
		Port: envOr("PORT", cfg.Port),

		APIKey: envOr("INKPORT_API_KEY", cfg.APIKey),

		WorkerCount:  envInt("WORKER_COUNT", cfg.WorkerCount),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes),

		JobTTL:        envDuration("JOB_TTL", cfg.JobTTL),
		SessionTTL:    envDuration("SESSION_TTL", cfg.SessionTTL),
		ImportTimeout: envDuration("IMPORT_TIMEOUT", cfg.ImportTimeout),

		DefaultHostWidth:  envFloat("DEFAULT_HOST_WIDTH", cfg.DefaultHostWidth),
		DefaultHostHeight: envFloat("DEFAULT_HOST_HEIGHT", cfg.DefaultHostHeight),

		PDFPage: envInt("PDF_PAGE", cfg.PDFPage),

		ClassifyURL:        envOr("CLASSIFY_URL", cfg.ClassifyURL),
		ClassifyAPIKey:     envOr("CLASSIFY_API_KEY", cfg.ClassifyAPIKey),
		ClassifyTimeout:    envDuration("CLASSIFY_TIMEOUT", cfg.ClassifyTimeout),
		ClassifyMaxRetries: envInt("CLASSIFY_MAX_RETRIES", cfg.ClassifyMaxRetries),

		LogLevel:  strings.ToLower(envOr("LOG_LEVEL", cfg.LogLevel)),
		LogFormat: strings.ToLower(envOr("LOG_FORMAT", cfg.LogFormat)),
		LogColor:  envBool("LOG_COLOR", cfg.LogColor),
	}

	def := Defaults()
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = def.JobTTL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = def.ImportTimeout
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = def.ClassifyTimeout
	}
	if cfg.ClassifyMaxRetries <= 0 {
		cfg.ClassifyMaxRetries = def.ClassifyMaxRetries
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("INKPORT_API_KEY is required")
	}
	if c.DefaultHostWidth <= 0 || c.DefaultHostHeight <= 0 {
		return fmt.Errorf("default host size must be positive, got %gx%g", c.DefaultHostWidth, c.DefaultHostHeight)
	}
	if c.PDFPage < 1 {
		return fmt.Errorf("PDF_PAGE must be at least 1, got %d", c.PDFPage)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if c.ClassifyURL != "" && !strings.HasPrefix(c.ClassifyURL, "http://") && !strings.HasPrefix(c.ClassifyURL, "https://") {
		return fmt.Errorf("CLASSIFY_URL must be an http(s) URL, got %q", c.ClassifyURL)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
