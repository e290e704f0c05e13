// Package twelvedata は Twelve Data の time_series API から日足を取得するクライアントです。
package twelvedata

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultBaseURL    = "https://api.twelvedata.com"
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
)

// Config holds configuration for the Twelve Data API client.
type Config struct {
	TwelveDataAPIKey string        // API key for authentication
	BaseURL          string        // Base URL for the API (e.g., "https://api.twelvedata.com")
	Timeout          time.Duration // HTTP request timeout
	// MaxRetries は 5xx / 429 / 通信エラー時の再試行回数です。0 なら再試行しません。
	MaxRetries int
	// RetryInterval は最初の再試行までの待ち時間です（以降は指数的に伸びます）。
	RetryInterval time.Duration
}

// LoadConfig loads Twelve Data configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		TwelveDataAPIKey: os.Getenv("TWELVE_DATA_API_KEY"),
		BaseURL:          os.Getenv("TWELVE_DATA_BASE_URL"),
		Timeout:          defaultTimeout,
		MaxRetries:       defaultMaxRetries,
		RetryInterval:    time.Second,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if v, err := time.ParseDuration(os.Getenv("TWELVE_DATA_TIMEOUT")); err == nil && v > 0 {
		cfg.Timeout = v
	}
	if v, err := strconv.Atoi(os.Getenv("TWELVE_DATA_MAX_RETRIES")); err == nil && v >= 0 {
		cfg.MaxRetries = v
	}
	return cfg
}
