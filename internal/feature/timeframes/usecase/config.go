package usecase

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

const (
	defaultWorkers      = 4
	defaultFetchTimeout = 30 * time.Second
	defaultYearsBack    = 5
)

// Config は集計エンジンの実行パラメータです。
type Config struct {
	Workers      int           // 同時に処理する銘柄数
	FetchTimeout time.Duration // 1銘柄あたりの日足取得のタイムアウト（0 以下なら無制限）
	YearsBack    int           // RebuildHistory で遡る年数の既定値
}

// LoadConfig は環境変数から Config を読み込みます。未設定・不正値は既定値になります。
func LoadConfig() Config {
	return Config{
		Workers:      envInt("TIMEFRAMES_WORKERS", defaultWorkers),
		FetchTimeout: envDuration("TIMEFRAMES_FETCH_TIMEOUT", defaultFetchTimeout),
		YearsBack:    envInt("TIMEFRAMES_YEARS_BACK", defaultYearsBack),
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.YearsBack <= 0 {
		c.YearsBack = defaultYearsBack
	}
	return c
}

func envInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", s, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", s, "default", def)
		return def
	}
	return d
}
