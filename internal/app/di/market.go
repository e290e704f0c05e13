// Package di provides dependency injection factories for creating application components.
package di

import (
	"os"
	"strconv"
	"time"

	"stock_timeframes/internal/platform/externalapi/twelvedata"
	infrahttp "stock_timeframes/internal/platform/http"
	"stock_timeframes/internal/shared/ratelimiter"
)

// Twelve Data の無料枠は 8 リクエスト/分
const defaultRequestsPerMinute = 8

// NewMarket creates a fully configured TwelveDataMarket with HTTP client.
func NewMarket() *twelvedata.TwelveDataMarket {
	cfg := twelvedata.LoadConfig()
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout)
	return twelvedata.NewTwelveDataMarket(cfg, httpClient)
}

// NewMarketRateLimiter は RATE_LIMIT_PER_MINUTE（既定 8）で外部APIの呼び出しを制限します。
func NewMarketRateLimiter() *ratelimiter.RateLimiter {
	return ratelimiter.NewRateLimiter(perMinute("RATE_LIMIT_PER_MINUTE", defaultRequestsPerMinute), time.Minute)
}

// perMinute は key の値を返します。0 は「制限なし」として有効です。
func perMinute(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}
