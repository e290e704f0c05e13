package di

import (
	"time"

	candleusecase "stock_timeframes/internal/feature/candles/usecase"
	symboladapters "stock_timeframes/internal/feature/symbollist/adapters"
	symbolusecase "stock_timeframes/internal/feature/symbollist/usecase"
	tfusecase "stock_timeframes/internal/feature/timeframes/usecase"
	"stock_timeframes/internal/platform/cache"
	"stock_timeframes/internal/shared/ratelimiter"
)

// CycleHour は日次サイクルを実行する JST の時刻です。API のキャッシュはこの時刻に切れます。
const CycleHour = 8

// NewSymbolUsecase は symbols テーブルに対するユースケースを作成します。
func NewSymbolUsecase(infra *Infra) *symbolusecase.SymbolUsecase {
	return symbolusecase.NewSymbolUsecase(symboladapters.NewSymbolRepository(infra.DB))
}

// NewIngestUsecase は Twelve Data から日足を取り込むユースケースを作成します。
func NewIngestUsecase(infra *Infra) *candleusecase.IngestUsecase {
	return candleusecase.NewIngestUsecase(NewMarket(), infra.CandleRepository(cacheTTL()), NewMarketRateLimiter())
}

// NewEngine は集計エンジンを作成します。
// 日足の読み出しは TIMEFRAMES_FETCH_PER_MINUTE（既定 0 = 無制限）で制限できます。
func NewEngine(infra *Infra) *tfusecase.Engine {
	limiter := ratelimiter.NewRateLimiter(perMinute("TIMEFRAMES_FETCH_PER_MINUTE", 0), time.Minute)
	return tfusecase.NewEngine(infra.CandleRepository(cacheTTL()), NewSymbolUsecase(infra), limiter, tfusecase.LoadConfig())
}

func cacheTTL() time.Duration {
	return cache.TTLUntilNextCycle(time.Now(), CycleHour)
}
