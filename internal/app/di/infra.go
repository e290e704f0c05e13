package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	candleadapters "stock_timeframes/internal/feature/candles/adapters"
	"stock_timeframes/internal/platform/cache"
	"stock_timeframes/internal/platform/db"
	platformredis "stock_timeframes/internal/platform/redis"
)

// Infra は DB と Redis の接続です。Redis は無くても動作します。
type Infra struct {
	DB    *gorm.DB
	Redis *redisv9.Client
}

// OpenInfra は環境変数に従って DB に接続し、設定されていれば Redis にも接続します。
// Redis に接続できない場合はキャッシュ無しで続行します。
func OpenInfra(ctx context.Context) (*Infra, error) {
	gdb, err := db.Open(db.LoadConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	rdb, err := platformredis.NewRedisClient(ctx, platformredis.LoadConfig())
	switch {
	case errors.Is(err, platformredis.ErrNotConfigured):
		slog.Info("REDIS_HOST is not set, running without cache")
	case err != nil:
		slog.Warn("Redis unavailable, running without cache", "error", err)
	}
	return &Infra{DB: gdb, Redis: rdb}, nil
}

// Close は接続を閉じます。
func (i *Infra) Close() {
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			slog.Error("failed to close Redis client", "error", err)
		}
	}
	if sqlDB, err := i.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}
}

// CandleRepository は Redis キャッシュで包んだ candles リポジトリを返します。
// 書き込み側（取り込み・集計）もこれを使うことで、チャートAPIのキャッシュが書き込みと同時に無効化されます。
func (i *Infra) CandleRepository(ttl time.Duration) *cache.CachingCandleRepository {
	return cache.NewCachingCandleRepository(i.Redis, ttl, candleadapters.NewCandleRepository(i.DB), "candles")
}
