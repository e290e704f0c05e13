package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"stock_timeframes/internal/app/di"
	"stock_timeframes/internal/app/router"
	candleusecase "stock_timeframes/internal/feature/candles/usecase"
	candleshandler "stock_timeframes/internal/feature/candles/transport/handler"
	symbollisthandler "stock_timeframes/internal/feature/symbollist/transport/handler"
	"stock_timeframes/internal/platform/cache"
	healthhandler "stock_timeframes/internal/platform/http/handler"
	jwtmw "stock_timeframes/internal/platform/jwt"
	"stock_timeframes/internal/platform/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] .env not found; using system environment variables")
	}
	logging.Setup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	infra, err := di.OpenInfra(ctx)
	cancel()
	if err != nil {
		log.Fatal(err)
	}
	defer infra.Close()

	sqlDB, err := infra.DB.DB()
	if err != nil {
		log.Fatal(err)
	}

	// 集計足は日次サイクルでしか変わらないので、次のサイクルまでキャッシュする
	ttl := cache.TTLUntilNextCycle(time.Now(), di.CycleHour)
	slog.Info("candle cache configured", "ttl", ttl, "redis", infra.Redis != nil)

	// Usecase
	candlesUC := candleusecase.NewCandlesUsecase(infra.CandleRepository(ttl))
	symbolUC := di.NewSymbolUsecase(infra)

	// Handler
	candlesH := candleshandler.NewCandlesHandler(candlesUC)
	symbolH := symbollisthandler.NewSymbolHandler(symbolUC)

	// JWT_SECRET が無ければ認証なしで起動する（開発用）
	var auth gin.HandlerFunc
	if secret := os.Getenv(jwtmw.EnvKeyJWTSecret); secret != "" {
		auth = jwtmw.AuthRequired(secret, jwtmw.ScopeRead)
	} else {
		slog.Warn("JWT_SECRET is not set; the API is served without authentication")
	}

	r := router.NewRouter(healthhandler.Health(sqlDB), auth, candlesH, symbolH)

	addr := ":" + os.Getenv("PORT")
	if addr == ":" {
		addr = ":8080"
	}
	if err := r.Run(addr); err != nil {
		log.Fatal(err)
	}
}
