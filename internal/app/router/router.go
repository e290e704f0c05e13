// Package router は HTTP ルーティングを組み立てます。
package router

import (
	"github.com/gin-gonic/gin"

	candleshandler "stock_timeframes/internal/feature/candles/transport/handler"
	symbollisthandler "stock_timeframes/internal/feature/symbollist/transport/handler"
)

// NewRouter は読み取り専用APIのルートを登録します。
// auth が nil の場合は認証なしで公開します（ローカル開発用）。
func NewRouter(health, auth gin.HandlerFunc, candles *candleshandler.CandlesHandler,
	symbol *symbollisthandler.SymbolHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// 認証不要
	// 導通確認用（DB への ping を含む）
	r.GET("/healthz", health)
	r.HEAD("/healthz", health)

	api := r.Group("/")
	if auth != nil {
		api.Use(auth)
	}
	{
		// 日足・週足・月足のチャート
		api.GET("/candles/:code", candles.GetCandlesHandler)
		// 銘柄一覧と、日次サイクルの対象銘柄
		api.GET("/symbols", symbol.List)
		api.GET("/symbols/universe", symbol.Universe)
	}

	return r
}
