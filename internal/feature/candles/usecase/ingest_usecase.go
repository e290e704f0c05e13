package usecase

import (
	"context"
	"log/slog"

	"stock_timeframes/internal/feature/candles/domain/entity"
	"stock_timeframes/internal/feature/timeframes/domain/bar"
	"stock_timeframes/internal/feature/timeframes/domain/calendar"
	"stock_timeframes/internal/shared/ratelimiter"
)

const (
	ingestOutputSize = 200 // 1回のリクエストで取得するデータ件数
)

// MarketRepository は株価データを取得するリポジトリのインターフェイスです。
// 外部 API の実装を抽象化します。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type MarketRepository interface {
	GetTimeSeries(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error)
}

// IngestUsecase は外部APIから日足を取得し、データベースに永続化するユースケースを定義します。
// 週足・月足は取得せず、保存済みの日足から timeframes フィーチャーで導出します。
type IngestUsecase struct {
	market      MarketRepository
	candle      CandleRepository
	rateLimiter ratelimiter.RateLimiterInterface
	outputsize  int
}

// IngestReport は IngestAll の結果の件数です。
type IngestReport struct {
	Symbols  int
	Stored   int
	Rejected int
	Failed   []string
}

// NewIngestUsecase は新しい IngestUsecase を作成します。
func NewIngestUsecase(market MarketRepository, candle CandleRepository, rateLimiter ratelimiter.RateLimiterInterface) *IngestUsecase {
	return &IngestUsecase{market: market, candle: candle, rateLimiter: rateLimiter, outputsize: ingestOutputSize}
}

// WithOutputSize は1リクエストあたりの取得件数を変更します（バックフィル用）。
func (iu *IngestUsecase) WithOutputSize(n int) *IngestUsecase {
	if n > 0 {
		iu.outputsize = n
	}
	return iu
}

// ingestOne は指定された銘柄の日足を外部リポジトリから取得し、
// 不正な行を除外したうえでデータベースに一括で挿入（または更新）します。
// 保存件数と除外件数を返します。
func (iu *IngestUsecase) ingestOne(ctx context.Context, symbol string, outputsize int) (stored, rejected int, err error) {
	cs, err := iu.market.GetTimeSeries(ctx, symbol, string(entity.Day), outputsize)
	if err != nil {
		return 0, 0, err
	}

	valid := make([]entity.Candle, 0, len(cs))
	for _, c := range cs {
		// 取得したデータに銘柄コードと時間足を設定
		c.Symbol = symbol
		c.Interval = string(entity.Day)
		// APIの日時は取引所ローカルの壁時計なので、そのままの暦日を使う
		c.Time = calendar.Civil(c.Time)

		if verr := bar.Validate(c); verr != nil {
			slog.Warn("dropping invalid daily bar", "symbol", symbol, "date", calendar.Format(c.Time), "reason", verr)
			rejected++
			continue
		}
		valid = append(valid, c)
	}
	if err := iu.candle.UpsertBatch(ctx, valid); err != nil {
		return 0, rejected, err
	}
	return len(valid), rejected, nil
}

// IngestAll は指定された全銘柄の日足を取得し、データベースに永続化します。
// APIのレートリミットを考慮して、リクエスト間に適切な待機時間を設けます。
func (iu *IngestUsecase) IngestAll(ctx context.Context, symbols []string) (IngestReport, error) {
	report := IngestReport{Symbols: len(symbols)}
	for _, s := range symbols {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		iu.rateLimiter.WaitIfNeeded()
		stored, rejected, err := iu.ingestOne(ctx, s, iu.outputsize)
		report.Rejected += rejected
		if err != nil {
			// 1つの銘柄でエラーが発生しても処理を止めずにログに出力し、次の銘柄へ
			slog.Error("failed to ingest data", "symbol", s, "interval", entity.Day, "error", err)
			report.Failed = append(report.Failed, s)
			continue
		}
		report.Stored += stored
	}
	slog.Info("ingest finished", "symbols", report.Symbols, "stored", report.Stored, "rejected", report.Rejected, "failed", len(report.Failed))
	return report, nil
}
