package twelvedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"stock_timeframes/internal/feature/candles/domain/entity"
	"stock_timeframes/internal/feature/candles/usecase"
	"stock_timeframes/internal/platform/externalapi/twelvedata/dto"
)

// TwelveDataMarket はTwelve Data外部APIから日足を取得するMarketRepository実装です。
type TwelveDataMarket struct {
	cfg    Config
	client *http.Client
}

// TwelveDataMarketがMarketRepositoryを実装していることをコンパイル時に検証します。
var _ usecase.MarketRepository = (*TwelveDataMarket)(nil)

// NewTwelveDataMarket は指定された設定とHTTPクライアントでTwelveDataMarketの新しいインスタンスを生成します。
func NewTwelveDataMarket(cfg Config, client *http.Client) *TwelveDataMarket {
	return &TwelveDataMarket{cfg: cfg, client: client}
}

// GetTimeSeries はTwelve Data APIから時系列株価データを取得し、entity.Candle のスライスとして返します。
// 価格は文字列のまま decimal に変換するので、APIが返した桁がそのまま保存されます。
// 一時的な失敗（通信エラー、429、5xx）は Config.MaxRetries 回まで指数バックオフで再試行します。
func (t *TwelveDataMarket) GetTimeSeries(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("outputsize", strconv.Itoa(outputsize))
	q.Set("apikey", t.cfg.TwelveDataAPIKey)
	u := fmt.Sprintf("%s/time_series?%s", t.cfg.BaseURL, q.Encode())

	body, err := backoff.RetryNotifyWithData(
		func() (dto.TimeSeriesResponse, error) { return t.fetch(ctx, u) },
		t.backOff(ctx),
		func(err error, wait time.Duration) {
			slog.Warn("twelvedata request failed, retrying", "symbol", symbol, "wait", wait, "error", err)
		},
	)
	if err != nil {
		return nil, err
	}

	candles := make([]entity.Candle, 0, len(body.Values))
	for _, v := range body.Values {
		c, err := toCandle(v)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (t *TwelveDataMarket) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if t.cfg.RetryInterval > 0 {
		eb.InitialInterval = t.cfg.RetryInterval
	}
	// 回数で打ち切るので経過時間の上限は設けない
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(t.cfg.MaxRetries, 0))), ctx)
}

// fetch は1回分のリクエストを行います。再試行しても結果が変わらない失敗は backoff.Permanent で包みます。
func (t *TwelveDataMarket) fetch(ctx context.Context, u string) (dto.TimeSeriesResponse, error) {
	var body dto.TimeSeriesResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return body, backoff.Permanent(err)
	}
	res, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return body, backoff.Permanent(err)
		}
		return body, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		err := fmt.Errorf("twelvedata http %d", res.StatusCode)
		if retryable(res.StatusCode) {
			return body, err
		}
		return body, backoff.Permanent(err)
	}

	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return body, backoff.Permanent(fmt.Errorf("decode twelvedata response: %w", err))
	}
	if body.Status == "error" {
		err := fmt.Errorf("twelvedata: %s", body.Message)
		if retryable(body.Code) {
			return body, err
		}
		return body, backoff.Permanent(err)
	}
	return body, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// toCandle は1行をドメインエンティティに変換します。銘柄コードと時間足は呼び出し側で設定します。
func toCandle(v dto.TimeSeriesValue) (entity.Candle, error) {
	var c entity.Candle

	tm, err := parseDatetime(v.Datetime)
	if err != nil {
		return c, fmt.Errorf("parse time %q: %w", v.Datetime, err)
	}
	c.Time = tm

	prices := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", v.Open, &c.Open},
		{"high", v.High, &c.High},
		{"low", v.Low, &c.Low},
		{"close", v.Close, &c.Close},
	}
	for _, p := range prices {
		d, err := decimal.NewFromString(p.raw)
		if err != nil {
			return c, fmt.Errorf("parse %s %q: %w", p.name, p.raw, err)
		}
		*p.dst = d
	}

	// 指数など出来高の無い銘柄は空文字で返る
	if v.Volume != "" {
		vol, err := strconv.ParseInt(v.Volume, 10, 64)
		if err != nil {
			return c, fmt.Errorf("parse volume %q: %w", v.Volume, err)
		}
		c.Volume = vol
	}
	return c, nil
}

var errEmptyDatetime = errors.New("empty datetime")

func parseDatetime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errEmptyDatetime
	}
	if tm, err := time.Parse(time.DateTime, s); err == nil {
		return tm, nil
	}
	return time.Parse(time.DateOnly, s)
}
