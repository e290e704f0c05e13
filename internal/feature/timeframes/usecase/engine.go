// Package usecase は日足から週足・月足を導出する集計エンジンを実装します。
//
// 集計値は常に保存済みの日足から作り直します（差分更新はしません）。
// 期間の状態（未確定/確定）は保存せず、calendar.StatusOf で日付から導出します。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stock_timeframes/internal/feature/candles/domain/entity"
	"stock_timeframes/internal/feature/timeframes/domain/bar"
	"stock_timeframes/internal/feature/timeframes/domain/calendar"
	"stock_timeframes/internal/feature/timeframes/domain/ohlc"
	"stock_timeframes/internal/shared/ratelimiter"
)

var (
	// ErrNoInstruments は処理対象の銘柄が1件も無いことを表します。バッチ全体が失敗します。
	ErrNoInstruments = errors.New("no instruments to aggregate")
	// ErrUnsupportedKind は週足・月足以外の期間種別が指定されたことを表します。
	ErrUnsupportedKind = errors.New("unsupported aggregate kind")
)

// DailyBarRepository は日足の読み出しと集計足の書き込みを行う永続化レイヤーです。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type DailyBarRepository interface {
	// FindRange は from〜to（両端を含む）のローソク足を返します。順序は問いません。
	FindRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]entity.Candle, error)
	// UpsertBatch は (symbol, interval, time) をキーに冪等に書き込みます。
	UpsertBatch(ctx context.Context, candles []entity.Candle) error
}

// UniverseResolver は日次サイクルの対象銘柄を決めます。
type UniverseResolver interface {
	ResolveUniverse(ctx context.Context, date time.Time) ([]string, error)
}

// Engine は銘柄ごとの集計を並行に実行します。
type Engine struct {
	repo     DailyBarRepository
	universe UniverseResolver
	limiter  ratelimiter.RateLimiterInterface
	cfg      Config
}

// NewEngine は新しい Engine を作成します。limiter が nil の場合は制限しません。
func NewEngine(repo DailyBarRepository, universe UniverseResolver, limiter ratelimiter.RateLimiterInterface, cfg Config) *Engine {
	if limiter == nil {
		limiter = ratelimiter.Noop{}
	}
	return &Engine{repo: repo, universe: universe, limiter: limiter, cfg: cfg.withDefaults()}
}

type role int

const (
	roleRecompute role = iota
	roleFinalize
	roleRebuild
)

func (r role) String() string {
	switch r {
	case roleRecompute:
		return "recompute"
	case roleFinalize:
		return "finalize"
	default:
		return "rebuild"
	}
}

// job は1銘柄に対して書き込む1期間です。
type job struct {
	bucket calendar.Bucket
	role   role
}

// currentJobs は asOf を含む週・月の再計算ジョブです。
func currentJobs(asOf time.Time) []job {
	return []job{
		{bucket: calendar.BucketOf(entity.Week, asOf), role: roleRecompute},
		{bucket: calendar.BucketOf(entity.Month, asOf), role: roleRecompute},
	}
}

// finalizeJob は ref を含む期間の直前の期間を確定させるジョブです。
func finalizeJob(kind entity.Timeframe, ref time.Time) job {
	return job{bucket: calendar.Previous(calendar.BucketOf(kind, ref)), role: roleFinalize}
}

// RecomputeCurrentPeriods は asOf を含む週足・月足を、期間が終わっていなくても毎回作り直します。
func (e *Engine) RecomputeCurrentPeriods(ctx context.Context, symbols []string, asOf time.Time) (Summary, error) {
	asOf = calendar.Civil(asOf)
	return e.run(ctx, "recompute", symbols, currentJobs(asOf))
}

// FinalizePriorPeriod は ref を含む期間の直前の期間（kind 種別）を最後にもう一度計算します。
// トリガー日の判定は行いません（RunDailyCycle が calendar.ShouldFinalize で判定します）。
func (e *Engine) FinalizePriorPeriod(ctx context.Context, symbols []string, ref time.Time, kind entity.Timeframe) (Summary, error) {
	if !kind.IsAggregate() {
		return Summary{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	ref = calendar.Civil(ref)
	return e.run(ctx, "finalize", symbols, []job{finalizeJob(kind, ref)})
}

// RunDailyCycle は date の日次サイクルを実行します。
// 対象銘柄ごとに現在期間の再計算を行い、date が確定日であれば続けて前期間を確定させます。
// 同じ銘柄の書き込みは1回のバッチにまとめ、銘柄内では再計算→確定の順に並べます。
func (e *Engine) RunDailyCycle(ctx context.Context, date time.Time) (Summary, error) {
	date = calendar.Civil(date)

	symbols, err := e.universe.ResolveUniverse(ctx, date)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve universe for %s: %w", calendar.Format(date), err)
	}

	jobs := currentJobs(date)
	for _, kind := range []entity.Timeframe{entity.Week, entity.Month} {
		if calendar.ShouldFinalize(kind, date) {
			jobs = append(jobs, finalizeJob(kind, date))
		}
	}
	return e.run(ctx, "daily", symbols, jobs)
}

// RebuildHistory は asOf から yearsBack 年前の月初以降のすべての週足・月足を作り直します。
// 日次サイクルでは使わず、バックフィルや修復に使います。yearsBack が 0 以下なら Config の値を使います。
func (e *Engine) RebuildHistory(ctx context.Context, symbols []string, yearsBack int, asOf time.Time) (Summary, error) {
	if yearsBack <= 0 {
		yearsBack = e.cfg.YearsBack
	}
	asOf = calendar.Civil(asOf)
	from := calendar.MonthStart(asOf.AddDate(-yearsBack, 0, 0))

	var jobs []job
	for _, b := range calendar.Buckets(entity.Week, from, asOf) {
		jobs = append(jobs, job{bucket: b, role: roleRebuild})
	}
	for _, b := range calendar.Buckets(entity.Month, from, asOf) {
		jobs = append(jobs, job{bucket: b, role: roleRebuild})
	}
	return e.run(ctx, "rebuild", symbols, jobs)
}

// run は jobs を全銘柄に対して Workers 並列で実行します。
// 銘柄単位の失敗は Summary に記録して続行し、エラーとしては返しません。
func (e *Engine) run(ctx context.Context, op string, symbols []string, jobs []job) (Summary, error) {
	sum := Summary{Instruments: len(symbols)}
	if len(symbols) == 0 {
		return sum, ErrNoInstruments
	}

	start := time.Now()
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.cfg.Workers)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s := e.processInstrument(ctx, symbol, jobs)
			mu.Lock()
			sum.merge(s)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		slog.Error("aggregation interrupted", "op", op, "summary", sum, "error", err)
		return sum, err
	}
	slog.Info("aggregation finished", "op", op, "buckets", len(jobs), "elapsed", time.Since(start), "summary", sum)
	return sum, nil
}

// span は jobs 全体を覆う日付範囲です。
func span(jobs []job) (from, to time.Time) {
	from, to = jobs[0].bucket.Start, jobs[0].bucket.End
	for _, j := range jobs[1:] {
		if j.bucket.Start.Before(from) {
			from = j.bucket.Start
		}
		if j.bucket.End.After(to) {
			to = j.bucket.End
		}
	}
	return from, to
}

type bucketKey struct {
	kind  entity.Timeframe
	start time.Time
}

// groupByBucket は日足を jobs の各期間に振り分けます。
func groupByBucket(bars []entity.Candle, jobs []job) map[bucketKey][]entity.Candle {
	kinds := make(map[entity.Timeframe]struct{}, 2)
	for _, j := range jobs {
		kinds[j.bucket.Kind] = struct{}{}
	}
	groups := make(map[bucketKey][]entity.Candle, len(jobs))
	for _, b := range bars {
		d := calendar.Civil(b.Time)
		for kind := range kinds {
			k := bucketKey{kind: kind, start: calendar.BucketOf(kind, d).Start}
			groups[k] = append(groups[k], b)
		}
	}
	return groups
}

// processInstrument は1銘柄分の日足を1回で取得し、各期間を集計して1回で書き込みます。
func (e *Engine) processInstrument(ctx context.Context, symbol string, jobs []job) Summary {
	var sum Summary
	fail := func(stage string, err error) Summary {
		slog.Warn("skipping instrument for this cycle", "symbol", symbol, "stage", stage, "error", err)
		return Summary{Failed: 1, FailedSymbols: []string{symbol}}
	}

	from, to := span(jobs)
	bars, err := e.fetch(ctx, symbol, from, to)
	if err != nil {
		return fail("fetch", err)
	}

	for _, b := range bars {
		if err := bar.Validate(b); err != nil {
			slog.Warn("invalid daily bar excluded", "symbol", symbol, "date", calendar.Format(b.Time), "reason", err)
			sum.InvalidBars++
		}
	}

	// 1本の日足は週と月の両方に入るので、食い違いは日付単位で数える
	conflicts := make(map[time.Time]struct{})
	groups := groupByBucket(bars, jobs)
	out := make([]entity.Candle, 0, len(jobs))
	written := make([]role, 0, len(jobs))
	for _, j := range jobs {
		agg, res, ok := ohlc.Reduce(groups[bucketKey{kind: j.bucket.Kind, start: j.bucket.Start}])
		for _, d := range res.Conflicts {
			if _, seen := conflicts[d]; !seen {
				conflicts[d] = struct{}{}
				slog.Warn("conflicting daily bars excluded", "symbol", symbol, "date", calendar.Format(d))
			}
		}
		if !ok {
			// 有効な日足が無い期間は書き込まない（既存の集計値を残す）
			slog.Debug("no valid daily bars, keeping stored aggregate", "symbol", symbol, "bucket", j.bucket.String(), "role", j.role.String())
			sum.Skipped++
			continue
		}
		agg.Symbol = symbol
		agg.Interval = j.bucket.Kind.String()
		agg.Time = j.bucket.Start
		out = append(out, agg)
		written = append(written, j.role)
	}

	sum.Conflicts = len(conflicts)

	if len(out) == 0 {
		return sum
	}
	if err := e.repo.UpsertBatch(ctx, out); err != nil {
		s := fail("upsert", fmt.Errorf("upsert %d aggregates: %w", len(out), err))
		s.InvalidBars, s.Conflicts, s.Skipped = sum.InvalidBars, sum.Conflicts, sum.Skipped
		return s
	}
	for _, r := range written {
		switch r {
		case roleRecompute:
			sum.Recomputed++
		case roleFinalize:
			sum.Finalized++
		case roleRebuild:
			sum.Rebuilt++
		}
	}
	return sum
}

// fetch はレートリミットを待ってから、タイムアウト付きで日足を取得します。
// タイムアウトは取得失敗として扱います。
func (e *Engine) fetch(ctx context.Context, symbol string, from, to time.Time) ([]entity.Candle, error) {
	e.limiter.WaitIfNeeded()

	if e.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()
	}
	bars, err := e.repo.FindRange(ctx, symbol, entity.Day.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch daily bars %s..%s: %w", calendar.Format(from), calendar.Format(to), err)
	}
	return bars, nil
}
