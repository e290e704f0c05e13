package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stock_timeframes/internal/app/di"
	"stock_timeframes/internal/feature/candles/domain/entity"
	"stock_timeframes/internal/feature/timeframes/domain/calendar"
	tfusecase "stock_timeframes/internal/feature/timeframes/usecase"
	"stock_timeframes/internal/platform/lock"
	"stock_timeframes/internal/platform/metrics"
)

// now はテストで差し替えます。
var now = time.Now

func newIngestCmd() *cobra.Command {
	var (
		symbols    []string
		outputsize int
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch daily bars from Twelve Data and store them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInfra(cmd.Context(), cmd.Name(), func(ctx context.Context, infra *di.Infra) error {
				return runIngest(ctx, infra, symbols, outputsize)
			})
		},
	}
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "symbol codes (default: all active symbols)")
	cmd.Flags().IntVar(&outputsize, "outputsize", 0, "bars per request (default 200, up to 5000 for backfill)")
	return cmd
}

func newDailyCmd() *cobra.Command {
	var (
		date   string
		ingest bool
	)
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Recompute the current week/month and finalize the prior period on trigger days",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDate(date, now())
			if err != nil {
				return err
			}
			return withInfra(cmd.Context(), cmd.Name(), func(ctx context.Context, infra *di.Infra) error {
				if ingest {
					if err := runIngest(ctx, infra, nil, 0); err != nil {
						return err
					}
				}
				engine := di.NewEngine(infra)
				return report(ctx, "daily", func() (tfusecase.Summary, error) {
					return engine.RunDailyCycle(ctx, d)
				})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "cycle date YYYY-MM-DD (default: today in JST)")
	cmd.Flags().BoolVar(&ingest, "ingest", false, "ingest daily bars before aggregating")
	return cmd
}

func newFinalizeCmd() *cobra.Command {
	var (
		date    string
		kind    string
		symbols []string
	)
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Recompute the period immediately before the one containing --date",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDate(date, now())
			if err != nil {
				return err
			}
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			return withInfra(cmd.Context(), cmd.Name(), func(ctx context.Context, infra *di.Infra) error {
				codes, err := resolveSymbols(ctx, infra, symbols)
				if err != nil {
					return err
				}
				engine := di.NewEngine(infra)
				return report(ctx, "finalize", func() (tfusecase.Summary, error) {
					return engine.FinalizePriorPeriod(ctx, codes, d, k)
				})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "reference date YYYY-MM-DD (default: today in JST)")
	cmd.Flags().StringVar(&kind, "kind", "", "1week or 1month")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "symbol codes (default: all active symbols)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newRebuildCmd() *cobra.Command {
	var (
		date    string
		years   int
		symbols []string
	)
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild every weekly and monthly candle from stored daily bars",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolveDate(date, now())
			if err != nil {
				return err
			}
			return withInfra(cmd.Context(), cmd.Name(), func(ctx context.Context, infra *di.Infra) error {
				codes, err := resolveSymbols(ctx, infra, symbols)
				if err != nil {
					return err
				}
				engine := di.NewEngine(infra)
				return report(ctx, "rebuild", func() (tfusecase.Summary, error) {
					return engine.RebuildHistory(ctx, codes, years, d)
				})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "last date to include YYYY-MM-DD (default: today in JST)")
	cmd.Flags().IntVar(&years, "years", 0, "years to go back (default: TIMEFRAMES_YEARS_BACK or 5)")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "symbol codes (default: all active symbols)")
	return cmd
}

// lockTTL はロックの有効期限です。プロセスが落ちてもこの時間で自然に解放されます。
const lockTTL = 2 * time.Hour

// withInfra は DB/Redis に接続し、Redis があれば op のロックを取ってから fn を実行します。
func withInfra(ctx context.Context, op string, fn func(ctx context.Context, infra *di.Infra) error) error {
	infra, err := di.OpenInfra(ctx)
	if err != nil {
		return err
	}
	defer infra.Close()

	if infra.Redis == nil {
		slog.Info("running without run lock", "op", op)
		return fn(ctx, infra)
	}
	locks := lock.NewRunLock(infra.Redis, "timeframes")
	h, err := locks.Acquire(ctx, op, lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := locks.Release(context.WithoutCancel(ctx), h); err != nil {
			slog.Warn("failed to release run lock", "op", op, "error", err)
		}
	}()
	return fn(ctx, infra)
}

func runIngest(ctx context.Context, infra *di.Infra, symbols []string, outputsize int) error {
	codes, err := resolveSymbols(ctx, infra, symbols)
	if err != nil {
		return err
	}
	start := time.Now()
	uc := di.NewIngestUsecase(infra).WithOutputSize(outputsize)
	rep, err := uc.IngestAll(ctx, codes)
	counts := map[string]int{
		"instruments": rep.Symbols,
		"stored":      rep.Stored,
		"rejected":    rep.Rejected,
		"failed":      len(rep.Failed),
	}
	pushMetrics(ctx, "ingest", counts, time.Since(start), err == nil)
	return err
}

// report は op を実行し、結果を Pushgateway に送ります。
// 銘柄単位の失敗は終了コードに影響しません（Summary とログで確認します）。
func report(ctx context.Context, op string, run func() (tfusecase.Summary, error)) error {
	start := time.Now()
	sum, err := run()
	pushMetrics(ctx, op, sum.Counts(), time.Since(start), err == nil)
	if errors.Is(err, tfusecase.ErrNoInstruments) {
		return fmt.Errorf("%s: %w (check the symbols table)", op, err)
	}
	return err
}

func pushMetrics(ctx context.Context, op string, counts map[string]int, elapsed time.Duration, ok bool) {
	p := metrics.NewPusher(metrics.LoadConfig(), nil)
	// 中断されたときも結果は送りたいので、親のキャンセルを引き継がない
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.PushSummary(pctx, op, counts, elapsed, ok); err != nil {
		slog.Warn("failed to push metrics", "op", op, "error", err)
	}
}

// resolveSymbols はフラグで指定された銘柄、無ければアクティブな全銘柄を返します。
func resolveSymbols(ctx context.Context, infra *di.Infra, flag []string) ([]string, error) {
	if codes := normalizeSymbols(flag); len(codes) > 0 {
		return codes, nil
	}
	codes, err := di.NewSymbolUsecase(infra).ListActiveCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active symbols: %w", err)
	}
	if len(codes) == 0 {
		return nil, tfusecase.ErrNoInstruments
	}
	return codes, nil
}

func normalizeSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// resolveDate は --date の値、空なら JST の今日を返します。
func resolveDate(flag string, now time.Time) (time.Time, error) {
	if flag == "" {
		return calendar.Today(now), nil
	}
	return calendar.ParseDate(flag)
}

// parseKind は 1week/1month（week/month も可）を受け付けます。
func parseKind(s string) (entity.Timeframe, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "week" || s == "month" {
		s = "1" + s
	}
	k, ok := entity.ParseTimeframe(s)
	if !ok || !k.IsAggregate() {
		return "", fmt.Errorf("%w: %q", tfusecase.ErrUnsupportedKind, s)
	}
	return k, nil
}
