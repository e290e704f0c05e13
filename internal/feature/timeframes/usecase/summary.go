package usecase

import (
	"log/slog"
	"sort"
)

// Summary は1回の集計処理の結果件数です。サイクルの最後にログとメトリクスへ出力します。
type Summary struct {
	Instruments int // 対象銘柄数
	Recomputed  int // 再計算して書き込んだ現在期間の数
	Finalized   int // 確定させた前期間の数
	Rebuilt     int // RebuildHistory で書き込んだ期間の数
	Skipped     int // 有効な日足が無く書き込まなかった期間の数
	Failed      int // 取得または書き込みに失敗した銘柄数
	InvalidBars int // BarValidator で除外した日足の数
	Conflicts   int // 同一日付で値が食い違い除外した日付の数

	FailedSymbols []string
}

func (s *Summary) merge(o Summary) {
	s.Recomputed += o.Recomputed
	s.Finalized += o.Finalized
	s.Rebuilt += o.Rebuilt
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	s.InvalidBars += o.InvalidBars
	s.Conflicts += o.Conflicts
	s.FailedSymbols = append(s.FailedSymbols, o.FailedSymbols...)
}

// Written returns the number of aggregate bars upserted.
func (s Summary) Written() int {
	return s.Recomputed + s.Finalized + s.Rebuilt
}

// Counts returns the counters keyed by a stable name, for metric export.
func (s Summary) Counts() map[string]int {
	return map[string]int{
		"instruments":  s.Instruments,
		"recomputed":   s.Recomputed,
		"finalized":    s.Finalized,
		"rebuilt":      s.Rebuilt,
		"skipped":      s.Skipped,
		"failed":       s.Failed,
		"invalid_bars": s.InvalidBars,
		"conflicts":    s.Conflicts,
	}
}

// LogValue implements slog.LogValuer.
func (s Summary) LogValue() slog.Value {
	failed := append([]string(nil), s.FailedSymbols...)
	sort.Strings(failed)
	return slog.GroupValue(
		slog.Int("instruments", s.Instruments),
		slog.Int("recomputed", s.Recomputed),
		slog.Int("finalized", s.Finalized),
		slog.Int("rebuilt", s.Rebuilt),
		slog.Int("skipped", s.Skipped),
		slog.Int("failed", s.Failed),
		slog.Int("invalid_bars", s.InvalidBars),
		slog.Int("conflicts", s.Conflicts),
		slog.Any("failed_symbols", failed),
	)
}
