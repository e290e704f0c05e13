// Package ohlc reduces the daily bars of one period into a single aggregate bar.
package ohlc

import (
	"sort"
	"time"

	"stock_timeframes/internal/feature/candles/domain/entity"
	"stock_timeframes/internal/feature/timeframes/domain/bar"
)

// Result は Reduce の入力内訳です。ログ出力用に呼び出し側へ返します。
type Result struct {
	Invalid   int         // BarValidator で除外された件数
	Conflicts []time.Time // 同一日付で値が食い違い、除外された日付
}

// Dedupe は同じ日付のバーを1本にまとめます。
// 値まで一致する重複（再配信）は1本として残し、値が食い違う日付は
// どちらを採用すべきか決められないため、その日付のバーをすべて除外します。
// 戻り値の順序は入力順（最初の出現位置）を保ちます。
func Dedupe(bars []entity.Candle) (kept []entity.Candle, conflicts []time.Time) {
	type slot struct {
		idx      int
		conflict bool
	}
	seen := make(map[time.Time]*slot, len(bars))
	kept = make([]entity.Candle, 0, len(bars))

	for _, b := range bars {
		key := b.Time.UTC()
		s, ok := seen[key]
		if !ok {
			seen[key] = &slot{idx: len(kept)}
			kept = append(kept, b)
			continue
		}
		if !s.conflict && !sameValues(kept[s.idx], b) {
			s.conflict = true
			conflicts = append(conflicts, key)
		}
	}
	if len(conflicts) == 0 {
		return kept, nil
	}

	out := kept[:0]
	for _, b := range kept {
		if seen[b.Time.UTC()].conflict {
			continue
		}
		out = append(out, b)
	}
	return out, conflicts
}

func sameValues(a, b entity.Candle) bool {
	return a.Open.Equal(b.Open) &&
		a.High.Equal(b.High) &&
		a.Low.Equal(b.Low) &&
		a.Close.Equal(b.Close) &&
		a.Volume == b.Volume
}

// Reduce は1期間分の日足から集計足を作ります。
//
// 不正なバーは除外し、有効なバーが1本も無い場合は ok=false を返します
// （呼び出し側は既存の集計値を上書きしてはいけません）。
// open は最古のバーの始値、close は最新のバーの終値、high/low は最大/最小、
// volume は合計です。返す Candle の Symbol/Interval/Time は呼び出し側が設定します。
func Reduce(bars []entity.Candle) (entity.Candle, Result, bool) {
	var res Result

	valid := make([]entity.Candle, 0, len(bars))
	for _, b := range bars {
		if !bar.IsValid(b) {
			res.Invalid++
			continue
		}
		valid = append(valid, b)
	}

	valid, res.Conflicts = Dedupe(valid)
	if len(valid) == 0 {
		return entity.Candle{}, res, false
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Time.Before(valid[j].Time)
	})

	agg := entity.Candle{
		Open:  valid[0].Open,
		High:  valid[0].High,
		Low:   valid[0].Low,
		Close: valid[len(valid)-1].Close,
	}
	for _, b := range valid {
		if b.High.GreaterThan(agg.High) {
			agg.High = b.High
		}
		if b.Low.LessThan(agg.Low) {
			agg.Low = b.Low
		}
		agg.Volume += b.Volume
	}

	if !bar.IsValid(agg) {
		return entity.Candle{}, res, false
	}
	return agg, res, true
}
