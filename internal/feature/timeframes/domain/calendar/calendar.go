// Package calendar maps exchange-local civil dates to weekly and monthly buckets.
//
// A civil date is carried as a time.Time at 00:00 UTC whose Y/M/D are the
// exchange-local (JST) calendar date. All arithmetic is done with AddDate on
// that representation, so no time-of-day or offset can shift a date across a
// day boundary. Instants (API timestamps, time.Now) must be converted with
// DateOf, which reads the JST wall clock.
package calendar

import (
	"fmt"
	"time"

	"stock_timeframes/internal/feature/candles/domain/entity"
)

// Location は取引所のローカル時間（JST, UTC+9, 夏時間なし）です。
// tzdata に依存しないよう固定オフセットで定義します。
var Location = time.FixedZone("JST", 9*60*60)

const dateLayout = "2006-01-02"

// Date returns the civil date y-m-d.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOf は任意の時刻をJSTの壁時計で読み、その暦日を返します。
func DateOf(t time.Time) time.Time {
	local := t.In(Location)
	return Date(local.Year(), local.Month(), local.Day())
}

// Civil はタイムゾーン変換をせず、t 自身の壁時計の暦日を返します。
// 外部APIが取引所ローカルの日時文字列を返し、それをUTCとしてパースした値に使います。
func Civil(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// Today returns the exchange-local date of now.
func Today(now time.Time) time.Time {
	return DateOf(now)
}

// ParseDate parses "2006-01-02" as a civil date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Format renders a civil date as "2006-01-02".
func Format(d time.Time) string {
	return d.Format(dateLayout)
}

// normalize drops any time-of-day so callers can pass a date obtained from storage.
func normalize(d time.Time) time.Time {
	return Civil(d)
}

// WeekStart は d を含む週の開始日（日曜日）を返します。ISO週ではありません。
func WeekStart(d time.Time) time.Time {
	d = normalize(d)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// WeekEnd returns weekStart + 6 days (the Saturday).
func WeekEnd(weekStart time.Time) time.Time {
	return normalize(weekStart).AddDate(0, 0, 6)
}

// MonthStart returns the first day of d's month.
func MonthStart(d time.Time) time.Time {
	return Date(d.Year(), d.Month(), 1)
}

// MonthEnd は月末日を翌月1日の前日として求めます（28〜31日のいずれにも対応）。
func MonthEnd(monthStart time.Time) time.Time {
	return MonthStart(monthStart).AddDate(0, 1, -1)
}

// Bucket は集計対象期間（種類, 開始日, 終了日）です。永続化はしません。
type Bucket struct {
	Kind  entity.Timeframe
	Start time.Time
	End   time.Time
}

// String implements fmt.Stringer.
func (b Bucket) String() string {
	return fmt.Sprintf("%s[%s..%s]", b.Kind, Format(b.Start), Format(b.End))
}

// Contains reports whether the civil date d falls within the bucket.
func (b Bucket) Contains(d time.Time) bool {
	d = normalize(d)
	return !d.Before(b.Start) && !d.After(b.End)
}

// BucketOf returns the bucket of the given kind that contains d.
// kind must be entity.Week or entity.Month.
func BucketOf(kind entity.Timeframe, d time.Time) Bucket {
	switch kind {
	case entity.Week:
		s := WeekStart(d)
		return Bucket{Kind: kind, Start: s, End: WeekEnd(s)}
	case entity.Month:
		s := MonthStart(d)
		return Bucket{Kind: kind, Start: s, End: MonthEnd(s)}
	default:
		panic(fmt.Sprintf("calendar: unsupported bucket kind %q", kind))
	}
}

// Previous returns the bucket immediately before b.
func Previous(b Bucket) Bucket {
	return BucketOf(b.Kind, b.Start.AddDate(0, 0, -1))
}

// Next returns the bucket immediately after b.
func Next(b Bucket) Bucket {
	return BucketOf(b.Kind, b.End.AddDate(0, 0, 1))
}

// Buckets は from から to までに掛かるすべての期間を古い順に列挙します。
func Buckets(kind entity.Timeframe, from, to time.Time) []Bucket {
	to = normalize(to)
	var out []Bucket
	for b := BucketOf(kind, from); !b.Start.After(to); b = Next(b) {
		out = append(out, b)
	}
	return out
}

// ShouldFinalize は ref が前期間の確定日かどうかを返します。
// 週足は土曜日、月足は月初1日に前期間を確定させます。
func ShouldFinalize(kind entity.Timeframe, ref time.Time) bool {
	ref = normalize(ref)
	switch kind {
	case entity.Week:
		return ref.Weekday() == time.Saturday
	case entity.Month:
		return ref.Day() == 1
	default:
		return false
	}
}

// Status is the derived lifecycle state of a bucket. It is never stored.
type Status int

const (
	// Open buckets end today or later and are recomputed every cycle.
	Open Status = iota
	// Finalizing buckets are recomputed one last time today.
	Finalizing
	// Closed buckets are no longer targeted by the daily cycle.
	Closed
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Finalizing:
		return "finalizing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// StatusOf derives b's state from today's date alone.
func StatusOf(b Bucket, today time.Time) Status {
	today = normalize(today)
	if !b.End.Before(today) {
		return Open
	}
	if ShouldFinalize(b.Kind, today) && Previous(BucketOf(b.Kind, today)).Start.Equal(b.Start) {
		return Finalizing
	}
	return Closed
}
