package cache

import (
	"time"

	"stock_timeframes/internal/feature/timeframes/domain/calendar"
)

// TTLUntilNextCycle は now から次の日次サイクル（JST の hour 時）までの期間を返します。
// 集計足はサイクルごとにしか変わらないので、キャッシュはその時刻まで持たせます。
func TTLUntilNextCycle(now time.Time, hour int) time.Duration {
	local := now.In(calendar.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, calendar.Location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}
