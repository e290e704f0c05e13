// Package entity defines the domain models for the candles feature.
package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe は足の種類（日足・週足・月足）を表します。
// 値は外部APIとDBの interval カラムでそのまま使われる文字列です。
type Timeframe string

const (
	Day   Timeframe = "1day"
	Week  Timeframe = "1week"
	Month Timeframe = "1month"
)

// String implements fmt.Stringer.
func (tf Timeframe) String() string { return string(tf) }

// IsAggregate は週足・月足のように日足から導出される足かどうかを返します。
func (tf Timeframe) IsAggregate() bool {
	return tf == Week || tf == Month
}

// ParseTimeframe converts an interval string ("1day", "1week", "1month") to a Timeframe.
func ParseTimeframe(s string) (Timeframe, bool) {
	switch Timeframe(s) {
	case Day, Week, Month:
		return Timeframe(s), true
	default:
		return "", false
	}
}

// Candle represents OHLCV (Open, High, Low, Close, Volume) candlestick data
// for a stock symbol at a specific time interval.
//
// A 1day candle is one trading day as delivered by the market data source.
// 1week and 1month candles are derived from the 1day candles of the period and
// Time holds the period start date.
type Candle struct {
	Symbol   string          // Stock ticker symbol (e.g., "7203.T")
	Interval string          // Time interval ("1day", "1week", "1month")
	Time     time.Time       // Civil date (00:00 UTC) of the bar or period start
	Open     decimal.Decimal // Opening price
	High     decimal.Decimal // Highest price during this period
	Low      decimal.Decimal // Lowest price during this period
	Close    decimal.Decimal // Closing price
	Volume   int64           // Trading volume
}
