// Package bar はローソク足1本の妥当性判定を提供します。
package bar

import (
	"errors"
	"fmt"

	"stock_timeframes/internal/feature/candles/domain/entity"
)

// ErrInvalidBar は形式的に不正なバー（ゼロ価格、OHLCの矛盾など）を表します。
var ErrInvalidBar = errors.New("invalid bar")

// Validate は1本のバーが以下をすべて満たすか検証し、違反した最初のルールをエラーで返します。
//   - open, high, low, close がすべて 0 より大きい
//   - high >= max(open, close)
//   - low <= min(open, close)
//   - volume >= 0
func Validate(c entity.Candle) error {
	if !c.Open.IsPositive() || !c.High.IsPositive() || !c.Low.IsPositive() || !c.Close.IsPositive() {
		return fmt.Errorf("%w: non-positive price o=%s h=%s l=%s c=%s", ErrInvalidBar, c.Open, c.High, c.Low, c.Close)
	}
	if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) {
		return fmt.Errorf("%w: high %s below open/close", ErrInvalidBar, c.High)
	}
	if c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) {
		return fmt.Errorf("%w: low %s above open/close", ErrInvalidBar, c.Low)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: negative volume %d", ErrInvalidBar, c.Volume)
	}
	return nil
}

// IsValid reports whether c passes Validate.
func IsValid(c entity.Candle) bool {
	return Validate(c) == nil
}
