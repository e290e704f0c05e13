// Package adapters はsymbollistフィーチャーのリポジトリ実装を提供します。
package adapters

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stock_timeframes/internal/feature/symbollist/domain/entity"
	"stock_timeframes/internal/feature/symbollist/usecase"
)

// candlesTable は日足が保存されているテーブル名です（candles フィーチャーの CandleModel）。
const candlesTable = "candles"

// symbolMySQL はSymbolRepositoryインターフェースのMySQL実装です。
type symbolMySQL struct {
	db *gorm.DB
}

var _ usecase.SymbolRepository = (*symbolMySQL)(nil)

// NewSymbolRepository は指定されたDB接続でsymbolMySQLリポジトリの新しいインスタンスを生成します。
func NewSymbolRepository(db *gorm.DB) *symbolMySQL {
	return &symbolMySQL{db: db}
}

// ListActive はsort_key順にすべてのアクティブな銘柄を返します。
func (r *symbolMySQL) ListActive(ctx context.Context) ([]entity.Symbol, error) {
	var symbols []entity.Symbol
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_key ASC").
		Find(&symbols).Error; err != nil {
		return nil, err
	}
	return symbols, nil
}

// ListActiveCodes はsort_key順にアクティブな銘柄のコードのみを返します。
func (r *symbolMySQL) ListActiveCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&entity.Symbol{}).
		Where("is_active = ?", true).
		Order("sort_key ASC").
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// ListUpdatedOn は date の日足が保存済みのアクティブ銘柄コードを sort_key 順に返します。
// 日次サイクルの対象銘柄の決定に使います。
func (r *symbolMySQL) ListUpdatedOn(ctx context.Context, date time.Time) ([]string, error) {
	var codes []string
	err := r.db.WithContext(ctx).
		Model(&entity.Symbol{}).
		Joins("JOIN " + candlesTable + " ON " + candlesTable + ".symbol = symbols.code").
		Clauses(clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "symbols", Name: "is_active"}, Value: true},
			// interval は予約語なのでクォートさせる
			clause.Eq{Column: clause.Column{Table: candlesTable, Name: "interval"}, Value: "1day"},
			clause.Eq{Column: clause.Column{Table: candlesTable, Name: "time"}, Value: date.UTC()},
		}}).
		Order("symbols.sort_key ASC").
		Pluck("symbols.code", &codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}
