// Package adapters はcandlesフィーチャーのリポジトリ実装を提供します。
package adapters

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stock_timeframes/internal/feature/candles/domain/entity"
	"stock_timeframes/internal/feature/candles/usecase"
)

type candleMySQL struct {
	db *gorm.DB
}

var _ usecase.CandleRepository = (*candleMySQL)(nil)

// NewCandleRepository は指定されたDB接続でローソク足リポジトリを生成します。
// MySQL/PostgreSQL/SQLite いずれの gorm ダイアレクトでも動作します。
func NewCandleRepository(db *gorm.DB) *candleMySQL {
	return &candleMySQL{db: db}
}

// CandleModel は candles テーブルの行です。
// (symbol, interval, time) が一意キーで、週足・月足の再計算はこのキーで上書きされます。
type CandleModel struct {
	ID       uint      `gorm:"primaryKey"`
	Symbol   string    `gorm:"size:32;not null;uniqueIndex:candle_sym_int_time,priority:1"`
	Interval string    `gorm:"size:16;not null;uniqueIndex:candle_sym_int_time,priority:2"`
	Time     time.Time `gorm:"not null;uniqueIndex:candle_sym_int_time,priority:3"`

	Open   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	High   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Low    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Close  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Volume int64           `gorm:"not null;default:0"`
}

func (CandleModel) TableName() string {
	return "candles"
}

func toModel(e entity.Candle) CandleModel {
	return CandleModel{
		Symbol:   e.Symbol,
		Interval: e.Interval,
		Time:     e.Time.UTC(),
		Open:     e.Open,
		High:     e.High,
		Low:      e.Low,
		Close:    e.Close,
		Volume:   e.Volume,
	}
}

func toEntity(m CandleModel) entity.Candle {
	return entity.Candle{
		Symbol:   m.Symbol,
		Interval: m.Interval,
		Time:     m.Time.UTC(),
		Open:     m.Open,
		High:     m.High,
		Low:      m.Low,
		Close:    m.Close,
		Volume:   m.Volume,
	}
}

// column はダイアレクトに応じてクォートされるカラム参照を返します。
// interval は MySQL の予約語なので生SQLで書かないこと。
func column(name string) clause.Column {
	return clause.Column{Name: name}
}

// UpsertBatch はローソク足を (symbol, interval, time) で一括 upsert します。
// 同じ内容を何度送っても結果は変わりません。
func (r *candleMySQL) UpsertBatch(ctx context.Context, candles []entity.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	ms := make([]CandleModel, 0, len(candles))
	for _, e := range candles {
		ms = append(ms, toModel(e))
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{column("symbol"), column("interval"), column("time")},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
	}).Create(&ms).Error
}

// Find は新しい順に最大 outputsize 件を返します（0 以下なら全件）。
func (r *candleMySQL) Find(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
	var rows []CandleModel
	q := r.db.WithContext(ctx).
		Clauses(clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: column("symbol"), Value: symbol},
			clause.Eq{Column: column("interval"), Value: interval},
		}}).
		Order(clause.OrderByColumn{Column: column("time"), Desc: true})
	if outputsize > 0 {
		q = q.Limit(outputsize)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.Candle, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out, nil
}

// FindRange は from〜to（両端を含む）のローソク足を古い順に返します。
func (r *candleMySQL) FindRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]entity.Candle, error) {
	var rows []CandleModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: column("symbol"), Value: symbol},
			clause.Eq{Column: column("interval"), Value: interval},
			clause.Gte{Column: column("time"), Value: from.UTC()},
			clause.Lte{Column: column("time"), Value: to.UTC()},
		}}).
		Order(clause.OrderByColumn{Column: column("time")}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]entity.Candle, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out, nil
}
