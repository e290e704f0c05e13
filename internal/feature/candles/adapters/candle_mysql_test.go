package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"stock_timeframes/internal/feature/candles/domain/entity"
)

// setupTestDB prepares an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to initialize test database")

	// :memory: はコネクションごとに別DBになるため1本に固定
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&CandleModel{})
	require.NoError(t, err, "failed to migrate table")

	return db
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newCandle(symbol, interval string, t time.Time, o, h, l, c string, v int64) entity.Candle {
	return entity.Candle{
		Symbol:   symbol,
		Interval: interval,
		Time:     t,
		Open:     d(o),
		High:     d(h),
		Low:      d(l),
		Close:    d(c),
		Volume:   v,
	}
}

// seedCandle creates a test candle in the database for testing.
func seedCandle(t *testing.T, db *gorm.DB, symbol, interval string, tm time.Time) *CandleModel {
	t.Helper()

	m := toModel(newCandle(symbol, interval, tm, "100", "110", "90", "105", 1000))
	err := db.Create(&m).Error
	require.NoError(t, err, "failed to seed candle")

	return &m
}

func TestNewCandleRepository(t *testing.T) {
	db := setupTestDB(t)

	repo := NewCandleRepository(db)

	assert.NotNil(t, repo, "repository is nil")
	assert.NotNil(t, repo.db, "database connection is nil")
}

func TestCandleMySQL_UpsertBatch(t *testing.T) {
	t.Parallel()

	baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		candles      []entity.Candle
		setupFunc    func(t *testing.T, db *gorm.DB)
		validateFunc func(t *testing.T, db *gorm.DB)
	}{
		{
			name: "success: insert multiple candles",
			candles: []entity.Candle{
				newCandle("7203.T", "1day", baseTime, "100", "110", "90", "105", 1000),
				newCandle("7203.T", "1day", baseTime.AddDate(0, 0, 1), "105", "115", "95", "110", 1500),
			},
			validateFunc: func(t *testing.T, db *gorm.DB) {
				var count int64
				db.Model(&CandleModel{}).Count(&count)
				assert.Equal(t, int64(2), count, "candle count does not match")
			},
		},
		{
			name:    "success: empty slice is a no-op",
			candles: []entity.Candle{},
			validateFunc: func(t *testing.T, db *gorm.DB) {
				var count int64
				db.Model(&CandleModel{}).Count(&count)
				assert.Equal(t, int64(0), count, "candle count should be 0")
			},
		},
		{
			name: "success: upsert overwrites the existing bucket",
			candles: []entity.Candle{
				newCandle("7203.T", "1week", baseTime, "200", "220.5", "180.25", "210", 2000),
			},
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedCandle(t, db, "7203.T", "1week", baseTime)
			},
			validateFunc: func(t *testing.T, db *gorm.DB) {
				var count int64
				db.Model(&CandleModel{}).Count(&count)
				assert.Equal(t, int64(1), count, "candle count should remain 1 after upsert")

				var m CandleModel
				require.NoError(t, db.First(&m).Error)
				assert.True(t, m.Open.Equal(d("200")), "Open should be updated: %s", m.Open)
				assert.True(t, m.High.Equal(d("220.5")), "High should be updated: %s", m.High)
				assert.True(t, m.Low.Equal(d("180.25")), "Low should be updated: %s", m.Low)
				assert.True(t, m.Close.Equal(d("210")), "Close should be updated: %s", m.Close)
				assert.Equal(t, int64(2000), m.Volume, "Volume should be updated")
			},
		},
		{
			name: "success: same symbol and time but different interval are distinct rows",
			candles: []entity.Candle{
				newCandle("7203.T", "1month", baseTime, "100", "110", "90", "105", 1000),
			},
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedCandle(t, db, "7203.T", "1week", baseTime)
			},
			validateFunc: func(t *testing.T, db *gorm.DB) {
				var count int64
				db.Model(&CandleModel{}).Count(&count)
				assert.Equal(t, int64(2), count)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db := setupTestDB(t)
			repo := NewCandleRepository(db)

			if tt.setupFunc != nil {
				tt.setupFunc(t, db)
			}

			err := repo.UpsertBatch(context.Background(), tt.candles)
			require.NoError(t, err)
			tt.validateFunc(t, db)
		})
	}
}

func TestCandleMySQL_UpsertBatch_Idempotent(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCandleRepository(db)
	ctx := context.Background()

	c := newCandle("7203.T", "1month", time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), "100", "110", "99", "108", 3000)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.UpsertBatch(ctx, []entity.Candle{c}))
	}

	got, err := repo.Find(ctx, "7203.T", "1month", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Close.Equal(c.Close))
	assert.Equal(t, c.Volume, got[0].Volume)
}

func TestCandleMySQL_Find(t *testing.T) {
	t.Parallel()

	baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		symbol       string
		interval     string
		outputsize   int
		setupFunc    func(t *testing.T, db *gorm.DB)
		validateFunc func(t *testing.T, candles []entity.Candle)
	}{
		{
			name:       "success: empty result when no matching candles",
			symbol:     "NOTFOUND",
			interval:   "1day",
			outputsize: 10,
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				assert.Empty(t, candles, "should return empty slice")
			},
		},
		{
			name:       "success: filter by symbol and interval",
			symbol:     "7203.T",
			interval:   "1day",
			outputsize: 10,
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedCandle(t, db, "7203.T", "1day", baseTime)
				seedCandle(t, db, "6758.T", "1day", baseTime)
				seedCandle(t, db, "7203.T", "1week", baseTime)
			},
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				require.Len(t, candles, 1)
				assert.Equal(t, "7203.T", candles[0].Symbol)
				assert.Equal(t, "1day", candles[0].Interval)
			},
		},
		{
			name:       "success: respect outputsize limit",
			symbol:     "7203.T",
			interval:   "1day",
			outputsize: 2,
			setupFunc: func(t *testing.T, db *gorm.DB) {
				for i := 0; i < 5; i++ {
					seedCandle(t, db, "7203.T", "1day", baseTime.AddDate(0, 0, i))
				}
			},
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				assert.Len(t, candles, 2, "should return only 2 candles")
			},
		},
		{
			name:       "success: outputsize 0 returns all",
			symbol:     "7203.T",
			interval:   "1day",
			outputsize: 0,
			setupFunc: func(t *testing.T, db *gorm.DB) {
				for i := 0; i < 5; i++ {
					seedCandle(t, db, "7203.T", "1day", baseTime.AddDate(0, 0, i))
				}
			},
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				assert.Len(t, candles, 5, "should return all candles")
			},
		},
		{
			name:       "success: results ordered by time descending",
			symbol:     "7203.T",
			interval:   "1day",
			outputsize: 10,
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedCandle(t, db, "7203.T", "1day", baseTime)
				seedCandle(t, db, "7203.T", "1day", baseTime.AddDate(0, 0, 2))
				seedCandle(t, db, "7203.T", "1day", baseTime.AddDate(0, 0, 1))
			},
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				require.Len(t, candles, 3)
				assert.True(t, candles[0].Time.After(candles[1].Time), "first should be newer than second")
				assert.True(t, candles[1].Time.After(candles[2].Time), "second should be newer than third")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db := setupTestDB(t)
			repo := NewCandleRepository(db)

			if tt.setupFunc != nil {
				tt.setupFunc(t, db)
			}

			candles, err := repo.Find(context.Background(), tt.symbol, tt.interval, tt.outputsize)
			require.NoError(t, err)
			tt.validateFunc(t, candles)
		})
	}
}

func TestCandleMySQL_FindRange(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCandleRepository(db)
	ctx := context.Background()

	// 2025-08-29 .. 2025-09-03
	start := time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC)
	for i := 5; i >= 0; i-- {
		seedCandle(t, db, "7203.T", "1day", start.AddDate(0, 0, i))
	}
	seedCandle(t, db, "6758.T", "1day", time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))

	from := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)
	got, err := repo.FindRange(ctx, "7203.T", "1day", from, to)
	require.NoError(t, err)
	require.Len(t, got, 3, "both ends are inclusive")
	assert.True(t, got[0].Time.Equal(from), "ascending order: %v", got[0].Time)
	assert.True(t, got[2].Time.Equal(to), "ascending order: %v", got[2].Time)
	for _, c := range got {
		assert.Equal(t, "7203.T", c.Symbol)
	}

	empty, err := repo.FindRange(ctx, "7203.T", "1day", time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCandleMySQL_Find_EntityMapping(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCandleRepository(db)

	testTime := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	m := toModel(newCandle("7203.T", "1day", testTime, "2950.5", "2990.75", "2931.25", "2984", 5000000))
	require.NoError(t, db.Create(&m).Error)

	result, err := repo.Find(context.Background(), "7203.T", "1day", 1)
	require.NoError(t, err)
	require.Len(t, result, 1)

	assert.Equal(t, "7203.T", result[0].Symbol, "Symbol does not match")
	assert.Equal(t, "1day", result[0].Interval, "Interval does not match")
	assert.True(t, testTime.Equal(result[0].Time), "Time does not match")
	assert.Equal(t, time.UTC, result[0].Time.Location())
	assert.True(t, result[0].Open.Equal(d("2950.5")), "Open does not match")
	assert.True(t, result[0].High.Equal(d("2990.75")), "High does not match")
	assert.True(t, result[0].Low.Equal(d("2931.25")), "Low does not match")
	assert.True(t, result[0].Close.Equal(d("2984")), "Close does not match")
	assert.Equal(t, int64(5000000), result[0].Volume, "Volume does not match")
}
