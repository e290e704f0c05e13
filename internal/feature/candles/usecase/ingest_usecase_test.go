package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stock_timeframes/internal/feature/candles/domain/entity"
)

var (
	ErrMarketAPI = errors.New("market API error")
	ErrDB        = errors.New("database error")
)

// mockMarketRepository is a mock implementation of the MarketRepository interface.
type mockMarketRepository struct {
	GetTimeSeriesFunc  func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error)
	GetTimeSeriesCalls int
}

func (m *mockMarketRepository) GetTimeSeries(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
	m.GetTimeSeriesCalls++
	if m.GetTimeSeriesFunc != nil {
		return m.GetTimeSeriesFunc(ctx, symbol, interval, outputsize)
	}
	return nil, errors.New("GetTimeSeriesFunc is not implemented")
}

// mockCandleRepository is a mock implementation of the CandleRepository interface.
type mockCandleRepository struct {
	UpsertBatchFunc func(ctx context.Context, candles []entity.Candle) error
}

func (m *mockCandleRepository) Find(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
	return nil, errors.New("Find is not expected in ingest tests")
}

func (m *mockCandleRepository) UpsertBatch(ctx context.Context, candles []entity.Candle) error {
	if m.UpsertBatchFunc != nil {
		return m.UpsertBatchFunc(ctx, candles)
	}
	return errors.New("UpsertBatchFunc is not implemented")
}

// mockRateLimiter is a mock implementation of the RateLimiterInterface.
type mockRateLimiter struct {
	WaitIfNeededCalls int
}

func (m *mockRateLimiter) WaitIfNeeded() {
	m.WaitIfNeededCalls++
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestIngestUsecase_ingestOne(t *testing.T) {
	ctx := context.Background()
	// 取引所ローカルの "2025-09-01 00:00:00" を UTC としてパースした値
	testTime := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	mockCandles := []entity.Candle{
		{Time: testTime, Open: dec(100), High: dec(105), Low: dec(99), Close: dec(103), Volume: 1000},
		{Time: testTime.AddDate(0, 0, 1), Open: dec(103), High: dec(110), Low: dec(102), Close: dec(108), Volume: 2000},
		{Time: testTime.AddDate(0, 0, 2), Open: dec(0), High: dec(0), Low: dec(0), Close: dec(0), Volume: 500},
	}

	testCases := []struct {
		name                  string
		inputSymbol           string
		mockGetTimeSeriesFunc func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error)
		mockUpsertBatchFunc   func(ctx context.Context, candles []entity.Candle) error
		expectedErr           error
		expectedStored        int
		expectedRejected      int
		verifyCandles         func(t *testing.T, candles []entity.Candle)
	}{
		{
			name:        "success: valid bars stored, invalid bar rejected",
			inputSymbol: "7203.T",
			mockGetTimeSeriesFunc: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				if symbol != "7203.T" || interval != "1day" || outputsize != 200 {
					t.Errorf("GetTimeSeries called with unexpected params: got symbol=%s, interval=%s, outputsize=%d", symbol, interval, outputsize)
				}
				return mockCandles, nil
			},
			mockUpsertBatchFunc: func(ctx context.Context, candles []entity.Candle) error {
				return nil
			},
			expectedStored:   2,
			expectedRejected: 1,
			verifyCandles: func(t *testing.T, candles []entity.Candle) {
				if len(candles) != 2 {
					t.Errorf("candles count mismatch: got %d, want 2", len(candles))
				}
				for _, c := range candles {
					if c.Symbol != "7203.T" {
						t.Errorf("candle Symbol not set: got %s, want 7203.T", c.Symbol)
					}
					if c.Interval != "1day" {
						t.Errorf("candle Interval not set: got %s, want 1day", c.Interval)
					}
				}
			},
		},
		{
			name:        "success: intraday timestamp truncated to civil date",
			inputSymbol: "6758.T",
			mockGetTimeSeriesFunc: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				return []entity.Candle{
					{Time: time.Date(2025, 9, 1, 15, 0, 0, 0, time.UTC), Open: dec(10), High: dec(11), Low: dec(9), Close: dec(10), Volume: 1},
				}, nil
			},
			mockUpsertBatchFunc: func(ctx context.Context, candles []entity.Candle) error {
				return nil
			},
			expectedStored: 1,
			verifyCandles: func(t *testing.T, candles []entity.Candle) {
				want := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
				if !candles[0].Time.Equal(want) {
					t.Errorf("time not truncated: got %v, want %v", candles[0].Time, want)
				}
			},
		},
		{
			name:        "error: MarketRepository returns error",
			inputSymbol: "9984.T",
			mockGetTimeSeriesFunc: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				return nil, ErrMarketAPI
			},
			mockUpsertBatchFunc: func(ctx context.Context, candles []entity.Candle) error {
				t.Error("UpsertBatch should not be called")
				return nil
			},
			expectedErr: ErrMarketAPI,
		},
		{
			name:        "error: CandleRepository returns error",
			inputSymbol: "6758.T",
			mockGetTimeSeriesFunc: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				return mockCandles, nil
			},
			mockUpsertBatchFunc: func(ctx context.Context, candles []entity.Candle) error {
				return ErrDB
			},
			expectedErr:      ErrDB,
			expectedRejected: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var capturedCandles []entity.Candle
			mockMarket := &mockMarketRepository{
				GetTimeSeriesFunc: tc.mockGetTimeSeriesFunc,
			}
			mockCandle := &mockCandleRepository{
				UpsertBatchFunc: func(ctx context.Context, candles []entity.Candle) error {
					capturedCandles = candles
					return tc.mockUpsertBatchFunc(ctx, candles)
				},
			}

			uc := NewIngestUsecase(mockMarket, mockCandle, &mockRateLimiter{})
			stored, rejected, err := uc.ingestOne(ctx, tc.inputSymbol, ingestOutputSize)

			if tc.expectedErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			} else if !errors.Is(err, tc.expectedErr) {
				t.Fatalf("expected %v, got %v", tc.expectedErr, err)
			}

			if stored != tc.expectedStored {
				t.Errorf("stored mismatch: got %d, want %d", stored, tc.expectedStored)
			}
			if rejected != tc.expectedRejected {
				t.Errorf("rejected mismatch: got %d, want %d", rejected, tc.expectedRejected)
			}
			if tc.verifyCandles != nil && capturedCandles != nil {
				tc.verifyCandles(t, capturedCandles)
			}
			if mockMarket.GetTimeSeriesCalls != 1 {
				t.Errorf("GetTimeSeries was called %d times, expected 1", mockMarket.GetTimeSeriesCalls)
			}
		})
	}
}

func TestIngestUsecase_IngestAll(t *testing.T) {
	ctx := context.Background()
	testTime := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	mockCandles := []entity.Candle{
		{Time: testTime, Open: dec(100), High: dec(110), Low: dec(90), Close: dec(105), Volume: 10},
	}

	testCases := []struct {
		name                       string
		inputSymbols               []string
		mockGetTimeSeriesFunc      func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error)
		mockUpsertBatchFunc        func(ctx context.Context, candles []entity.Candle) error
		expectedGetTimeSeriesCalls int
		expectedFailed             []string
		expectedStored             int
	}{
		{
			name:         "success: fetch all symbols",
			inputSymbols: []string{"7203.T", "6758.T"},
			mockGetTimeSeriesFunc: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				if interval != "1day" {
					t.Errorf("only daily bars are ingested, got %s", interval)
				}
				return mockCandles, nil
			},
			mockUpsertBatchFunc: func(ctx context.Context, candles []entity.Candle) error {
				return nil
			},
			expectedGetTimeSeriesCalls: 2,
			expectedStored:             2,
		},
		{
			name:         "success: empty symbol list",
			inputSymbols: []string{},
			mockGetTimeSeriesFunc: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				t.Error("GetTimeSeries should not be called")
				return nil, errors.New("should not be called")
			},
			mockUpsertBatchFunc: func(ctx context.Context, candles []entity.Candle) error {
				t.Error("UpsertBatch should not be called")
				return nil
			},
			expectedGetTimeSeriesCalls: 0,
		},
		{
			name:         "success: continues processing even when some symbols fail",
			inputSymbols: []string{"7203.T", "INVALID", "6758.T"},
			mockGetTimeSeriesFunc: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				if symbol == "INVALID" {
					return nil, ErrMarketAPI
				}
				return mockCandles, nil
			},
			mockUpsertBatchFunc: func(ctx context.Context, candles []entity.Candle) error {
				return nil
			},
			expectedGetTimeSeriesCalls: 3,
			expectedFailed:             []string{"INVALID"},
			expectedStored:             2,
		},
		{
			name:         "success: continues processing even when UpsertBatch fails",
			inputSymbols: []string{"7203.T", "6758.T"},
			mockGetTimeSeriesFunc: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				return mockCandles, nil
			},
			mockUpsertBatchFunc: func(ctx context.Context, candles []entity.Candle) error {
				if candles[0].Symbol == "7203.T" {
					return ErrDB
				}
				return nil
			},
			expectedGetTimeSeriesCalls: 2,
			expectedFailed:             []string{"7203.T"},
			expectedStored:             1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockMarket := &mockMarketRepository{
				GetTimeSeriesFunc: tc.mockGetTimeSeriesFunc,
			}
			mockCandle := &mockCandleRepository{
				UpsertBatchFunc: tc.mockUpsertBatchFunc,
			}
			mockRL := &mockRateLimiter{}

			uc := NewIngestUsecase(mockMarket, mockCandle, mockRL)
			report, err := uc.IngestAll(ctx, tc.inputSymbols)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if mockMarket.GetTimeSeriesCalls != tc.expectedGetTimeSeriesCalls {
				t.Errorf("GetTimeSeries was called %d times, expected %d", mockMarket.GetTimeSeriesCalls, tc.expectedGetTimeSeriesCalls)
			}
			if mockRL.WaitIfNeededCalls != len(tc.inputSymbols) {
				t.Errorf("WaitIfNeeded was called %d times, expected %d", mockRL.WaitIfNeededCalls, len(tc.inputSymbols))
			}
			if len(report.Failed) != len(tc.expectedFailed) {
				t.Errorf("failed symbols mismatch: got %v, want %v", report.Failed, tc.expectedFailed)
			}
			if report.Stored != tc.expectedStored {
				t.Errorf("stored mismatch: got %d, want %d", report.Stored, tc.expectedStored)
			}
		})
	}
}

func TestIngestUsecase_IngestAll_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mockMarket := &mockMarketRepository{}
	uc := NewIngestUsecase(mockMarket, &mockCandleRepository{}, &mockRateLimiter{})

	_, err := uc.IngestAll(ctx, []string{"7203.T"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mockMarket.GetTimeSeriesCalls != 0 {
		t.Errorf("GetTimeSeries should not be called after cancellation")
	}
}

func TestIngestUsecase_WithOutputSize(t *testing.T) {
	var got int
	mockMarket := &mockMarketRepository{
		GetTimeSeriesFunc: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
			got = outputsize
			return nil, nil
		},
	}
	mockCandle := &mockCandleRepository{UpsertBatchFunc: func(ctx context.Context, candles []entity.Candle) error { return nil }}

	uc := NewIngestUsecase(mockMarket, mockCandle, &mockRateLimiter{}).WithOutputSize(5000)
	if _, err := uc.IngestAll(context.Background(), []string{"7203.T"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5000 {
		t.Errorf("outputsize mismatch: got %d, want 5000", got)
	}
}
