// Package usecase implements the business logic for symbol-related operations.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"stock_timeframes/internal/feature/symbollist/domain/entity"
)

// SymbolRepository abstracts the persistence layer for symbol (stock ticker) data.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type SymbolRepository interface {
	ListActive(ctx context.Context) ([]entity.Symbol, error)
	ListActiveCodes(ctx context.Context) ([]string, error)
	ListUpdatedOn(ctx context.Context, date time.Time) ([]string, error)
}

// SymbolUsecase provides business logic for symbol operations.
type SymbolUsecase struct {
	repo SymbolRepository
}

// NewSymbolUsecase creates a new SymbolUsecase with the given repository.
func NewSymbolUsecase(r SymbolRepository) *SymbolUsecase {
	return &SymbolUsecase{repo: r}
}

// ListActiveSymbols returns all active symbols from the repository.
func (u *SymbolUsecase) ListActiveSymbols(ctx context.Context) ([]entity.Symbol, error) {
	return u.repo.ListActive(ctx)
}

// ListActiveCodes returns the codes of all active symbols, ordered by sort_key.
func (u *SymbolUsecase) ListActiveCodes(ctx context.Context) ([]string, error) {
	return u.repo.ListActiveCodes(ctx)
}

// ResolveUniverse は日次サイクルで集計する銘柄を返します。
// date の日足が取り込まれた銘柄を優先し、1件もなければアクティブ銘柄全体にフォールバックします。
// 空のスライスを返すこともあり、その扱いは呼び出し側が決めます。
func (u *SymbolUsecase) ResolveUniverse(ctx context.Context, date time.Time) ([]string, error) {
	codes, err := u.repo.ListUpdatedOn(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(codes) > 0 {
		return codes, nil
	}

	slog.Warn("no daily bars stored for date, falling back to all active symbols", "date", date.Format("2006-01-02"))
	return u.repo.ListActiveCodes(ctx)
}
