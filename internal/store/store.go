// Package store persists candle data: a Parquet archive for minute candles
// and a relational mirror for daily candles and symbol reference rows.
package store

import (
	"context"

	"tesfeed/internal/domain"
)

// CandleArchive persists and retrieves minute candle series per symbol.
type CandleArchive interface {
	// SaveCandles persists a candle series for a symbol, merging with any
	// previously archived bars.
	SaveCandles(ctx context.Context, code string, bars []domain.CandleBar) error

	// LoadCandles returns the archived series for a symbol, oldest first.
	LoadCandles(ctx context.Context, code string) ([]domain.CandleBar, error)

	// ListCodes returns all symbols with archived candles.
	ListCodes(ctx context.Context) ([]string, error)
}

// Mirror is a one-way sink that mirrors reference data into a relational
// database for offline analysis. Failures are logged, never fatal.
type Mirror interface {
	// UpsertSymbols writes symbol reference rows.
	UpsertSymbols(ctx context.Context, symbols []domain.SymbolState) error

	// UpsertDailyCandles writes a symbol's daily history.
	UpsertDailyCandles(ctx context.Context, code string, candles []domain.DailyCandle) error

	// Close releases the underlying connection.
	Close() error
}
