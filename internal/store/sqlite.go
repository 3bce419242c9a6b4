package store

import (
	"context"
	"database/sql"
	"fmt"

	"tesfeed/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Mirror = (*SQLiteMirror)(nil)

// SQLiteMirror implements Mirror backed by a SQLite database.
type SQLiteMirror struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS symbols (
	code             TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	sector           TEXT NOT NULL DEFAULT '',
	base_price       REAL NOT NULL DEFAULT 0,
	prev_close       REAL NOT NULL DEFAULT 0,
	avg5d_volume     REAL NOT NULL DEFAULT 0,
	prev_day_volume  REAL NOT NULL DEFAULT 0,
	updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE TABLE IF NOT EXISTS daily_candles (
	code    TEXT NOT NULL,
	date    TEXT NOT NULL,
	open    REAL NOT NULL,
	high    REAL NOT NULL,
	low     REAL NOT NULL,
	close   REAL NOT NULL,
	volume  REAL NOT NULL,
	PRIMARY KEY (code, date)
);
`

// NewSQLiteMirror opens (or creates) a SQLite database at dbPath and ensures
// the mirror tables exist.
func NewSQLiteMirror(dbPath string) (*SQLiteMirror, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating mirror schema: %w", err)
	}
	return &SQLiteMirror{db: db}, nil
}

// Close closes the underlying database connection.
func (m *SQLiteMirror) Close() error {
	return m.db.Close()
}

// UpsertSymbols writes symbol reference rows, replacing on conflict.
func (m *SQLiteMirror) UpsertSymbols(ctx context.Context, symbols []domain.SymbolState) error {
	if len(symbols) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (code, name, sector, base_price, prev_close,
		                     avg5d_volume, prev_day_volume, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			base_price = excluded.base_price,
			prev_close = excluded.prev_close,
			avg5d_volume = excluded.avg5d_volume,
			prev_day_volume = excluded.prev_day_volume,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range symbols {
		if s.Placeholder || s.Code == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, s.Code, s.Name, s.Sector,
			s.BasePrice, s.PrevClose, s.Avg5d, s.PrevDayVolume); err != nil {
			return fmt.Errorf("upserting symbol %s: %w", s.Code, err)
		}
	}
	return tx.Commit()
}

// UpsertDailyCandles writes a symbol's daily history, replacing on conflict.
func (m *SQLiteMirror) UpsertDailyCandles(ctx context.Context, code string, candles []domain.DailyCandle) error {
	if code == "" || len(candles) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_candles (code, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if c.Date == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, code, c.Date,
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("upserting daily candle %s/%s: %w", code, c.Date, err)
		}
	}
	return tx.Commit()
}

// CountDailyCandles reports how many daily rows the mirror holds for code.
// Used by tests and the diagnostics tool.
func (m *SQLiteMirror) CountDailyCandles(ctx context.Context, code string) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM daily_candles WHERE code = ?`, code).Scan(&n)
	return n, err
}
