package store

import (
	"context"
	"database/sql"
	"fmt"

	"tesfeed/internal/domain"

	_ "github.com/lib/pq" // PostgreSQL driver.
)

// Compile-time interface check.
var _ Mirror = (*PostgresMirror)(nil)

// PostgresMirror implements Mirror backed by a PostgreSQL database.
type PostgresMirror struct {
	db *sql.DB
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS symbols (
	code             TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	sector           TEXT NOT NULL DEFAULT '',
	base_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	prev_close       DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg5d_volume     DOUBLE PRECISION NOT NULL DEFAULT 0,
	prev_day_volume  DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS daily_candles (
	code    TEXT NOT NULL,
	date    TEXT NOT NULL,
	open    DOUBLE PRECISION NOT NULL,
	high    DOUBLE PRECISION NOT NULL,
	low     DOUBLE PRECISION NOT NULL,
	close   DOUBLE PRECISION NOT NULL,
	volume  DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (code, date)
);
`

// NewPostgresMirror connects to PostgreSQL with the given DSN and ensures
// the mirror tables exist.
func NewPostgresMirror(dsn string) (*PostgresMirror, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating mirror schema: %w", err)
	}
	return &PostgresMirror{db: db}, nil
}

// Close closes the underlying database connection.
func (m *PostgresMirror) Close() error {
	return m.db.Close()
}

// UpsertSymbols writes symbol reference rows, replacing on conflict.
func (m *PostgresMirror) UpsertSymbols(ctx context.Context, symbols []domain.SymbolState) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			sector = EXCLUDED.sector,
			base_price = EXCLUDED.base_price,
			prev_close = EXCLUDED.prev_close,
			avg5d_volume = EXCLUDED.avg5d_volume,
			prev_day_volume = EXCLUDED.prev_day_volume,
			updated_at = EXCLUDED.updated_at`)
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
func (m *PostgresMirror) UpsertDailyCandles(ctx context.Context, code string, candles []domain.DailyCandle) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume`)
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
