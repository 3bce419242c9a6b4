package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"tesfeed/internal/domain"
)

// Compile-time interface check.
var _ CandleArchive = (*ParquetArchive)(nil)

// ParquetArchive implements CandleArchive using one Parquet file per symbol.
type ParquetArchive struct {
	DataDir string
}

// NewParquetArchive creates a ParquetArchive rooted at the given data
// directory.
func NewParquetArchive(dataDir string) *ParquetArchive {
	return &ParquetArchive{DataDir: dataDir}
}

// candleRecord is the Parquet on-disk schema for minute candles.
type candleRecord struct {
	Time   string  `parquet:"time"`
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume float64 `parquet:"volume"`
}

// SaveCandles writes bars for a symbol, merged with any existing file.
// Layout: <DataDir>/krx/minute/<CODE>.parquet
func (a *ParquetArchive) SaveCandles(_ context.Context, code string, bars []domain.CandleBar) error {
	if len(bars) == 0 {
		return nil
	}

	path := a.candlePath(code)
	existing, _ := readParquetFile[candleRecord](path)

	incoming := make([]candleRecord, 0, len(bars))
	for _, b := range bars {
		incoming = append(incoming, candleRecord(b))
	}

	merged := mergeCandleRecords(existing, incoming)
	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing candles for %s: %w", code, err)
	}
	return nil
}

// LoadCandles reads the archived series for a symbol, oldest first. A
// missing file returns an empty series.
func (a *ParquetArchive) LoadCandles(_ context.Context, code string) ([]domain.CandleBar, error) {
	records, err := readParquetFile[candleRecord](a.candlePath(code))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading candles for %s: %w", code, err)
	}

	bars := make([]domain.CandleBar, 0, len(records))
	for _, r := range records {
		bars = append(bars, domain.CandleBar(r))
	}
	return bars, nil
}

// ListCodes lists all symbols with archived candle files.
func (a *ParquetArchive) ListCodes(_ context.Context) ([]string, error) {
	dir := filepath.Join(a.DataDir, "krx", "minute")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var codes []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasSuffix(name, ".parquet") {
			codes = append(codes, strings.TrimSuffix(name, ".parquet"))
		}
	}
	sort.Strings(codes)
	return codes, nil
}

// candlePath returns the filesystem path for a symbol's candle file.
func (a *ParquetArchive) candlePath(code string) string {
	return filepath.Join(a.DataDir, "krx", "minute", code+".parquet")
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeCandleRecords deduplicates by bar time, preferring incoming records.
// Results are sorted by time.
func mergeCandleRecords(existing, incoming []candleRecord) []candleRecord {
	seen := make(map[string]candleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Time] = r
	}
	for _, r := range incoming {
		seen[r.Time] = r
	}

	merged := make([]candleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Time < merged[j].Time
	})
	return merged
}
