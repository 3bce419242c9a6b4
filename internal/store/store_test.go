package store

import (
	"context"
	"path/filepath"
	"testing"

	"tesfeed/internal/domain"
)

func TestParquetArchiveRoundTrip(t *testing.T) {
	a := NewParquetArchive(t.TempDir())
	ctx := context.Background()

	bars := []domain.CandleBar{
		{Time: "20250602090100", Open: 100, High: 110, Low: 95, Close: 105, Volume: 5000},
		{Time: "20250602090200", Open: 105, High: 112, Low: 104, Close: 111, Volume: 4200},
	}
	if err := a.SaveCandles(ctx, "005930", bars); err != nil {
		t.Fatalf("SaveCandles: %v", err)
	}

	got, err := a.LoadCandles(ctx, "005930")
	if err != nil {
		t.Fatalf("LoadCandles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d bars, want 2", len(got))
	}
	if got[0] != bars[0] || got[1] != bars[1] {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestParquetArchiveMergesOnSave(t *testing.T) {
	a := NewParquetArchive(t.TempDir())
	ctx := context.Background()

	first := []domain.CandleBar{
		{Time: "20250602090100", Open: 100, High: 110, Low: 95, Close: 105, Volume: 5000},
		{Time: "20250602090200", Open: 105, High: 112, Low: 104, Close: 111, Volume: 4200},
	}
	if err := a.SaveCandles(ctx, "005930", first); err != nil {
		t.Fatalf("SaveCandles: %v", err)
	}

	// Overlapping save: one revised bar, one new bar, out of order.
	second := []domain.CandleBar{
		{Time: "20250602090300", Open: 111, High: 115, Low: 110, Close: 114, Volume: 3100},
		{Time: "20250602090200", Open: 105, High: 113, Low: 104, Close: 112, Volume: 4500},
	}
	if err := a.SaveCandles(ctx, "005930", second); err != nil {
		t.Fatalf("SaveCandles: %v", err)
	}

	got, err := a.LoadCandles(ctx, "005930")
	if err != nil {
		t.Fatalf("LoadCandles: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("loaded %d bars, want 3 after merge", len(got))
	}
	// Sorted by time, revised bar wins.
	if got[1].Close != 112 || got[1].Volume != 4500 {
		t.Errorf("revised bar not preferred: %+v", got[1])
	}
	if got[2].Time != "20250602090300" {
		t.Errorf("bars not sorted: %+v", got)
	}
}

func TestParquetArchiveMissingFile(t *testing.T) {
	a := NewParquetArchive(t.TempDir())

	got, err := a.LoadCandles(context.Background(), "999999")
	if err != nil {
		t.Fatalf("LoadCandles on missing file: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bars from missing file", len(got))
	}
}

func TestParquetArchiveListCodes(t *testing.T) {
	a := NewParquetArchive(t.TempDir())
	ctx := context.Background()

	bar := []domain.CandleBar{{Time: "20250602090100", Open: 1, High: 1, Low: 1, Close: 1}}
	for _, code := range []string{"068270", "005930", "000660"} {
		if err := a.SaveCandles(ctx, code, bar); err != nil {
			t.Fatalf("SaveCandles %s: %v", code, err)
		}
	}

	codes, err := a.ListCodes(ctx)
	if err != nil {
		t.Fatalf("ListCodes: %v", err)
	}
	want := []string{"000660", "005930", "068270"}
	if len(codes) != len(want) {
		t.Fatalf("codes = %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("codes = %v, want sorted %v", codes, want)
			break
		}
	}
}

func TestSQLiteMirrorUpserts(t *testing.T) {
	m, err := NewSQLiteMirror(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("NewSQLiteMirror: %v", err)
	}
	defer m.Close()
	ctx := context.Background()

	symbols := []domain.SymbolState{
		{Code: "005930", Name: "삼성전자", Sector: "UNKNOWN", BasePrice: 70000, Avg5d: 12345678},
		{Code: "000001", Name: "대기중", Placeholder: true},
	}
	if err := m.UpsertSymbols(ctx, symbols); err != nil {
		t.Fatalf("UpsertSymbols: %v", err)
	}
	// Re-upsert with changed fields must not error (conflict path).
	symbols[0].BasePrice = 71000
	if err := m.UpsertSymbols(ctx, symbols); err != nil {
		t.Fatalf("UpsertSymbols (update): %v", err)
	}

	candles := []domain.DailyCandle{
		{Date: "20250530", Open: 100, High: 110, Low: 95, Close: 105, Volume: 5000},
		{Date: "20250602", Open: 105, High: 112, Low: 104, Close: 111, Volume: 4200},
	}
	if err := m.UpsertDailyCandles(ctx, "005930", candles); err != nil {
		t.Fatalf("UpsertDailyCandles: %v", err)
	}
	if err := m.UpsertDailyCandles(ctx, "005930", candles); err != nil {
		t.Fatalf("UpsertDailyCandles (repeat): %v", err)
	}

	n, err := m.CountDailyCandles(ctx, "005930")
	if err != nil {
		t.Fatalf("CountDailyCandles: %v", err)
	}
	if n != 2 {
		t.Errorf("daily rows = %d, want 2 (upsert must not duplicate)", n)
	}
}

func TestSQLiteMirrorEmptyBatches(t *testing.T) {
	m, err := NewSQLiteMirror(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("NewSQLiteMirror: %v", err)
	}
	defer m.Close()
	ctx := context.Background()

	if err := m.UpsertSymbols(ctx, nil); err != nil {
		t.Errorf("UpsertSymbols(nil): %v", err)
	}
	if err := m.UpsertDailyCandles(ctx, "005930", nil); err != nil {
		t.Errorf("UpsertDailyCandles(nil): %v", err)
	}
	if err := m.UpsertDailyCandles(ctx, "", []domain.DailyCandle{{Date: "20250602"}}); err != nil {
		t.Errorf("UpsertDailyCandles(no code): %v", err)
	}
}
