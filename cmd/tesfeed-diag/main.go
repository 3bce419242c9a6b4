// One-shot tool: probe the bridge's candle endpoints for a symbol, print
// the detected key mapping and sanity-check the OHLC spread. Useful when a
// new bridge build renames fields and charts go flat.
//
// Usage:
//
//	go run cmd/tesfeed-diag/main.go 005930 [STOP_TIME]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"tesfeed/internal/config"
	"tesfeed/internal/domain"
	"tesfeed/internal/kiwoom"
	"tesfeed/internal/schema"
	"tesfeed/internal/util"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: tesfeed-diag CODE [STOP_TIME]")
		os.Exit(1)
	}
	code := kiwoom.NormalizeCode(os.Args[1])

	cfg := config.Default()
	cal := util.NewKRXCalendar()
	stop := cal.SessionStop(cal.Now())
	if len(os.Args) > 2 {
		stop = os.Args[2]
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client := kiwoom.NewClient(cfg.Bridge.BaseURL, cfg.Bridge.APIThrottle, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Printf("=== %s via %s (stop=%s) ===\n", code, client.BaseURL(), stop)

	row, err := client.GetSymbol(ctx, code)
	if err != nil {
		fmt.Printf("\nsymbol info: %v\n", err)
	} else {
		fmt.Printf("\nsymbol info: %d fields\n", len(row))
		for k, v := range row {
			fmt.Printf("  %-20s %v\n", k, v)
		}
	}

	probe(ctx, "minute", func() ([]map[string]any, error) {
		return client.MinuteCandles(ctx, code, 1, stop)
	})
	probe(ctx, "daily", func() ([]map[string]any, error) {
		day := cal.Now().Format("20060102")
		return client.DailyCandles(ctx, code, day, "20240101")
	})
	probe(ctx, "tick", func() ([]map[string]any, error) {
		return client.TickCandles(ctx, code, 30, stop)
	})
}

func probe(ctx context.Context, name string, fetch func() ([]map[string]any, error)) {
	fmt.Printf("\n--- %s candles ---\n", name)
	var rows []map[string]any
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		var err error
		rows, err = fetch()
		return err
	})
	if err != nil {
		fmt.Printf("  error: %v\n", err)
		return
	}
	if len(rows) == 0 {
		fmt.Println("  no rows")
		return
	}

	det := schema.NewDetector()
	var bars []domain.CandleBar
	for _, row := range rows {
		if !det.Locked() && !det.Detect(row) {
			continue
		}
		if bar, ok := det.Parse(row); ok {
			bars = append(bars, bar)
		}
	}
	if !det.Locked() {
		fmt.Printf("  %d rows but no detectable keys; sample: %v\n", len(rows), rows[0])
		return
	}

	km := det.KeyMap()
	fmt.Printf("  keymap: time=%q open=%q high=%q low=%q close=%q volume=%q\n",
		km.Time, km.Open, km.High, km.Low, km.Close, km.Volume)
	fmt.Printf("  rows=%d parsed=%d\n", len(rows), len(bars))
	if len(bars) == 0 {
		return
	}

	// Flat bars across the head of the series usually mean open/high/low
	// fell back to close during repair.
	spread := 0
	n := min(20, len(bars))
	for _, b := range bars[:n] {
		if math.Abs(b.High-b.Low) > 0.01 {
			spread++
		}
	}
	fmt.Printf("  spread: %d/%d of first bars have range\n", spread, n)

	first, last := bars[0], bars[len(bars)-1]
	fmt.Printf("  first: %s o=%.0f h=%.0f l=%.0f c=%.0f v=%.0f\n",
		first.Time, first.Open, first.High, first.Low, first.Close, first.Volume)
	fmt.Printf("  last:  %s o=%.0f h=%.0f l=%.0f c=%.0f v=%.0f\n",
		last.Time, last.Open, last.High, last.Low, last.Close, last.Volume)
}
