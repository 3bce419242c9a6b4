package adapter

import (
	"context"
	"math"
	"sort"
	"time"

	"tesfeed/internal/domain"
)

// ---------------------------------------------------------------------------
// Minute candle preload
// ---------------------------------------------------------------------------

// enqueueCandleFetch queues a symbol for minute-candle preload. Duplicate
// requests collapse.
func (a *Adapter) enqueueCandleFetch(code string) {
	if code == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queued[code] {
		return
	}
	a.queued[code] = true
	a.queue = append(a.queue, code)
}

// preloadArchived seeds a symbol's candle cache from the parquet archive so
// off-market replay has bars before the first live fetch. A later live fetch
// overwrites the seeded series.
func (a *Adapter) preloadArchived(ctx context.Context, code string) {
	if a.archive == nil {
		return
	}
	bars, err := a.archive.LoadCandles(ctx, code)
	if err != nil || len(bars) == 0 {
		return
	}

	a.mu.Lock()
	if _, ok := a.candles[code]; ok {
		a.mu.Unlock()
		return
	}
	a.candles[code] = bars
	a.candleIdx[code] = max(0, len(bars)-min(120, len(bars)))
	a.mu.Unlock()

	a.logger.Info("candles preloaded from archive", "code", code, "bars", len(bars))
}

// processCandleFetchOnce services one queued preload. Called from the
// maintenance loop so at most one bridge fetch happens per pass.
func (a *Adapter) processCandleFetchOnce(ctx context.Context) {
	a.mu.Lock()
	var code string
	if len(a.queue) > 0 {
		code = a.queue[0]
		a.queue = a.queue[1:]
		delete(a.queued, code)
	}
	a.mu.Unlock()
	if code == "" {
		return
	}

	bars := a.fetchMinuteCandles(ctx, code)
	if len(bars) == 0 {
		return
	}

	// Flat series are a symptom of a bad key mapping upstream; worth a log.
	spread := false
	for i, b := range bars {
		if i >= 20 {
			break
		}
		if math.Abs(b.High-b.Low) > 0.01 {
			spread = true
			break
		}
	}

	a.mu.Lock()
	a.candles[code] = bars
	a.candleIdx[code] = max(0, len(bars)-min(120, len(bars)))
	a.mu.Unlock()

	a.logger.Info("candles loaded", "code", code, "bars", len(bars), "spread_ok", spread)

	if a.archive != nil {
		if err := a.archive.SaveCandles(ctx, code, bars); err != nil {
			a.logger.Warn("candle archive failed", "code", code, "error", err)
		}
	}
}

// fetchMinuteCandles pulls the recent session's minute candles. When the
// bridge returns a thin series it falls back to a deep-history request so
// the replay engine has something to work with.
func (a *Adapter) fetchMinuteCandles(ctx context.Context, code string) []domain.CandleBar {
	if code == "" || a.isPlaceholderCode(code) {
		return nil
	}

	now := a.cal.Now()
	tradeDate := now
	// Before the open, the last session is the previous day.
	if now.Hour() < 9 {
		tradeDate = now.AddDate(0, 0, -1)
	}
	stop := tradeDate.Format("20060102") + "090000"

	rows, err := a.client.MinuteCandles(ctx, code, a.tickUnit, stop)
	if err != nil {
		a.logger.Warn("minute candles failed", "code", code, "error", err)
		rows = nil
	}
	bars := a.parseMinuteRows(rows)

	if len(bars) < a.cfg.History.MinRows {
		deep, err := a.client.MinuteCandles(ctx, code, a.tickUnit, a.cfg.History.StopTime)
		if err == nil {
			if deepBars := a.parseMinuteRows(deep); len(deepBars) > len(bars) {
				bars = deepBars
			}
		}
	}
	return bars
}

// parseMinuteRows converts raw bridge rows into repaired bars, oldest first.
// The first healthy row locks the minute keymap.
func (a *Adapter) parseMinuteRows(rows []map[string]any) []domain.CandleBar {
	out := make([]domain.CandleBar, 0, len(rows))
	for _, row := range rows {
		if !a.minuteKeys.Locked() && !a.minuteKeys.Detect(row) {
			continue
		}
		if bar, ok := a.minuteKeys.Parse(row); ok {
			out = append(out, bar)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func (a *Adapter) isPlaceholderCode(code string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := a.byCode[code]
	return s != nil && s.Placeholder
}

// ---------------------------------------------------------------------------
// Historical metrics backfill
// ---------------------------------------------------------------------------

// computeHistoricalMetricsOne advances the daily-history backfill by one
// symbol. Pending symbols carry the avg5dPending marker; a symbol whose
// history cannot be fetched gets the sentinel so it is not retried forever.
func (a *Adapter) computeHistoricalMetricsOne(ctx context.Context) {
	a.mu.Lock()
	var code string
	for _, s := range a.stocks {
		if !s.Placeholder && s.Avg5d == avg5dPending {
			code = s.Code
			break
		}
	}
	if code == "" {
		a.histDone = true
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	day := a.cal.Now().Format("20060102")
	rows, err := a.client.DailyCandles(ctx, code, day, "20240101")
	if err != nil {
		a.markHistoryFailed(code)
		return
	}

	parsed := a.parseDailyRows(rows)
	if len(parsed) < 2 {
		a.markHistoryFailed(code)
		return
	}

	// Newest first.
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Date > parsed[j].Date })

	prevVol := parsed[0].Volume
	if prevVol <= 0 {
		prevVol = parsed[1].Volume
	}
	n := min(5, len(parsed))
	var sum float64
	for _, c := range parsed[:n] {
		sum += c.Volume
	}
	avg5d := sum / float64(n)
	prevClose := parsed[1].Close

	a.mu.Lock()
	if s := a.symbol(code); s != nil {
		s.Avg5d = math.Max(1, avg5d)
		s.PrevDayVolume = math.Max(1, prevVol)
		s.PrevClose = prevClose
	}
	a.daily[code] = parsed
	a.mu.Unlock()

	a.mirrorDaily(ctx, code, parsed)
}

func (a *Adapter) markHistoryFailed(code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s := a.symbol(code); s != nil {
		s.Avg5d = domain.Avg5dSentinel
	}
}

// parseDailyRows converts raw daily rows using the daily keymap.
func (a *Adapter) parseDailyRows(rows []map[string]any) []domain.DailyCandle {
	out := make([]domain.DailyCandle, 0, len(rows))
	for _, row := range rows {
		if !a.dailyKeys.Locked() && !a.dailyKeys.Detect(row) {
			continue
		}
		bar, ok := a.dailyKeys.Parse(row)
		if !ok || bar.Close <= 0 {
			continue
		}
		out = append(out, domain.DailyCandle{
			Date:   bar.Time,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		})
	}
	return out
}

// mirrorDaily pushes a symbol's reference data into the relational mirror.
// One-way and best effort.
func (a *Adapter) mirrorDaily(ctx context.Context, code string, parsed []domain.DailyCandle) {
	if a.mirror == nil {
		return
	}

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.mirror.UpsertDailyCandles(mctx, code, parsed); err != nil {
		a.logger.Warn("mirror daily failed", "code", code, "error", err)
	}

	a.mu.RLock()
	var snap []domain.SymbolState
	if s := a.symbol(code); s != nil {
		snap = append(snap, *s)
	}
	a.mu.RUnlock()

	if err := a.mirror.UpsertSymbols(mctx, snap); err != nil {
		a.logger.Warn("mirror symbols failed", "code", code, "error", err)
	}
}
