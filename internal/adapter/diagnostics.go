package adapter

import (
	"context"
	"math"

	"tesfeed/internal/domain"
	"tesfeed/internal/schema"
)

// runDiagnostics fetches each candle endpoint once for the first real symbol
// and logs the detected key mapping plus an OHLC spread check. Enabled by
// the diag config switch; the output answers "why are the charts flat"
// without attaching a debugger to a live session.
func (a *Adapter) runDiagnostics(ctx context.Context) {
	a.mu.RLock()
	var code string
	for _, s := range a.stocks {
		if !s.Placeholder {
			code = s.Code
			break
		}
	}
	a.mu.RUnlock()
	if code == "" {
		a.logger.Warn("diagnostics skipped, no symbols loaded")
		return
	}

	stop := a.cal.Now().Format("20060102") + "090000"
	day := a.cal.Now().Format("20060102")

	a.diagnoseEndpoint("minute", code, func() ([]map[string]any, error) {
		return a.client.MinuteCandles(ctx, code, a.tickUnit, stop)
	})
	a.diagnoseEndpoint("daily", code, func() ([]map[string]any, error) {
		return a.client.DailyCandles(ctx, code, day, "20240101")
	})
	a.diagnoseEndpoint("tick", code, func() ([]map[string]any, error) {
		return a.client.TickCandles(ctx, code, 30, stop)
	})
}

// diagnoseEndpoint runs one candle fetch through a throwaway detector so it
// cannot contaminate the adapter's locked keymaps.
func (a *Adapter) diagnoseEndpoint(kind, code string, fetch func() ([]map[string]any, error)) {
	rows, err := fetch()
	if err != nil {
		a.logger.Warn("diagnostics fetch failed", "endpoint", kind, "code", code, "error", err)
		return
	}
	if len(rows) == 0 {
		a.logger.Warn("diagnostics empty response", "endpoint", kind, "code", code)
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
		a.logger.Warn("diagnostics found no detectable keys",
			"endpoint", kind, "code", code, "rows", len(rows))
		return
	}

	spread := 0
	n := min(20, len(bars))
	for _, b := range bars[:n] {
		if math.Abs(b.High-b.Low) > 0.01 {
			spread++
		}
	}

	km := det.KeyMap()
	a.logger.Info("diagnostics",
		"endpoint", kind,
		"code", code,
		"rows", len(rows),
		"parsed", len(bars),
		"spread", spread,
		"time_key", km.Time,
		"open_key", km.Open,
		"high_key", km.High,
		"low_key", km.Low,
		"close_key", km.Close,
		"volume_key", km.Volume)
}
