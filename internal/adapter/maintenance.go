package adapter

import (
	"context"
	"fmt"
	"time"
)

// Maintenance cadences. All periodic work funnels through one loop so the
// bridge never sees concurrent polls from this process.
const (
	loopInterval        = 50 * time.Millisecond
	loginRetryEvery     = 3 * time.Second
	subscribeRetryOpen  = 4 * time.Second
	subscribeRetryShut  = 30 * time.Second
	tickStaleAfter      = 15 * time.Second
	dashboardPollEvery  = 5 * time.Second
	quotePollOpen       = 2 * time.Second
	quotePollShut       = 30 * time.Second
	histFetchEvery      = time.Second
	heartbeatEvery      = 5 * time.Second
)

// maintenanceLoop is the adapter's single periodic worker. Each pass does at
// most one unit of each kind of work; cadence state lives in a.timers.
func (a *Adapter) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		a.maintenancePass(ctx, time.Now())
	}
}

// maintenancePass runs one iteration of the loop body. Split out for tests.
func (a *Adapter) maintenancePass(ctx context.Context, now time.Time) {
	marketOpen := a.cal.IsOpen(now)
	stressOn := a.StressActive(marketOpen)

	a.mu.Lock()
	switch {
	case marketOpen:
		a.mode = ModeRealtime
	case stressOn:
		a.mode = ModeStressTest
	default:
		a.mode = ModeClosedIdle
	}
	account := a.accountNo
	subscribed := a.subscribed
	histDone := a.histDone
	a.mu.Unlock()

	if account == "" && now.Sub(a.timers.loginRetry) > loginRetryEvery {
		a.ensureLogin(ctx, 2*time.Second)
		a.timers.loginRetry = now
	}

	retryEvery := subscribeRetryShut
	if marketOpen {
		retryEvery = subscribeRetryOpen
	}
	if account != "" && now.Sub(a.timers.subscribeRetry) > retryEvery {
		last := a.tickFeed.LastRecv()
		stale := last.IsZero() || now.Sub(last) > tickStaleAfter
		if a.tickFeed.Connected() && (!subscribed || (marketOpen && stale)) {
			a.subscribeRealtime(ctx, true)
		}
		a.timers.subscribeRetry = now
	}

	if now.Sub(a.timers.dashboardPoll) > dashboardPollEvery {
		a.refreshDashboard(ctx, false)
		a.timers.dashboardPoll = now
	}

	quoteEvery := quotePollShut
	if marketOpen {
		quoteEvery = quotePollOpen
	}
	if now.Sub(a.timers.quotePoll) > quoteEvery {
		a.refreshQuotes(ctx)
		a.timers.quotePoll = now
	}

	if !histDone && now.Sub(a.timers.histFetch) > histFetchEvery {
		a.computeHistoricalMetricsOne(ctx)
		a.timers.histFetch = now
	}

	a.processCandleFetchOnce(ctx)

	if stressOn && !marketOpen && now.Sub(a.timers.stressTick) >= a.stressInterval() {
		a.runStressTick()
		a.timers.stressTick = now
	}

	if now.Sub(a.timers.heartbeat) > heartbeatEvery {
		a.logHeartbeat(now)
		a.timers.heartbeat = now
	}
}

// logHeartbeat emits a one-line health summary.
func (a *Adapter) logHeartbeat(now time.Time) {
	tick := a.tickFeed.Status()

	a.mu.RLock()
	mode := a.mode
	total := len(a.stocks)
	loaded := 0
	for _, series := range a.candles {
		if len(series) > 0 {
			loaded++
		}
	}
	pending := len(a.queue)
	sample := "-"
	if len(a.stocks) > 0 {
		s := a.stocks[0]
		sample = fmt.Sprintf("%s:%.0f t=%d", s.Code, s.Price, int64(s.TickCount))
	}
	cycle := a.stress.cycle
	a.mu.RUnlock()

	lastSec := int64(-1)
	if !tick.LastRecv.IsZero() {
		lastSec = int64(now.Sub(tick.LastRecv).Seconds())
	}

	a.logger.Info("heartbeat",
		"mode", mode,
		"tick_connected", tick.Connected,
		"recv", tick.RecvCount,
		"last_recv_sec", lastSec,
		"candles_loaded", loaded,
		"candles_total", total,
		"fetch_queue", pending,
		"stress_cycle", cycle,
		"sample", sample)
}
