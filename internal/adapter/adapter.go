// Package adapter composes the market-data pipeline: broker bridge client,
// schema detection, realtime feeds, scoring, dashboard reconciliation and
// persistence. A single Adapter owns all mutable state behind one lock.
package adapter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tesfeed/internal/config"
	"tesfeed/internal/dashboard"
	"tesfeed/internal/domain"
	"tesfeed/internal/feed"
	"tesfeed/internal/kiwoom"
	"tesfeed/internal/schema"
	"tesfeed/internal/store"
	"tesfeed/internal/util"
)

// Mode labels for the maintenance loop.
const (
	ModeBootstrap  = "bootstrap"
	ModeRealtime   = "realtime"
	ModeStressTest = "stress_test"
	ModeClosedIdle = "closed_idle"
)

// marketCalendar answers the market-hours questions the adapter needs.
type marketCalendar interface {
	IsOpen(t time.Time) bool
	Now() time.Time
}

// Adapter is the market-data engine. Create with New, then Run.
type Adapter struct {
	cfg     *config.Config
	client  *kiwoom.Client
	cal     marketCalendar
	recon   *dashboard.Reconciler
	archive store.CandleArchive
	mirror  store.Mirror
	logger  *slog.Logger

	// One detector per candle endpoint; bridges have been seen using
	// different key sets for minute and daily rows.
	minuteKeys *schema.Detector
	dailyKeys  *schema.Detector

	tickFeed *feed.Feed
	execFeed *feed.Feed

	screen   string
	tickUnit int
	maxSyms  int

	mu         sync.RWMutex
	stocks     []*domain.SymbolState
	byCode     map[string]*domain.SymbolState
	conditions []kiwoom.Condition
	candles    map[string][]domain.CandleBar
	candleIdx  map[string]int
	queue      []string
	queued     map[string]bool
	daily      map[string][]domain.DailyCandle
	histDone   bool
	accountNo  string
	mode       string
	subscribed bool

	stress stressState

	timers struct {
		loginRetry     time.Time
		subscribeRetry time.Time
		dashboardPoll  time.Time
		quotePoll      time.Time
		histFetch      time.Time
		heartbeat      time.Time
		stressTick     time.Time
	}
}

// Options carries the optional collaborators. Zero values disable the
// corresponding feature.
type Options struct {
	Archive store.CandleArchive
	Mirror  store.Mirror
	Logger  *slog.Logger
}

// New wires an Adapter from configuration. Feeds are created but not
// started; Run owns all goroutines.
func New(cfg *config.Config, opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	screen := cfg.Bridge.Screen
	if screen == "" {
		screen = "1000"
	}
	tickUnit := cfg.Bridge.TickUnit
	if tickUnit <= 0 {
		tickUnit = 1
	}

	a := &Adapter{
		cfg:        cfg,
		client:     kiwoom.NewClient(cfg.Bridge.BaseURL, cfg.Bridge.APIThrottle, logger),
		cal:        util.NewKRXCalendar(),
		recon:      dashboard.NewReconciler(),
		archive:    opts.Archive,
		mirror:     opts.Mirror,
		logger:     logger,
		minuteKeys: schema.NewDetector(),
		dailyKeys:  schema.NewDetector(),
		screen:     screen,
		tickUnit:   tickUnit,
		maxSyms:    50,
		byCode:     make(map[string]*domain.SymbolState),
		candles:    make(map[string][]domain.CandleBar),
		candleIdx:  make(map[string]int),
		queued:     make(map[string]bool),
		daily:      make(map[string][]domain.DailyCandle),
		mode:       ModeBootstrap,
	}
	a.stress = newStressState(cfg.Stress)

	tickURL := cfg.Bridge.TickWSURL
	if tickURL == "" {
		tickURL = a.client.WSURL("/ws/realtime")
	}
	execURL := cfg.Bridge.ExecWSURL
	if execURL == "" {
		execURL = a.client.WSURL("/ws/execution")
	}

	a.tickFeed = feed.New(feed.Config{
		Name:        "tick",
		URL:         tickURL,
		ReadTimeout: 20 * time.Second,
		Backoff:     1500 * time.Millisecond,
		OnConnect:   a.onTickConnect,
		OnMessage:   a.handleTick,
		Logger:      logger,
	})
	a.execFeed = feed.New(feed.Config{
		Name:        "exec",
		URL:         execURL,
		ReadTimeout: 30 * time.Second,
		Backoff:     2 * time.Second,
		OnMessage:   a.handleExec,
		Logger:      logger,
	})

	return a
}

// Run boots the adapter and blocks in the maintenance loop until ctx is
// cancelled. The feeds run in their own goroutines for the same lifetime.
func (a *Adapter) Run(ctx context.Context) error {
	a.waitServerReady(ctx, 15*time.Second)
	a.ensureLogin(ctx, 12*time.Second)
	a.bootstrapUniverse(ctx)
	if a.cfg.Diag {
		a.runDiagnostics(ctx)
	}

	a.logger.Info("adapter boot",
		"bridge", a.client.BaseURL(),
		"account", a.AccountNo(),
		"symbols", a.SymbolCount())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a.tickFeed.Run(ctx) }()
	go func() { defer wg.Done(); a.execFeed.Run(ctx) }()

	if a.SymbolCount() > 0 {
		a.subscribeRealtime(ctx, true)
	}
	a.refreshDashboard(ctx, true)

	a.maintenanceLoop(ctx)

	wg.Wait()
	a.shutdown()
	return ctx.Err()
}

// shutdown cancels the bridge-side subscription and closes the mirror. Best
// effort; the process is exiting.
func (a *Adapter) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.client.Unsubscribe(ctx, a.screen); err != nil {
		a.logger.Warn("unsubscribe on shutdown", "error", err)
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.logger.Warn("mirror close", "error", err)
		}
	}
	a.logger.Info("adapter shutdown")
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// AccountNo returns the logged-in account, or "" when the session is down.
func (a *Adapter) AccountNo() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accountNo
}

// SymbolCount returns the current universe size, placeholders included.
func (a *Adapter) SymbolCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.stocks)
}

// Mode returns the maintenance loop's current mode label.
func (a *Adapter) Mode() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mode
}

// Dashboard returns the reconciler for subscription and snapshots.
func (a *Adapter) Dashboard() *dashboard.Reconciler {
	return a.recon
}

// Conditions returns the screening formulas loaded at boot.
func (a *Adapter) Conditions() []kiwoom.Condition {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]kiwoom.Condition, len(a.conditions))
	copy(out, a.conditions)
	return out
}

// FeedStatuses reports the health of both websocket streams.
func (a *Adapter) FeedStatuses() []domain.FeedStatus {
	return []domain.FeedStatus{a.tickFeed.Status(), a.execFeed.Status()}
}

// symbol returns the live record for code. Callers must hold a.mu.
func (a *Adapter) symbol(code string) *domain.SymbolState {
	return a.byCode[code]
}
