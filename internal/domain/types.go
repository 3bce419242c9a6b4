// Package domain defines the core data types shared across the tesfeed
// adapter: candle bars, per-symbol live state, dashboard records and the
// entry/exit signal enums.
package domain

import "time"

// ---------------------------------------------------------------------------
// Candles
// ---------------------------------------------------------------------------

// CandleBar is a single minute candle after key detection and repair.
// Time keeps the broker's original string form ("YYYYMMDDHHMMSS" or similar)
// so archived bars round-trip without reformatting.
type CandleBar struct {
	Time   string  `json:"time" parquet:"time"`
	Open   float64 `json:"open" parquet:"open"`
	High   float64 `json:"high" parquet:"high"`
	Low    float64 `json:"low" parquet:"low"`
	Close  float64 `json:"close" parquet:"close"`
	Volume float64 `json:"volume" parquet:"volume"`
}

// DailyCandle is one day of OHLCV history, used for the daily mirror and the
// five-day volume average.
type DailyCandle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ---------------------------------------------------------------------------
// Symbol state
// ---------------------------------------------------------------------------

// SymbolState is the live per-symbol record the adapter maintains. All
// prices are absolute values; the broker encodes direction with sign
// prefixes that are stripped at ingestion.
type SymbolState struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Sector string `json:"sector"`

	BasePrice float64 `json:"base_price"`
	OpenPrice float64 `json:"open_price"`
	Price     float64 `json:"price"`
	PrevClose float64 `json:"prev_close"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	VolumeAcc float64 `json:"volume_acc"`
	TickCount float64 `json:"tick_count"`

	// Daily reference metrics from the backfill. Avg5d carries a marker
	// value while unknown so score ratios stay finite.
	Avg5d         float64 `json:"avg5d"`
	PrevDayVolume float64 `json:"prev_day_volume"`

	TES  float64 `json:"tes"`
	UCS  float64 `json:"ucs"`
	FRS  float64 `json:"frs"`
	HMS  float64 `json:"hms"`
	BMS  float64 `json:"bms"`
	SLS  float64 `json:"sls"`
	Axes int     `json:"axes"`

	CandleIdx   int  `json:"candle_idx"`
	Placeholder bool `json:"placeholder"`
}

// Avg5dSentinel is the five-day volume average recorded when the history
// fetch for a symbol fails, so it is not retried forever.
const Avg5dSentinel = 1001.0

// ---------------------------------------------------------------------------
// Dashboard
// ---------------------------------------------------------------------------

// Holding is one account position row.
type Holding struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
	CurPrice float64 `json:"cur_price"`
	PnL      float64 `json:"pnl"`
	PnLRate  float64 `json:"pnl_rate"`
}

// OutstandingOrder is one pending (unfilled or partially filled) order row.
type OutstandingOrder struct {
	OrderNo  string  `json:"order_no"`
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Unfilled float64 `json:"unfilled"`
	Status   string  `json:"status"`
}

// DashboardTotals aggregates account-level figures.
type DashboardTotals struct {
	TotalPurchase   float64 `json:"total_purchase"`
	TotalEvaluation float64 `json:"total_evaluation"`
	TotalPnL        float64 `json:"total_pnl"`
	TotalPnLRate    float64 `json:"total_pnl_rate"`
	RealizedPnL     float64 `json:"realized_pnl"`
}

// DashboardSnapshot is a point-in-time view of the trading account.
type DashboardSnapshot struct {
	AccountNo   string             `json:"account_no"`
	FetchedAt   string             `json:"fetched_at"`
	Totals      DashboardTotals    `json:"totals"`
	Holdings    []Holding          `json:"holdings"`
	Outstanding []OutstandingOrder `json:"outstanding"`
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// EntrySignal classifies a symbol's current score profile.
type EntrySignal string

const (
	EntryIdle  EntrySignal = "IDLE"
	EntryWatch EntrySignal = "WATCH"
	EntryEnter EntrySignal = "ENTRY"
)

// ExitSignal classifies an open position against its average price.
type ExitSignal string

const (
	ExitHold     ExitSignal = "HOLD"
	ExitStopLoss ExitSignal = "STOP_LOSS"
	ExitTP1      ExitSignal = "TAKE_PROFIT_1"
	ExitTP2      ExitSignal = "TAKE_PROFIT_2"
)

// ---------------------------------------------------------------------------
// Feed
// ---------------------------------------------------------------------------

// FeedStatus is a point-in-time health view of one websocket stream.
type FeedStatus struct {
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	RecvCount int64     `json:"recv_count"`
	LastRecv  time.Time `json:"last_recv"`
}
