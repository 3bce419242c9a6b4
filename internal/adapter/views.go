package adapter

import (
	"math"
	"sort"

	"tesfeed/internal/domain"
	"tesfeed/internal/score"
)

// tickRatioScale converts a five-day average volume into the expected tick
// count per session window.
const tickRatioScale = 0.0385

// UniverseRow is one line of the ranked universe grid.
type UniverseRow struct {
	Rank          int
	Code          string
	Name          string
	Price         float64
	Change        float64 // percent off the open
	TradeValue    float64 // turnover in 100M KRW units
	TES           float64
	UCS           float64
	FRS           float64
	TickRatio5d   float64
	TickRatioPrev float64
	VolTrend      float64
	Axes          int
	Signal        domain.EntrySignal
	Sector        string
}

// UniverseGrid returns the universe ranked by FRS, strongest first. The top
// five rank as ENTRY and the next ten as WATCH regardless of thresholds;
// the grid is a ranking view, not a trade trigger.
func (a *Adapter) UniverseGrid() []UniverseRow {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sorted := a.sortedByFRS()
	rows := make([]UniverseRow, 0, len(sorted))
	for i, s := range sorted {
		rank := i + 1
		op := math.Max(1, s.OpenPrice)
		a5 := math.Max(1, s.Avg5d)
		pd := math.Max(1, s.PrevDayVolume)
		tc := math.Max(1, s.TickCount)

		signal := domain.EntryIdle
		switch {
		case rank <= 5:
			signal = domain.EntryEnter
		case rank <= 15:
			signal = domain.EntryWatch
		}

		rows = append(rows, UniverseRow{
			Rank:          rank,
			Code:          s.Code,
			Name:          s.Name,
			Price:         s.Price,
			Change:        (s.Price - op) / op * 100,
			TradeValue:    s.VolumeAcc * s.Price / 1e8,
			TES:           s.TES,
			UCS:           s.UCS,
			FRS:           s.FRS,
			TickRatio5d:   tc / (a5 * tickRatioScale),
			TickRatioPrev: tc / (pd * tickRatioScale),
			VolTrend:      pd / a5,
			Axes:          s.Axes,
			Signal:        signal,
			Sector:        s.Sector,
		})
	}
	return rows
}

// TreeItem is a compact universe entry for tree-style consumers.
type TreeItem struct {
	Code     string
	Name     string
	Change   float64
	TES      float64
	UCS      float64
	FRS      float64
	Axes     int
	IsTarget bool
	Sector   string
}

// UniverseTree returns the universe ranked by FRS with the top five flagged
// as targets.
func (a *Adapter) UniverseTree() []TreeItem {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sorted := a.sortedByFRS()
	items := make([]TreeItem, 0, len(sorted))
	for i, s := range sorted {
		op := math.Max(1, s.OpenPrice)
		items = append(items, TreeItem{
			Code:     s.Code,
			Name:     s.Name,
			Change:   (s.Price - op) / op * 100,
			TES:      s.TES,
			UCS:      s.UCS,
			FRS:      s.FRS,
			Axes:     s.Axes,
			IsTarget: i < 5,
			Sector:   s.Sector,
		})
	}
	return items
}

// StockDetail is the per-symbol drill-down view.
type StockDetail struct {
	Code          string
	Name          string
	Price         float64
	Change        float64
	TradeValue    float64
	TES           float64
	UCS           float64
	FRS           float64
	HMS           float64
	BMS           float64
	SLS           float64
	Avg5d         float64
	PrevDayVolume float64
	TickCount     float64
	TickRatio5d   float64
	TickRatioPrev float64
	VolTrend      float64
	ATR14         float64
	Entry         domain.EntrySignal
}

// GetStockDetail returns the drill-down for one symbol, or false when the
// symbol is not in the universe.
func (a *Adapter) GetStockDetail(code string) (StockDetail, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.symbol(code)
	if s == nil {
		return StockDetail{}, false
	}

	op := math.Max(1, s.OpenPrice)
	a5 := math.Max(1, s.Avg5d)
	pd := math.Max(1, s.PrevDayVolume)
	tc := math.Max(1, s.TickCount)

	// 14-day average true range from the cached daily history.
	atr := 0.0
	if daily := a.daily[code]; len(daily) >= 14 {
		var sum float64
		for _, d := range daily[:14] {
			sum += d.High - d.Low
		}
		atr = sum / 14
	}

	return StockDetail{
		Code:          s.Code,
		Name:          s.Name,
		Price:         s.Price,
		Change:        (s.Price - op) / op * 100,
		TradeValue:    s.VolumeAcc * s.Price / 1e8,
		TES:           s.TES,
		UCS:           s.UCS,
		FRS:           s.FRS,
		HMS:           s.HMS,
		BMS:           s.BMS,
		SLS:           s.SLS,
		Avg5d:         s.Avg5d,
		PrevDayVolume: s.PrevDayVolume,
		TickCount:     s.TickCount,
		TickRatio5d:   tc / (a5 * tickRatioScale),
		TickRatioPrev: tc / (pd * tickRatioScale),
		VolTrend:      pd / a5,
		ATR14:         atr,
		Entry:         score.Entry(s),
	}, true
}

// PositionRow is one account holding joined with live scores.
type PositionRow struct {
	Code      string
	Name      string
	Quantity  float64
	AvgPrice  float64
	CurPrice  float64
	PnLRate   float64
	PnL       float64
	StopPrice float64
	Exit      domain.ExitSignal
	TES       float64
}

// Positions returns the account holdings with per-symbol stop levels and
// exit classification.
func (a *Adapter) Positions() []PositionRow {
	snap := a.recon.Snapshot()

	a.mu.RLock()
	defer a.mu.RUnlock()

	rows := make([]PositionRow, 0, len(snap.Holdings))
	for _, h := range snap.Holdings {
		stop := 0.0
		if h.AvgPrice > 0 {
			stop = h.AvgPrice * 0.97
		}
		tes := 0.0
		if s := a.symbol(h.Code); s != nil {
			tes = s.TES
		}
		rows = append(rows, PositionRow{
			Code:      h.Code,
			Name:      h.Name,
			Quantity:  h.Quantity,
			AvgPrice:  h.AvgPrice,
			CurPrice:  h.CurPrice,
			PnLRate:   h.PnLRate,
			PnL:       h.PnL,
			StopPrice: stop,
			Exit:      score.Exit(h.AvgPrice, h.CurPrice),
			TES:       tes,
		})
	}
	return rows
}

// Pending returns the unfilled orders from the latest dashboard snapshot.
func (a *Adapter) Pending() []domain.OutstandingOrder {
	return a.recon.Snapshot().Outstanding
}

// sortedByFRS returns the stocks ordered strongest first. Callers must hold
// a.mu. The sort copies the slice header so the underlying order is stable
// for other readers.
func (a *Adapter) sortedByFRS() []*domain.SymbolState {
	sorted := make([]*domain.SymbolState, len(a.stocks))
	copy(sorted, a.stocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FRS > sorted[j].FRS
	})
	return sorted
}

// ---------------------------------------------------------------------------
// Candle replay
// ---------------------------------------------------------------------------

// GenerateCandle steps the chart replay for the symbol at stockIdx and
// returns the next bar. Off market hours the cursor rewinds to the last 120
// bars when it runs out; during the session it pins to the newest bar. A
// symbol with no loaded series yields a flat bar at the current price and
// queues a preload.
func (a *Adapter) GenerateCandle(stockIdx int) (open, high, low, close, volume float64, idx int) {
	a.mu.Lock()

	if len(a.stocks) == 0 {
		a.mu.Unlock()
		return 0, 0, 0, 0, 0, 0
	}
	s := a.stocks[max(0, min(stockIdx, len(a.stocks)-1))]
	if s.Placeholder {
		a.mu.Unlock()
		return 0, 0, 0, 0, 0, 0
	}
	code := s.Code

	needFetch := false
	if _, ok := a.candles[code]; !ok {
		a.candles[code] = nil
		a.candleIdx[code] = 0
		needFetch = true
	}
	series := a.candles[code]

	if len(series) == 0 {
		p := s.Price
		s.CandleIdx++
		ci := s.CandleIdx
		a.mu.Unlock()
		if needFetch {
			a.enqueueCandleFetch(code)
		}
		return p, p, p, p, 0, ci
	}

	i := a.candleIdx[code]
	if i >= len(series) {
		if !a.cal.IsOpen(a.cal.Now()) && len(series) > 1 {
			i = max(0, len(series)-min(120, len(series)))
			a.candleIdx[code] = i + 1
		} else {
			i = len(series) - 1
		}
	}
	bar := series[i]
	if i < len(series)-1 {
		a.candleIdx[code] = i + 1
	}

	s.Price = bar.Close
	s.CandleIdx++
	ci := s.CandleIdx
	a.mu.Unlock()

	return bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, ci
}

// Tick is a no-op kept for consumers that drive simulators by polling;
// realtime data arrives through the feeds instead.
func (a *Adapter) Tick() {}
