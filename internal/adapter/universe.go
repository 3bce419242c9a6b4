package adapter

import (
	"context"
	"time"

	"tesfeed/internal/domain"
	"tesfeed/internal/kiwoom"
	"tesfeed/internal/schema"
)

// avg5dPending marks symbols the historical backfill has not reached yet.
// The backfill replaces it with real figures, or with the sentinel when the
// bridge has no usable history.
const avg5dPending = 1000.0

// placeholderRows is the minimum universe size. Consumers index into the
// grid without bounds checks, so an empty universe gets inert filler rows.
const placeholderRows = 5

// ---------------------------------------------------------------------------
// Boot: session
// ---------------------------------------------------------------------------

func (a *Adapter) waitServerReady(ctx context.Context, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		if env, err := a.client.Get(ctx, "/api/status", nil); err == nil && env.Success {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(400 * time.Millisecond):
		}
	}
	a.logger.Warn("bridge not ready", "base_url", a.client.BaseURL())
}

// isLoggedIn polls the session state and caches the account number.
func (a *Adapter) isLoggedIn(ctx context.Context) bool {
	st, err := a.client.GetStatus(ctx)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil && st.IsLoggedIn {
		a.accountNo = st.AccountNo
		return true
	}
	a.accountNo = ""
	return false
}

// ensureLogin requests the bridge login flow and waits for the session to
// come up, polling every 400ms until maxWait.
func (a *Adapter) ensureLogin(ctx context.Context, maxWait time.Duration) bool {
	if a.isLoggedIn(ctx) {
		return true
	}
	if err := a.client.RequestLogin(ctx); err != nil {
		a.logger.Warn("login request failed", "error", err)
	}

	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(400 * time.Millisecond):
		}
		if a.isLoggedIn(ctx) {
			a.logger.Info("login ok", "account", a.AccountNo())
			return true
		}
	}
	a.logger.Warn("login not ready")
	return false
}

// ---------------------------------------------------------------------------
// Boot: universe
// ---------------------------------------------------------------------------

func (a *Adapter) bootstrapUniverse(ctx context.Context) {
	a.loadConditionList(ctx)

	switch {
	case len(a.cfg.Bridge.Codes) > 0:
		codes := make([]string, len(a.cfg.Bridge.Codes))
		for i, c := range a.cfg.Bridge.Codes {
			codes[i] = kiwoom.NormalizeCode(c)
		}
		a.logger.Info("universe from configured codes", "symbols", len(codes))
		a.loadStocksByCodes(ctx, codes, nil)
	case a.cfg.Bridge.ConditionIndex >= 0:
		idx := a.cfg.Bridge.ConditionIndex
		if cond, ok := a.findConditionByIndex(idx); ok {
			a.logger.Info("auto-run condition", "name", cond.Name, "index", cond.Index)
			a.ExecuteCondition(ctx, cond.Index, cond.Name)
		} else {
			a.logger.Warn("configured condition index not found", "index", idx)
		}
	case a.cfg.Bridge.Condition != "":
		name := a.cfg.Bridge.Condition
		if cond, ok := a.findConditionByName(name); ok {
			a.logger.Info("auto-run condition", "name", cond.Name, "index", cond.Index)
			a.ExecuteCondition(ctx, cond.Index, cond.Name)
		} else {
			a.logger.Warn("configured condition not found", "name", name)
		}
	}

	a.insertPlaceholders()
}

func (a *Adapter) loadConditionList(ctx context.Context) {
	conds, err := a.client.ListConditions(ctx)
	if err != nil {
		a.logger.Warn("condition list failed", "error", err)
		return
	}
	a.mu.Lock()
	a.conditions = conds
	a.mu.Unlock()
	for _, c := range conds {
		a.logger.Info("condition", "index", c.Index, "name", c.Name)
	}
}

func (a *Adapter) findConditionByName(name string) (kiwoom.Condition, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.conditions {
		if c.Name == name {
			return c, true
		}
	}
	return kiwoom.Condition{}, false
}

func (a *Adapter) findConditionByIndex(index int) (kiwoom.Condition, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.conditions {
		if c.Index == index {
			return c, true
		}
	}
	return kiwoom.Condition{}, false
}

// ExecuteCondition runs one screening formula and rebuilds the universe
// from its matches. A search that yields no symbols leaves the current
// universe untouched and returns false.
func (a *Adapter) ExecuteCondition(ctx context.Context, index int, name string) bool {
	res, err := a.client.SearchCondition(ctx, index, name)
	if err != nil {
		a.logger.Warn("condition search failed", "name", name, "error", err)
		return false
	}
	if len(res.Codes) == 0 {
		a.logger.Warn("condition matched no symbols", "name", name)
		return false
	}

	a.logger.Info("condition matched", "name", name, "symbols", len(res.Codes))
	a.loadStocksByCodes(ctx, res.Codes, res.Names)

	if a.tickFeed.Connected() {
		a.subscribeRealtime(ctx, true)
	}
	return true
}

// loadStocksByCodes replaces the universe with the given codes, resetting
// every per-symbol cache so stale series cannot leak across universes.
func (a *Adapter) loadStocksByCodes(ctx context.Context, codes []string, names map[string]string) {
	// Dedupe preserving order, cap at the universe limit.
	uniq := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		uniq = append(uniq, c)
	}
	if len(uniq) > a.maxSyms {
		uniq = uniq[:a.maxSyms]
	}

	a.logger.Info("loading universe", "symbols", len(uniq))

	stocks := make([]*domain.SymbolState, 0, len(uniq))
	for _, code := range uniq {
		name := names[code]
		base := 10000.0

		row, err := a.client.GetSymbol(ctx, code)
		if err == nil {
			if name == "" {
				if v, ok := schema.FirstValid(row, []string{"name", "종목명"}); ok {
					name = strVal(v)
				}
			}
			if v, ok := schema.FirstValid(row, []string{"last_price", "current_price"}); ok {
				if last := schema.AbsNum(v); last > 0 {
					base = last
				}
			}
		}
		if name == "" {
			name = code
		}

		stocks = append(stocks, &domain.SymbolState{
			Code:          code,
			Name:          name,
			Sector:        "UNKNOWN",
			BasePrice:     base,
			OpenPrice:     base,
			Price:         base,
			PrevClose:     base,
			High:          base,
			Low:           base,
			Avg5d:         avg5dPending,
			PrevDayVolume: avg5dPending,
		})
	}

	a.mu.Lock()
	a.stocks = stocks
	a.byCode = make(map[string]*domain.SymbolState, len(stocks))
	for _, s := range stocks {
		a.byCode[s.Code] = s
	}
	a.candles = make(map[string][]domain.CandleBar)
	a.candleIdx = make(map[string]int)
	a.daily = make(map[string][]domain.DailyCandle)
	a.queue = nil
	a.queued = make(map[string]bool)
	a.histDone = false
	a.stress.resetReplay()
	codesToFetch := make([]string, len(stocks))
	for i, s := range stocks {
		codesToFetch[i] = s.Code
	}
	a.mu.Unlock()

	for _, code := range codesToFetch {
		a.preloadArchived(ctx, code)
		a.enqueueCandleFetch(code)
	}
}

// insertPlaceholders pads the universe to the minimum row count with inert
// filler symbols.
func (a *Adapter) insertPlaceholders() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.stocks); i < placeholderRows; i++ {
		code := "00000" + string(rune('0'+i))
		s := &domain.SymbolState{
			Code:          code,
			Name:          "대기중",
			Sector:        "NONE",
			BasePrice:     1,
			OpenPrice:     1,
			Price:         1,
			PrevClose:     1,
			High:          1,
			Low:           1,
			Avg5d:         1,
			PrevDayVolume: 1,
			Placeholder:   true,
		}
		a.stocks = append(a.stocks, s)
		a.byCode[code] = s
	}
}

// ---------------------------------------------------------------------------
// Subscription and refresh
// ---------------------------------------------------------------------------

func (a *Adapter) onTickConnect(ctx context.Context) {
	a.subscribeRealtime(ctx, true)
}

// subscribeRealtime registers the universe for tick pushes. Requires a live
// session; an already-active subscription is kept unless force is set.
func (a *Adapter) subscribeRealtime(ctx context.Context, force bool) bool {
	a.mu.RLock()
	account := a.accountNo
	subscribed := a.subscribed
	codes := make([]string, 0, len(a.stocks))
	for _, s := range a.stocks {
		if !s.Placeholder {
			codes = append(codes, s.Code)
		}
	}
	a.mu.RUnlock()

	if account == "" || len(codes) == 0 {
		a.setSubscribed(false)
		return false
	}
	if subscribed && !force {
		return true
	}

	err := a.client.Subscribe(ctx, codes, a.screen)
	a.setSubscribed(err == nil)
	if err != nil {
		a.logger.Warn("subscribe failed", "error", err)
		return false
	}
	a.logger.Info("realtime subscribed", "symbols", len(codes))
	return true
}

func (a *Adapter) setSubscribed(v bool) {
	a.mu.Lock()
	a.subscribed = v
	a.mu.Unlock()
}

// refreshQuotes polls the symbol endpoint for the first symbols of the
// universe, nudging scores for any symbol whose price moved between polls.
// Capped so a closed-market poll cycle stays within the API budget.
func (a *Adapter) refreshQuotes(ctx context.Context) {
	a.mu.RLock()
	codes := make([]string, 0, len(a.stocks))
	for _, s := range a.stocks {
		if !s.Placeholder {
			codes = append(codes, s.Code)
		}
	}
	a.mu.RUnlock()

	if len(codes) > 20 {
		codes = codes[:20]
	}

	for _, code := range codes {
		row, err := a.client.GetSymbol(ctx, code)
		if err != nil {
			continue
		}
		a.applyQuote(code, row)
	}
}

// refreshDashboard polls the dashboard and applies it to the reconciler.
// A session-lost response clears the cached account so the maintenance loop
// re-runs the login flow.
func (a *Adapter) refreshDashboard(ctx context.Context, force bool) {
	raw, env, err := a.client.FetchDashboard(ctx, force)
	if err != nil {
		if env != nil && env.SessionLost() {
			a.mu.Lock()
			a.accountNo = ""
			a.mu.Unlock()
			a.logger.Warn("broker session lost")
		}
		return
	}
	a.recon.Apply(kiwoom.ParseDashboard(raw))
}
