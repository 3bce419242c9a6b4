package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tesfeed/internal/kiwoom"
	"tesfeed/internal/schema"
	"tesfeed/internal/score"
)

// Realtime tick field aliases.
var (
	rtPriceKeys = []string{"current_price", "price", "현재가"}
	rtOpenKeys  = []string{"open", "시가"}
	rtHighKeys  = []string{"high", "고가"}
	rtLowKeys   = []string{"low", "저가"}
	rtVolKeys   = []string{"cum_volume", "volume", "거래량"}
	rtRateKeys  = []string{"rate", "change_rate"}
	rtIntenKeys = []string{"intensity"}
)

type tickEvent struct {
	Code string         `json:"code"`
	Data map[string]any `json:"data"`
}

// handleTick applies one realtime tick frame to the universe. Prices arrive
// signed (direction encoding) and are stored as absolute values.
func (a *Adapter) handleTick(raw []byte) {
	var evt tickEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return
	}
	code := kiwoom.NormalizeCode(evt.Code)
	if code == "" || evt.Data == nil {
		return
	}

	price := absField(evt.Data, rtPriceKeys)
	op := absField(evt.Data, rtOpenKeys)
	hi := absField(evt.Data, rtHighKeys)
	lo := absField(evt.Data, rtLowKeys)
	vol := absField(evt.Data, rtVolKeys)
	rate := signedField(evt.Data, rtRateKeys)
	inten := absField(evt.Data, rtIntenKeys)

	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.symbol(code)
	if s == nil {
		return
	}
	if price > 0 {
		s.Price = price
	}
	if op > 0 {
		s.OpenPrice = op
	}
	if hi > 0 && hi > s.High {
		s.High = hi
	}
	if lo > 0 {
		if s.Low > 0 {
			if lo < s.Low {
				s.Low = lo
			}
		} else {
			s.Low = lo
		}
	}
	if vol > 0 {
		s.VolumeAcc = vol
	}
	score.Recompute(s, rate, inten)
	s.TickCount++
}

type execEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// handleExec applies one execution-stream frame. Dashboard frames carry a
// full payload; order and balance frames only announce that the account
// changed, so those trigger a forced refresh.
func (a *Adapter) handleExec(raw []byte) {
	var evt execEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return
	}
	switch strings.ToLower(evt.Type) {
	case "dashboard":
		if evt.Data != nil {
			a.recon.Apply(kiwoom.ParseDashboard(evt.Data))
		}
	case "order", "balance":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.refreshDashboard(ctx, true)
	}
}

// applyQuote folds a polled symbol row into the live state. A changed price
// counts as a tick so quote polling keeps scores moving off market hours.
func (a *Adapter) applyQuote(code string, row map[string]any) {
	price := absField(row, append(rtPriceKeys, "last_price"))
	op := absField(row, rtOpenKeys)
	vol := absField(row, rtVolKeys)

	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.symbol(code)
	if s == nil {
		return
	}
	prev := s.Price
	if price > 0 {
		s.Price = price
	}
	if op > 0 {
		s.OpenPrice = op
	}
	if vol > 0 {
		s.VolumeAcc = vol
	}
	if price > 0 && price != prev {
		s.TickCount++
		score.Recompute(s, 0, 0)
	}
}

// ---------------------------------------------------------------------------
// Field helpers
// ---------------------------------------------------------------------------

func absField(row map[string]any, keys []string) float64 {
	v, ok := schema.FirstValid(row, keys)
	if !ok {
		return 0
	}
	return schema.AbsNum(v)
}

func signedField(row map[string]any, keys []string) float64 {
	v, ok := schema.FirstValid(row, keys)
	if !ok {
		return 0
	}
	return schema.SignedNum(v)
}

func strVal(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}
