// Package score implements the momentum scoring model. Each tick feeds a
// handful of bounded scores derived from price change, traded volume and
// execution intensity; the composite scores drive entry/exit classification.
package score

import (
	"math"

	"tesfeed/internal/domain"
)

// Recompute updates every score on s from its live fields plus the optional
// realtime extras. A zero rate is rederived from open and current price when
// both are known. Intensity is the broker's execution-strength figure.
func Recompute(s *domain.SymbolState, rate, intensity float64) {
	p := math.Abs(s.Price)
	op := math.Abs(s.OpenPrice)
	if rate == 0 && op > 0 && p > 0 {
		rate = (p - op) / op * 100
	}
	absRate := math.Abs(rate)

	vol := math.Abs(s.VolumeAcc)
	a5 := math.Max(1, math.Abs(s.Avg5d))
	tc := math.Max(1, math.Abs(s.TickCount))
	volRatio := vol / a5
	tickRatio := tc / (a5 * 0.0385)

	tes := clamp(0, 3, absRate/2.5+intensity/200+math.Min(tickRatio, 1)*0.5)
	hms := clamp(0, 1, (rate/10+0.5)*0.6+math.Min(volRatio, 1)*0.4)
	bms := clamp(0, 1, absRate/5*0.5+math.Min(intensity/120, 1)*0.5)
	sls := clamp(0, 1, math.Min(vol/5e6, 1)*0.7+math.Min(volRatio, 1)*0.3)
	ucs := clamp(0, 1, hms*0.4+bms*0.35+sls*0.25)
	frs := clamp(0, 2.5, tes*0.5+ucs*1.0+math.Min(tickRatio, 1.5)*0.3)

	axes := 0
	for _, v := range []float64{hms, bms, sls} {
		if v >= 0.4 {
			axes++
		}
	}

	s.TES = tes
	s.HMS = hms
	s.BMS = bms
	s.SLS = sls
	s.UCS = ucs
	s.FRS = frs
	s.Axes = axes
}

// Entry classifies the symbol's current score profile.
func Entry(s *domain.SymbolState) domain.EntrySignal {
	switch {
	case s.FRS >= 1.5 && s.UCS >= 0.6 && s.Axes >= 3:
		return domain.EntryEnter
	case s.FRS >= 0.8 && s.Axes >= 2:
		return domain.EntryWatch
	default:
		return domain.EntryIdle
	}
}

// Exit classifies an open position. avgPrice and curPrice must both be
// positive for a judgement; otherwise the position holds.
func Exit(avgPrice, curPrice float64) domain.ExitSignal {
	if avgPrice <= 0 || curPrice <= 0 {
		return domain.ExitHold
	}
	pnl := (curPrice - avgPrice) / avgPrice * 100
	switch {
	case pnl <= -2:
		return domain.ExitStopLoss
	case pnl >= 10:
		return domain.ExitTP2
	case pnl >= 7:
		return domain.ExitTP1
	default:
		return domain.ExitHold
	}
}

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
