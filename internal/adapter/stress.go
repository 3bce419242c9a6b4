package adapter

import (
	"time"

	"tesfeed/internal/config"
	"tesfeed/internal/score"
)

// stressState drives the off-market replay engine. Guarded by Adapter.mu
// except for the immutable override string.
type stressState struct {
	override  string // "1" forces on, "0" forces off, "" defers
	enabled   *bool  // runtime override set through SetStressMode
	interval  time.Duration
	batch     int
	cycle     int64
	replayIdx map[string]int
}

func newStressState(cfg config.StressConfig) stressState {
	return stressState{
		override:  cfg.Override,
		interval:  cfg.Interval,
		batch:     cfg.Batch,
		replayIdx: make(map[string]int),
	}
}

func (s *stressState) resetReplay() {
	s.replayIdx = make(map[string]int)
}

// StressActive reports whether the replay engine should run. Precedence:
// environment override, then a runtime SetStressMode call, then the
// default of "on whenever the market is closed".
func (a *Adapter) StressActive(marketOpen bool) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch a.stress.override {
	case "1":
		return true
	case "0":
		return false
	}
	if a.stress.enabled != nil {
		return *a.stress.enabled
	}
	return !marketOpen
}

// SetStressMode overrides the replay engine at runtime. nil restores the
// market-hours default.
func (a *Adapter) SetStressMode(enabled *bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stress.enabled = enabled
	label := "AUTO"
	if enabled != nil {
		if *enabled {
			label = "ON"
		} else {
			label = "OFF"
		}
	}
	a.logger.Info("stress mode", "mode", label)
}

// SetStressInterval adjusts the replay cadence, floored at 10ms.
func (a *Adapter) SetStressInterval(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	a.stress.interval = d
}

// SetStressBatch adjusts how many symbols each replay pass touches,
// clamped to [1, 100].
func (a *Adapter) SetStressBatch(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n < 1 {
		n = 1
	}
	if n > 100 {
		n = 100
	}
	a.stress.batch = n
}

func (a *Adapter) stressInterval() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stress.interval
}

// StressCycle returns how many replay passes have run.
func (a *Adapter) StressCycle() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stress.cycle
}

// runStressTick replays one archived candle into each symbol of the current
// batch, wrapping per-symbol cursors at the end of their series.
func (a *Adapter) runStressTick() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stress.cycle++
	n := min(a.stress.batch, len(a.stocks))
	for _, s := range a.stocks[:n] {
		series := a.candles[s.Code]
		if len(series) == 0 {
			continue
		}
		idx := a.stress.replayIdx[s.Code]
		if idx >= len(series) {
			idx = 0
		}
		bar := series[idx]
		a.stress.replayIdx[s.Code] = idx + 1

		s.Price = bar.Close
		if bar.Open > 0 {
			s.OpenPrice = bar.Open
		}
		if bar.High > s.High {
			s.High = bar.High
		}
		if s.Low > 0 {
			if bar.Low < s.Low {
				s.Low = bar.Low
			}
		} else {
			s.Low = bar.Low
		}
		s.VolumeAcc += bar.Volume
		s.TickCount++

		rate := 0.0
		if s.OpenPrice > 0 {
			rate = (bar.Close - s.OpenPrice) / s.OpenPrice * 100
		}
		score.Recompute(s, rate, 0)
	}
}
