package util

import (
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers market-hours questions for the KRX cash market.
// It prefers the scmhub/calendar KRX calendar (holidays included) and falls
// back to a plain Mon-Fri 09:00-15:30 KST window when the calendar cannot
// be loaded.
type TradingCalendar struct {
	cal      *calendar.Calendar
	loc      *time.Location
	fallback bool
}

// NewKRXCalendar creates a TradingCalendar for the Korea Exchange (MIC xkrx).
func NewKRXCalendar() *TradingCalendar {
	cal := calendar.GetCalendar("xkrx")
	if cal != nil {
		return &TradingCalendar{cal: cal, loc: cal.Loc}
	}

	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.UTC
	}
	return &TradingCalendar{loc: loc, fallback: true}
}

// Location returns the calendar's time zone (Asia/Seoul).
func (tc *TradingCalendar) Location() *time.Location {
	return tc.loc
}

// Now returns the current time in the calendar's time zone.
func (tc *TradingCalendar) Now() time.Time {
	return time.Now().In(tc.loc)
}

// IsOpen reports whether the cash market is open at time t.
func (tc *TradingCalendar) IsOpen(t time.Time) bool {
	t = t.In(tc.loc)

	if tc.fallback {
		if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			return false
		}
		hhmm := t.Hour()*100 + t.Minute()
		return hhmm >= 900 && hhmm <= 1530
	}

	return tc.cal.IsOpen(t)
}

// SessionStop returns the broker-format stop time ("YYYYMMDDHHMMSS") to use
// when requesting recent intraday candles: the current time while the market
// is open, otherwise the session close so off-market requests do not land in
// an empty window.
func (tc *TradingCalendar) SessionStop(t time.Time) string {
	t = t.In(tc.loc)
	if tc.IsOpen(t) {
		return t.Format("20060102150405")
	}
	return t.Format("20060102") + "153000"
}
