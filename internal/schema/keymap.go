// Package schema detects which field names a broker bridge uses for candle
// rows and coerces its loosely formatted numerics. Bridges disagree on key
// naming (English, Korean, abbreviated) so the first healthy row decides the
// mapping and it stays locked from then on.
package schema

import (
	"strconv"
	"strings"
	"sync"

	"tesfeed/internal/domain"
)

// ---------------------------------------------------------------------------
// Numeric coercion
// ---------------------------------------------------------------------------

// AbsNum converts a broker numeric value to a non-negative float64. Strings
// may carry thousands separators, spaces, sign prefixes and leading zeros.
// Anything unparseable coerces to 0.
func AbsNum(v any) float64 {
	n := SignedNum(v)
	if n < 0 {
		return -n
	}
	return n
}

// SignedNum converts a broker numeric value to a float64 keeping its sign.
// Doubled minus prefixes cancel out ("--1234" is positive).
func SignedNum(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		s := strings.ReplaceAll(x, ",", "")
		s = strings.ReplaceAll(s, " ", "")
		neg := false
		for strings.HasPrefix(s, "-") {
			neg = !neg
			s = s[1:]
		}
		s = strings.TrimPrefix(s, "+")
		s = strings.TrimLeft(s, "0")
		if s == "" || s == "." {
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		if neg {
			return -n
		}
		return n
	default:
		return 0
	}
}

// FirstValid returns the first value among keys that is present and usable
// (not nil, not empty, not a placeholder blank).
func FirstValid(row map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		v, ok := row[k]
		if !ok {
			continue
		}
		if !usable(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

func usable(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		t := strings.TrimSpace(s)
		// Some bridges emit ". " for missing numeric fields.
		if t == "" || t == "." {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Key detection
// ---------------------------------------------------------------------------

// Candidate key names per candle field, in probe order.
var candidates = map[string][]string{
	"time":   {"time", "date", "t", "timestamp", "체결시간", "일자", "Date", "Time"},
	"open":   {"open", "o", "Open", "시가", "start_price", "OPEN"},
	"high":   {"high", "h", "High", "고가", "max_price", "HIGH"},
	"low":    {"low", "l", "Low", "저가", "min_price", "LOW"},
	"close":  {"close", "c", "Close", "현재가", "종가", "last_price", "CLOSE"},
	"volume": {"volume", "v", "Volume", "vol", "거래량", "cumVolume", "VOL", "VOLUME"},
}

// KeyMap holds the detected field name for each candle component. Empty
// entries mean the bridge never supplied that field.
type KeyMap struct {
	Time   string
	Open   string
	High   string
	Low    string
	Close  string
	Volume string
}

// Detector probes candle rows for recognisable field names and locks the
// first complete mapping. Safe for concurrent use.
type Detector struct {
	mu     sync.RWMutex
	km     KeyMap
	locked bool
}

// NewDetector returns an unlocked Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Locked reports whether a mapping has been committed.
func (d *Detector) Locked() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.locked
}

// KeyMap returns the current mapping. Meaningful only once locked.
func (d *Detector) KeyMap() KeyMap {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.km
}

// Detect examines row for known key names. It returns true when a usable
// mapping is available. A close field is mandatory; the mapping locks on the
// first success and later rows can no longer change it.
func (d *Detector) Detect(row map[string]any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.locked {
		return true
	}

	var km KeyMap
	assign := map[string]*string{
		"time":   &km.Time,
		"open":   &km.Open,
		"high":   &km.High,
		"low":    &km.Low,
		"close":  &km.Close,
		"volume": &km.Volume,
	}
	for field, keys := range candidates {
		for _, k := range keys {
			v, ok := row[k]
			if ok && usable(v) {
				*assign[field] = k
				break
			}
		}
	}

	if km.Close == "" {
		return false
	}

	d.km = km
	d.locked = true
	return true
}

// Parse converts a raw candle row into a repaired CandleBar using the locked
// mapping. It returns false when the row has no positive close price, or
// when no mapping has been locked yet.
func (d *Detector) Parse(row map[string]any) (domain.CandleBar, bool) {
	d.mu.RLock()
	km := d.km
	locked := d.locked
	d.mu.RUnlock()

	if !locked {
		return domain.CandleBar{}, false
	}

	c := AbsNum(row[km.Close])
	if c <= 0 {
		return domain.CandleBar{}, false
	}

	o := AbsNum(row[km.Open])
	if o <= 0 {
		o = c
	}
	h := AbsNum(row[km.High])
	if h <= 0 {
		h = max(o, c)
	}
	lo := AbsNum(row[km.Low])
	if lo <= 0 {
		lo = min(o, c)
		if lo <= 0 {
			lo = c
		}
	}

	// Repair inconsistent extremes so high/low always bound open/close.
	h = max(h, max(o, c))
	lo = min(lo, min(o, c))

	bar := domain.CandleBar{
		Open:   o,
		High:   h,
		Low:    lo,
		Close:  c,
		Volume: AbsNum(row[km.Volume]),
	}
	if km.Time != "" {
		if ts, ok := row[km.Time]; ok && usable(ts) {
			bar.Time = stringify(ts)
		}
	}
	return bar, true
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}
