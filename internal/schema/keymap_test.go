package schema

import (
	"testing"
)

func TestAbsNum(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{"-1,234", 1234},
		{"+1,234", 1234},
		{"--1,234", 1234},
		{"007", 7},
		{" 1 234 ", 1234},
		{"", 0},
		{nil, 0},
		{". ", 0},
		{"abc", 0},
		{12000.5, 12000.5},
		{-350, 350},
	}
	for _, c := range cases {
		if got := AbsNum(c.in); got != c.want {
			t.Errorf("AbsNum(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestSignedNum(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{"-1,234", -1234},
		{"--1,234", 1234},
		{"+500", 500},
		{"-0", 0},
		{int64(-7), -7},
	}
	for _, c := range cases {
		if got := SignedNum(c.in); got != c.want {
			t.Errorf("SignedNum(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFirstValid(t *testing.T) {
	row := map[string]any{
		"current_price": "",
		"price":         ". ",
		"현재가":           "12,000",
	}
	v, ok := FirstValid(row, []string{"current_price", "price", "현재가"})
	if !ok {
		t.Fatal("FirstValid found nothing")
	}
	if v != "12,000" {
		t.Errorf("FirstValid = %v, want 12,000", v)
	}

	if _, ok := FirstValid(row, []string{"missing"}); ok {
		t.Error("FirstValid should miss on absent keys")
	}
}

func TestDetectEnglishKeys(t *testing.T) {
	d := NewDetector()
	row := map[string]any{
		"time": "20250602100000", "open": "100", "high": "110",
		"low": "90", "close": "105", "volume": "5000",
	}
	if !d.Detect(row) {
		t.Fatal("Detect failed on complete English row")
	}
	km := d.KeyMap()
	if km.Close != "close" || km.Time != "time" || km.Volume != "volume" {
		t.Errorf("unexpected mapping: %+v", km)
	}
}

func TestDetectKoreanKeys(t *testing.T) {
	d := NewDetector()
	row := map[string]any{
		"체결시간": "20250602100000", "시가": "100", "고가": "110",
		"저가": "90", "현재가": "-105", "거래량": "5000",
	}
	if !d.Detect(row) {
		t.Fatal("Detect failed on Korean row")
	}
	km := d.KeyMap()
	if km.Close != "현재가" || km.Time != "체결시간" {
		t.Errorf("unexpected mapping: %+v", km)
	}
}

func TestDetectRequiresClose(t *testing.T) {
	d := NewDetector()
	row := map[string]any{"open": "100", "high": "110", "low": "90"}
	if d.Detect(row) {
		t.Error("Detect should fail without a close field")
	}
	if d.Locked() {
		t.Error("failed detection must not lock the mapping")
	}
}

func TestDetectLocksOnFirstSuccess(t *testing.T) {
	d := NewDetector()
	if !d.Detect(map[string]any{"close": "105"}) {
		t.Fatal("Detect failed")
	}
	if !d.Locked() {
		t.Fatal("mapping should be locked")
	}

	// A later row with different keys must not change the mapping.
	d.Detect(map[string]any{"c": "200", "o": "190"})
	if km := d.KeyMap(); km.Close != "close" {
		t.Errorf("locked mapping changed to %+v", km)
	}
}

func TestDetectSkipsBlankValues(t *testing.T) {
	d := NewDetector()
	row := map[string]any{
		"close": ". ", "현재가": "105",
	}
	if !d.Detect(row) {
		t.Fatal("Detect failed")
	}
	if km := d.KeyMap(); km.Close != "현재가" {
		t.Errorf("Close mapped to %q, want 현재가 (blank close skipped)", km.Close)
	}
}

func TestParseRepairsBar(t *testing.T) {
	d := NewDetector()
	d.Detect(map[string]any{
		"time": "x", "open": "1", "high": "1", "low": "1", "close": "1", "volume": "1",
	})

	// Zero open/high/low get rebuilt from close.
	bar, ok := d.Parse(map[string]any{
		"time": "20250602100100", "open": "0", "high": "0", "low": "0",
		"close": "-105", "volume": "3,000",
	})
	if !ok {
		t.Fatal("Parse rejected a valid row")
	}
	if bar.Open != 105 || bar.High != 105 || bar.Low != 105 || bar.Close != 105 {
		t.Errorf("repaired bar = %+v, want flat 105", bar)
	}
	if bar.Volume != 3000 {
		t.Errorf("Volume = %v, want 3000", bar.Volume)
	}
	if bar.Time != "20250602100100" {
		t.Errorf("Time = %q", bar.Time)
	}

	// High below open gets lifted, low above close gets pushed down.
	bar, ok = d.Parse(map[string]any{
		"open": "110", "high": "100", "low": "108", "close": "105", "volume": "1",
	})
	if !ok {
		t.Fatal("Parse rejected a valid row")
	}
	if bar.High != 110 {
		t.Errorf("High = %v, want 110", bar.High)
	}
	if bar.Low != 105 {
		t.Errorf("Low = %v, want 105", bar.Low)
	}
}

func TestParseRejectsNonPositiveClose(t *testing.T) {
	d := NewDetector()
	d.Detect(map[string]any{"close": "1"})

	if _, ok := d.Parse(map[string]any{"close": "0"}); ok {
		t.Error("Parse should reject zero close")
	}
	if _, ok := d.Parse(map[string]any{"close": "abc"}); ok {
		t.Error("Parse should reject unparseable close")
	}
}

func TestParseBeforeLock(t *testing.T) {
	d := NewDetector()
	if _, ok := d.Parse(map[string]any{"close": "100"}); ok {
		t.Error("Parse must fail before a mapping is locked")
	}
}
