package kiwoom

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tesfeed/internal/schema"
)

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Status is the bridge session state.
type Status struct {
	IsLoggedIn bool   `json:"IsLoggedIn"`
	AccountNo  string `json:"AccountNo"`
}

// GetStatus fetches the bridge session state.
func (c *Client) GetStatus(ctx context.Context) (Status, error) {
	env, err := c.Get(ctx, "/api/status", nil)
	if err != nil {
		return Status{}, err
	}
	var st Status
	if err := decodeData(env, &st); err != nil {
		return Status{}, fmt.Errorf("status: %w", err)
	}
	return st, nil
}

// RequestLogin asks the bridge to open its login flow. Completion is
// observed by polling GetStatus, not by this call's response.
func (c *Client) RequestLogin(ctx context.Context) error {
	_, err := c.Get(ctx, "/api/auth/login", nil)
	return err
}

// ---------------------------------------------------------------------------
// Conditions (screening formulas registered with the broker)
// ---------------------------------------------------------------------------

// Condition is one saved screening formula.
type Condition struct {
	Index int
	Name  string
}

// ListConditions fetches the registered screening formulas.
func (c *Client) ListConditions(ctx context.Context) ([]Condition, error) {
	env, err := c.Get(ctx, "/api/conditions", nil)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := decodeData(env, &rows); err != nil {
		return nil, fmt.Errorf("conditions: %w", err)
	}

	out := make([]Condition, 0, len(rows))
	for _, row := range rows {
		idxv, _ := schema.FirstValid(row, []string{"Index", "index"})
		namev, _ := schema.FirstValid(row, []string{"Name", "name"})
		out = append(out, Condition{
			Index: int(schema.AbsNum(idxv)),
			Name:  asString(namev),
		})
	}
	return out, nil
}

// SearchResult is the outcome of running one screening formula.
type SearchResult struct {
	Codes []string
	Names map[string]string
}

// SearchCondition runs a screening formula and returns the matching symbol
// codes plus any names the bridge included.
func (c *Client) SearchCondition(ctx context.Context, index int, name string) (SearchResult, error) {
	params := url.Values{}
	params.Set("index", strconv.Itoa(index))
	params.Set("name", name)

	env, err := c.Get(ctx, "/api/conditions/search", params)
	if err != nil {
		return SearchResult{}, err
	}
	if !env.Success {
		return SearchResult{}, fmt.Errorf("condition search %q: %s", name, env.Message)
	}

	var payload struct {
		Codes  []any            `json:"Codes"`
		Stocks []map[string]any `json:"Stocks"`
	}
	if err := decodeData(env, &payload); err != nil {
		return SearchResult{}, fmt.Errorf("condition search: %w", err)
	}

	res := SearchResult{Names: make(map[string]string)}
	for _, v := range payload.Codes {
		code := NormalizeCode(asString(v))
		if code != "" {
			res.Codes = append(res.Codes, code)
		}
	}
	for _, row := range payload.Stocks {
		cv, _ := schema.FirstValid(row, []string{"code", "종목코드"})
		nv, _ := schema.FirstValid(row, []string{"name", "종목명"})
		code := NormalizeCode(asString(cv))
		nm := strings.TrimSpace(asString(nv))
		if code != "" && nm != "" {
			res.Names[code] = nm
		}
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// GetSymbol fetches the quote row for one symbol. The row's keys vary by
// bridge version, so it stays raw for alias probing at the call site.
func (c *Client) GetSymbol(ctx context.Context, code string) (map[string]any, error) {
	params := url.Values{}
	params.Set("code", code)

	env, err := c.Get(ctx, "/api/market/symbol", params)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("symbol %s: %s", code, env.Message)
	}
	var row map[string]any
	if err := decodeData(env, &row); err != nil {
		return nil, fmt.Errorf("symbol %s: %w", code, err)
	}
	return row, nil
}

// MinuteCandles fetches minute candles for code back to stopTime
// ("YYYYMMDDHHMMSS"). Rows stay raw for schema detection.
func (c *Client) MinuteCandles(ctx context.Context, code string, tick int, stopTime string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("code", code)
	params.Set("tick", strconv.Itoa(tick))
	params.Set("stopTime", stopTime)
	return c.candleRows(ctx, "/api/market/candles/minute", params)
}

// DailyCandles fetches daily candles for code from date back to stopDate
// ("YYYYMMDD").
func (c *Client) DailyCandles(ctx context.Context, code, date, stopDate string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("code", code)
	params.Set("date", date)
	params.Set("stopDate", stopDate)
	return c.candleRows(ctx, "/api/market/candles/daily", params)
}

// TickCandles fetches tick candles for code back to stopTime. Used by the
// diagnostics tool.
func (c *Client) TickCandles(ctx context.Context, code string, tick int, stopTime string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("code", code)
	params.Set("tick", strconv.Itoa(tick))
	params.Set("stopTime", stopTime)
	return c.candleRows(ctx, "/api/market/candles/tick", params)
}

func (c *Client) candleRows(ctx context.Context, path string, params url.Values) ([]map[string]any, error) {
	env, err := c.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("%s: %s", path, env.Message)
	}
	var rows []map[string]any
	if err := decodeData(env, &rows); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// Realtime subscription
// ---------------------------------------------------------------------------

// Subscribe registers codes for realtime tick pushes on the given screen.
func (c *Client) Subscribe(ctx context.Context, codes []string, screen string) error {
	params := url.Values{}
	params.Set("codes", strings.Join(codes, ";"))
	params.Set("screen", screen)

	env, err := c.Get(ctx, "/api/realtime/subscribe", params)
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("subscribe: %s", env.Message)
	}
	return nil
}

// Unsubscribe cancels all realtime registrations on the given screen.
func (c *Client) Unsubscribe(ctx context.Context, screen string) error {
	params := url.Values{}
	params.Set("screen", screen)
	params.Set("code", "ALL")
	_, err := c.Get(ctx, "/api/realtime/unsubscribe", params)
	return err
}

// ---------------------------------------------------------------------------
// Dashboard
// ---------------------------------------------------------------------------

// FetchDashboard fetches the account dashboard. force bypasses the bridge's
// cache and pulls fresh figures from the broker.
func (c *Client) FetchDashboard(ctx context.Context, force bool) (map[string]any, *Envelope, error) {
	path := "/api/dashboard"
	if force {
		path = "/api/dashboard/refresh"
	}
	env, err := c.Get(ctx, path, nil)
	if err != nil {
		return nil, nil, err
	}
	if !env.Success {
		return nil, env, fmt.Errorf("dashboard: %s", env.Message)
	}
	var raw map[string]any
	if err := decodeData(env, &raw); err != nil {
		return nil, env, fmt.Errorf("dashboard: %w", err)
	}
	return raw, env, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// NormalizeCode trims a symbol code and strips the exchange prefix some
// bridges prepend ("A005930" for KOSPI symbols).
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) >= 7 && (code[0] == 'A' || code[0] == 'a') {
		code = code[1:]
	}
	return code
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}
