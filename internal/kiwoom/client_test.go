package kiwoom

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Millisecond, nil), srv
}

func TestGetDecodesEnvelope(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Success":true,"Message":"ok","Data":{"IsLoggedIn":true,"AccountNo":"12345678"}}`)
	}))

	st, err := c.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !st.IsLoggedIn || st.AccountNo != "12345678" {
		t.Errorf("status = %+v", st)
	}
}

func TestGetRetriesOnBadBody(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			fmt.Fprint(w, `not json`)
			return
		}
		fmt.Fprint(w, `{"Success":true}`)
	}))

	env, err := c.Get(context.Background(), "/api/status", nil)
	if err != nil {
		t.Fatalf("Get after retries: %v", err)
	}
	if !env.Success {
		t.Error("expected Success=true from third attempt")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestGetGivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `not json`)
	}))

	if _, err := c.Get(context.Background(), "/api/status", nil); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestSessionLost(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"Not Logged In", true},
		{"error: NOT LOGGED IN (session expired)", true},
		{"timeout", false},
		{"", false},
	}
	for _, c := range cases {
		env := &Envelope{Message: c.msg}
		if got := env.SessionLost(); got != c.want {
			t.Errorf("SessionLost(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

func TestSearchCondition(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conditions/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("name"); got != "momentum" {
			t.Errorf("name param = %q", got)
		}
		fmt.Fprint(w, `{"Success":true,"Data":{
			"Codes":["A005930","000660"," "],
			"Stocks":[{"code":"005930","name":"삼성전자"},{"종목코드":"000660","종목명":"SK하이닉스"}]
		}}`)
	}))

	res, err := c.SearchCondition(context.Background(), 3, "momentum")
	if err != nil {
		t.Fatalf("SearchCondition: %v", err)
	}
	if len(res.Codes) != 2 {
		t.Fatalf("codes = %v, want 2 entries", res.Codes)
	}
	// Exchange prefix stripped, blanks dropped.
	if res.Codes[0] != "005930" || res.Codes[1] != "000660" {
		t.Errorf("codes = %v", res.Codes)
	}
	if res.Names["000660"] != "SK하이닉스" {
		t.Errorf("names = %v", res.Names)
	}
}

func TestSearchConditionFailure(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Success":false,"Message":"no such condition"}`)
	}))

	if _, err := c.SearchCondition(context.Background(), 0, "missing"); err == nil {
		t.Fatal("expected error on Success=false")
	}
}

func TestListConditions(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Success":true,"Data":[{"Index":0,"Name":"gap"},{"index":"3","name":"momentum"}]}`)
	}))

	conds, err := c.ListConditions(context.Background())
	if err != nil {
		t.Fatalf("ListConditions: %v", err)
	}
	if len(conds) != 2 {
		t.Fatalf("conds = %v", conds)
	}
	if conds[1].Index != 3 || conds[1].Name != "momentum" {
		t.Errorf("conds[1] = %+v", conds[1])
	}
}

func TestMinuteCandlesParams(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("code") != "005930" || q.Get("tick") != "1" || q.Get("stopTime") != "20250602090000" {
			t.Errorf("params = %v", q)
		}
		fmt.Fprint(w, `{"Success":true,"Data":[{"close":"100","time":"20250602100000"}]}`)
	}))

	rows, err := c.MinuteCandles(context.Background(), "005930", 1, "20250602090000")
	if err != nil {
		t.Fatalf("MinuteCandles: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %v", rows)
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := []struct{ in, want string }{
		{"A005930", "005930"},
		{" 005930 ", "005930"},
		{"A00", "A00"}, // too short for a prefixed code
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeCode(c.in); got != c.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
