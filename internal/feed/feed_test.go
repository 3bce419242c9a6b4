package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeedReceivesMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"code":"005930"}`)); err != nil {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	var got atomic.Int32
	var connects atomic.Int32
	f := New(Config{
		Name:        "tick",
		URL:         wsURL(srv),
		ReadTimeout: time.Second,
		Backoff:     10 * time.Millisecond,
		OnConnect:   func(ctx context.Context) { connects.Add(1) },
		OnMessage:   func(data []byte) { got.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { f.Run(ctx); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for got.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if got.Load() < 3 {
		t.Errorf("received %d messages, want 3", got.Load())
	}
	if connects.Load() < 1 {
		t.Error("OnConnect never ran")
	}

	st := f.Status()
	if st.Name != "tick" {
		t.Errorf("status name = %q", st.Name)
	}
	if st.RecvCount < 3 {
		t.Errorf("recv count = %d, want >= 3", st.RecvCount)
	}
	if st.LastRecv.IsZero() {
		t.Error("LastRecv not set")
	}
	if st.Connected {
		t.Error("feed should report disconnected after Run returns")
	}
}

func TestFeedRedialsAfterDrop(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the connection immediately so the client must redial.
		conn.Close()
	}))
	defer srv.Close()

	f := New(Config{
		Name:        "tick",
		URL:         wsURL(srv),
		ReadTimeout: time.Second,
		Backoff:     10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { f.Run(ctx); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for dials.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if dials.Load() < 3 {
		t.Errorf("dials = %d, want >= 3 (no redial happening)", dials.Load())
	}
}

func TestFeedStaysConnectedWhileSilent(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Send no data; reading keeps the connection answering pings.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	f := New(Config{
		Name:        "tick",
		URL:         wsURL(srv),
		ReadTimeout: 90 * time.Millisecond,
		Backoff:     10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { f.Run(ctx); close(done) }()

	// Several read-timeout periods of silence must not cost the connection.
	time.Sleep(450 * time.Millisecond)
	if !f.Connected() {
		t.Error("feed dropped a healthy silent connection")
	}
	cancel()
	<-done

	if got := dials.Load(); got != 1 {
		t.Errorf("dials = %d, want exactly 1 across a silent stretch", got)
	}
}

func TestFeedRedialsWhenPeerStalls(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never read, so pings go unanswered and the deadline fires.
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	f := New(Config{
		Name:        "tick",
		URL:         wsURL(srv),
		ReadTimeout: 60 * time.Millisecond,
		Backoff:     10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { f.Run(ctx); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for dials.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if dials.Load() < 2 {
		t.Errorf("dials = %d, want >= 2 (stalled peer should redial)", dials.Load())
	}
}

func TestFeedStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	f := New(Config{Name: "exec", URL: wsURL(srv)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { f.Run(ctx); close(done) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
