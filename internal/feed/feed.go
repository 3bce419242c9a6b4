// Package feed maintains a websocket stream against the broker bridge with
// automatic redial. A silent stream is healthy; the connection is kept alive
// with pings, and only a peer that stops answering within the read timeout
// is torn down and redialed. That way a half-open bridge socket does not go
// unnoticed until the next trading day, while a quiet overnight market does
// not cause reconnect churn.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tesfeed/internal/domain"
)

// Config describes one bridge stream.
type Config struct {
	Name        string
	URL         string
	ReadTimeout time.Duration
	Backoff     time.Duration

	// OnConnect runs after each successful dial, before the read loop.
	// Resubscription lives here.
	OnConnect func(ctx context.Context)
	// OnMessage receives each raw frame.
	OnMessage func(data []byte)

	Logger *slog.Logger
}

// Feed is a self-healing websocket consumer. Run blocks until the context
// is cancelled; the status accessors are safe from other goroutines.
type Feed struct {
	cfg Config

	mu        sync.RWMutex
	connected bool
	recvCount int64
	lastRecv  time.Time
}

// New creates a Feed. Zero timeout and backoff values get defaults of 20s
// and 1.5s.
func New(cfg Config) *Feed {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 20 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Feed{cfg: cfg}
}

// Run dials and reads until ctx is cancelled. Every exit from the read loop
// flips the feed to disconnected and redials after the backoff. An outage is
// announced once; repeated failed redials log at debug.
func (f *Feed) Run(ctx context.Context) {
	inOutage := false
	for {
		if ctx.Err() != nil {
			return
		}

		dialed, err := f.runOnce(ctx)
		f.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		if dialed {
			inOutage = false
		}
		if err != nil {
			if !inOutage {
				f.cfg.Logger.Warn("feed disconnected; retrying",
					"feed", f.cfg.Name, "error", err)
				inOutage = true
			} else {
				f.cfg.Logger.Debug("feed redial failed",
					"feed", f.cfg.Name, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.cfg.Backoff):
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) (dialed bool, _ error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	f.setConnected(true)
	f.cfg.Logger.Info("feed connected", "feed", f.cfg.Name, "url", f.cfg.URL)

	if f.cfg.OnConnect != nil {
		f.cfg.OnConnect(ctx)
	}

	// Silence is not an error. Pongs and data frames both push the read
	// deadline forward, so it only expires when the peer stops answering.
	if err := conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout)); err != nil {
		return true, err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go f.keepalive(ctx, conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if err := conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout)); err != nil {
			return true, err
		}

		f.mu.Lock()
		f.recvCount++
		f.lastRecv = time.Now()
		f.mu.Unlock()

		if f.cfg.OnMessage != nil {
			f.cfg.OnMessage(data)
		}
	}
}

// keepalive pings the peer at a third of the read timeout and closes the
// socket when ctx ends so the read loop unblocks.
func (f *Feed) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	interval := f.cfg.ReadTimeout / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(interval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (f *Feed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// Connected reports whether the stream currently has a live socket.
func (f *Feed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Status returns a point-in-time health view.
func (f *Feed) Status() domain.FeedStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return domain.FeedStatus{
		Name:      f.cfg.Name,
		Connected: f.connected,
		RecvCount: f.recvCount,
		LastRecv:  f.lastRecv,
	}
}

// LastRecv returns the arrival time of the most recent frame.
func (f *Feed) LastRecv() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastRecv
}
