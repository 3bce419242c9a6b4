// Package dashboard provides a shared in-memory model for the account
// dashboard, with merge-on-apply, signature-based dedup, and pub/sub for
// downstream view consumers.
package dashboard

import (
	"encoding/json"
	"sync"

	"tesfeed/internal/domain"
)

// Reconciler holds the latest account snapshot. Partial updates merge into
// the previous state and only a changed signature reaches subscribers, so
// steady 5-second polls off market hours stay silent.
type Reconciler struct {
	mu        sync.RWMutex
	current   domain.DashboardSnapshot
	signature string

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan domain.DashboardSnapshot
}

// NewReconciler creates an empty Reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		subs: make(map[int]chan domain.DashboardSnapshot),
	}
}

// Apply merges snap into the current state and publishes it when anything
// observable changed. Nil Holdings/Outstanding mean "no data this poll" and
// keep the previous rows; scalar fields always overwrite. Returns true when
// the snapshot was published.
func (r *Reconciler) Apply(snap domain.DashboardSnapshot) bool {
	r.mu.Lock()

	merged := r.current
	merged.AccountNo = snap.AccountNo
	merged.FetchedAt = snap.FetchedAt
	merged.Totals = snap.Totals
	if snap.Holdings != nil {
		merged.Holdings = snap.Holdings
	}
	if snap.Outstanding != nil {
		merged.Outstanding = snap.Outstanding
	}

	sig := signature(merged)
	if sig == r.signature {
		r.mu.Unlock()
		return false
	}

	r.current = merged
	r.signature = sig
	out := copySnapshot(merged)
	r.mu.Unlock()

	// Notify subscribers (non-blocking send).
	r.subsMu.Lock()
	for _, ch := range r.subs {
		select {
		case ch <- out:
		default:
			// Slow subscriber, drop update.
		}
	}
	r.subsMu.Unlock()

	return true
}

// Snapshot returns a copy of the current state.
func (r *Reconciler) Snapshot() domain.DashboardSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copySnapshot(r.current)
}

// Subscribe creates a subscription channel for dashboard updates.
func (r *Reconciler) Subscribe(bufSize int) (id int, ch <-chan domain.DashboardSnapshot) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	id = r.nextSubID
	r.nextSubID++
	c := make(chan domain.DashboardSnapshot, bufSize)
	r.subs[id] = c
	return id, c
}

// Unsubscribe removes a subscription and closes its channel.
func (r *Reconciler) Unsubscribe(id int) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	if ch, ok := r.subs[id]; ok {
		close(ch)
		delete(r.subs, id)
	}
}

// signature serializes the observable state deterministically. Struct fields
// marshal in declaration order, so equal states always produce equal bytes.
func signature(s domain.DashboardSnapshot) string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(b)
}

func copySnapshot(s domain.DashboardSnapshot) domain.DashboardSnapshot {
	out := s
	if s.Holdings != nil {
		out.Holdings = make([]domain.Holding, len(s.Holdings))
		copy(out.Holdings, s.Holdings)
	}
	if s.Outstanding != nil {
		out.Outstanding = make([]domain.OutstandingOrder, len(s.Outstanding))
		copy(out.Outstanding, s.Outstanding)
	}
	return out
}
