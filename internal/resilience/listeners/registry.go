// Package listeners tracks live subscription cancellations so they can all be
// drained before a connection is torn down.
package listeners

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/docsync/internal/resilience/metrics"
)

// Registry holds the unsubscribe callback of every live subscription. Each
// entry leaves the registry exactly once: through its wrapped unsubscribe or
// through DrainAll, never both.
type Registry struct {
	mu      sync.Mutex
	entries map[uint64]func() error
	nextID  uint64
	log     *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		entries: make(map[uint64]func() error),
		log:     log,
	}
}

// Track registers unsub and returns a wrapper that removes the entry before
// delegating. Calling the wrapper again, or after a drain, is a no-op.
func (r *Registry) Track(unsub func() error) func() error {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries[id] = unsub
	n := len(r.entries)
	r.mu.Unlock()
	metrics.ListenersActive.Set(float64(n))

	return func() error {
		r.mu.Lock()
		fn, ok := r.entries[id]
		if ok {
			delete(r.entries, id)
		}
		n := len(r.entries)
		r.mu.Unlock()
		if !ok {
			return nil
		}
		metrics.ListenersActive.Set(float64(n))
		return fn()
	}
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// DrainReport summarizes a DrainAll call.
type DrainReport struct {
	Drained int
	Failed  int
}

// DrainAll unsubscribes every entry present at entry. Entries tracked after
// the snapshot stay registered. A failing or panicking callback does not
// prevent the others from running.
func (r *Registry) DrainAll() DrainReport {
	r.mu.Lock()
	snapshot := r.entries
	r.entries = make(map[uint64]func() error)
	r.mu.Unlock()
	metrics.ListenersActive.Set(float64(r.Len()))

	report := DrainReport{Drained: len(snapshot)}
	for id, fn := range snapshot {
		if err := safeCall(fn); err != nil {
			report.Failed++
			metrics.ListenerUnsubscribeFailures.Inc()
			r.log.Warn("Failed to unsubscribe listener", "listener", id, "error", err)
		}
	}
	if report.Drained > 0 {
		r.log.Info("Drained listeners", "count", report.Drained, "failed", report.Failed)
	}
	return report
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unsubscribe panicked: %v", rec)
		}
	}()
	if fn == nil {
		return nil
	}
	return fn()
}
