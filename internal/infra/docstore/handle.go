package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handle owns the live Client. Callers resolve Current on every use instead of
// caching the client, because Reinitialize swaps the instance. Each swap bumps
// Generation, so a component holding an older generation can detect that its
// client has been invalidated.
//
// Only the recovery orchestrator should call Reinitialize.
type Handle struct {
	mu     sync.RWMutex
	client Client
	gen    atomic.Uint64

	// rebuildMu serializes Reinitialize without blocking readers during I/O.
	rebuildMu sync.Mutex
	factory   Factory
	log       *slog.Logger
}

// NewHandle builds the first client from factory.
func NewHandle(ctx context.Context, factory Factory) (*Handle, error) {
	if factory == nil {
		return nil, errors.New("docstore: nil factory")
	}
	client, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	h := &Handle{
		client:  client,
		factory: factory,
		log:     slog.Default(),
	}
	h.gen.Store(1)
	return h, nil
}

// Current returns the live client.
func (h *Handle) Current() Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

// Snapshot returns the live client together with its generation.
func (h *Handle) Snapshot() (Client, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client, h.gen.Load()
}

// Generation returns the number of clients this handle has owned. It never
// waits on a rebuild in progress.
func (h *Handle) Generation() uint64 {
	return h.gen.Load()
}

// Stale reports whether gen refers to a client that has since been replaced.
func (h *Handle) Stale(gen uint64) bool {
	return gen != h.Generation()
}

// Reinitialize terminates the current client, optionally clears its local
// persistence, and swaps in a fresh client built by the factory. Teardown
// failures are logged and do not prevent the rebuild. On factory failure the
// old (terminated) client stays in place and the generation is unchanged.
// Readers keep resolving the old client until the swap; only the swap itself
// takes the write lock.
func (h *Handle) Reinitialize(ctx context.Context, clearPersistence bool) (uint64, error) {
	h.rebuildMu.Lock()
	defer h.rebuildMu.Unlock()

	old, gen := h.Snapshot()
	if old != nil {
		if err := old.Terminate(ctx); err != nil {
			h.log.Warn("Failed to terminate client", "backend", old.Name(), "generation", gen, "error", err)
		}
		if clearPersistence {
			if err := old.ClearPersistence(ctx); err != nil {
				h.log.Warn("Failed to clear local persistence", "backend", old.Name(), "error", err)
			}
		}
	}

	fresh, err := h.factory(ctx)
	if err != nil {
		return gen, fmt.Errorf("failed to rebuild client: %w", err)
	}

	h.mu.Lock()
	h.client = fresh
	gen = h.gen.Add(1)
	h.mu.Unlock()

	h.log.Info("Client reinitialized", "backend", fresh.Name(), "generation", gen)
	return gen, nil
}

// Close terminates the live client.
func (h *Handle) Close(ctx context.Context) error {
	return h.Current().Terminate(ctx)
}
