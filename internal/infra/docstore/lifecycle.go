package docstore

import (
	"sync"
	"time"
)

// Lifecycle tracks the online/offline/terminated state shared by every
// backend.
type Lifecycle struct {
	mu         sync.RWMutex
	offline    bool
	terminated bool
}

// CheckOnline returns an error if the client cannot reach the server.
func (l *Lifecycle) CheckOnline() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.terminated {
		return WrapError(CodeFailedPrecondition, ErrTerminated)
	}
	if l.offline {
		return WrapError(CodeUnavailable, ErrOffline)
	}
	return nil
}

// CheckUsable returns an error only if the client was terminated.
func (l *Lifecycle) CheckUsable() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.terminated {
		return WrapError(CodeFailedPrecondition, ErrTerminated)
	}
	return nil
}

// Offline reports whether the network is disabled.
func (l *Lifecycle) Offline() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.offline
}

// SetOffline flips the network state. It fails on a terminated client.
func (l *Lifecycle) SetOffline(offline bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.terminated {
		return WrapError(CodeFailedPrecondition, ErrTerminated)
	}
	l.offline = offline
	return nil
}

// MarkTerminated reports whether this call performed the transition.
func (l *Lifecycle) MarkTerminated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.terminated {
		return false
	}
	l.terminated = true
	return true
}

// Cache is the local persistence layer: the last known snapshot of every
// document read or written through a client.
type Cache struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{docs: make(map[string]Document)}
}

func cacheKey(collection, id string) string {
	return collection + "/" + id
}

// Put stores a snapshot.
func (c *Cache) Put(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}
	doc.FromCache = false
	c.docs[cacheKey(doc.Collection, doc.ID)] = doc
}

// Get returns the cached snapshot marked as FromCache.
func (c *Cache) Get(collection, id string) (Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[cacheKey(collection, id)]
	if ok {
		doc.FromCache = true
	}
	return doc, ok
}

// Remove drops a snapshot.
func (c *Cache) Remove(collection, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, cacheKey(collection, id))
}

// Clear drops every snapshot.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = make(map[string]Document)
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
