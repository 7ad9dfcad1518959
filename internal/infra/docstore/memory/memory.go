// Package memory implements an in-process docstore.Client. It backs local
// development and tests, and supports fault injection so callers can exercise
// retry and recovery paths.
package memory

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/docsync/internal/infra/docstore"
)

// Storage is the shared "server side": documents survive client rebuilds as
// long as the same Storage is reused by the factory.
type Storage struct {
	docs map[string]docstore.Document
	mu   sync.RWMutex

	watchMu  sync.Mutex
	watchers map[string]map[uint64]docstore.ChangeFunc
	nextID   uint64
}

// NewStorage creates an empty storage.
func NewStorage() *Storage {
	return &Storage{
		docs:     make(map[string]docstore.Document),
		watchers: make(map[string]map[uint64]docstore.ChangeFunc),
	}
}

func key(collection, id string) string {
	return collection + "/" + id
}

// WatcherCount returns the number of live watches across all clients.
func (s *Storage) WatcherCount() int {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	n := 0
	for _, m := range s.watchers {
		n += len(m)
	}
	return n
}

func (s *Storage) notify(doc docstore.Document) {
	s.watchMu.Lock()
	fns := make([]docstore.ChangeFunc, 0, len(s.watchers[key(doc.Collection, doc.ID)]))
	for _, fn := range s.watchers[key(doc.Collection, doc.ID)] {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(doc)
	}
}

// Fault makes the next Times calls of Op fail with Err. An empty Op matches
// every operation; Times <= 0 means forever.
type Fault struct {
	Op    string
	Err   error
	Times int
}

// Client is an in-memory docstore.Client.
type Client struct {
	storage *Storage
	user    docstore.AuthState
	cache   *docstore.Cache
	life    docstore.Lifecycle

	faultMu sync.Mutex
	faults  []*Fault

	calls atomic.Int64
}

// NewClient creates a client over storage. An empty username connects
// anonymously.
func NewClient(storage *Storage, username string) *Client {
	return &Client{
		storage: storage,
		user:    docstore.AuthState{UserID: username, Anonymous: username == ""},
		cache:   docstore.NewCache(),
	}
}

// NewFactory returns a factory building clients over the same storage.
func NewFactory(storage *Storage, username string) docstore.Factory {
	return func(ctx context.Context) (docstore.Client, error) {
		return NewClient(storage, username), nil
	}
}

// Inject registers a fault.
func (c *Client) Inject(f Fault) {
	c.faultMu.Lock()
	defer c.faultMu.Unlock()
	c.faults = append(c.faults, &f)
}

// Calls returns the number of operations issued against this client.
func (c *Client) Calls() int64 { return c.calls.Load() }

// Terminated reports whether Terminate was called.
func (c *Client) Terminated() bool {
	return c.life.CheckUsable() != nil
}

// Offline reports whether the network is disabled.
func (c *Client) Offline() bool { return c.life.Offline() }

// CachedDocuments returns the number of locally persisted snapshots.
func (c *Client) CachedDocuments() int { return c.cache.Len() }

func (c *Client) fault(op string) error {
	c.calls.Add(1)
	c.faultMu.Lock()
	defer c.faultMu.Unlock()
	for i, f := range c.faults {
		if f.Op != "" && f.Op != op {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				c.faults = append(c.faults[:i], c.faults[i+1:]...)
			}
		}
		return f.Err
	}
	return nil
}

func (c *Client) Name() string { return "memory" }

func (c *Client) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := c.fault("get"); err != nil {
		return docstore.Document{}, err
	}
	if err := c.life.CheckUsable(); err != nil {
		return docstore.Document{}, err
	}
	if c.life.Offline() {
		if doc, ok := c.cache.Get(collection, id); ok {
			return doc, nil
		}
		return docstore.Document{}, docstore.WrapError(docstore.CodeUnavailable, docstore.ErrOffline)
	}

	c.storage.mu.RLock()
	doc, ok := c.storage.docs[key(collection, id)]
	c.storage.mu.RUnlock()
	if !ok {
		return docstore.Document{}, docstore.NewError(docstore.CodeNotFound, "document "+key(collection, id)+" not found")
	}
	doc.Data = maps.Clone(doc.Data)
	c.cache.Put(doc)
	return doc, nil
}

func (c *Client) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := c.fault("set"); err != nil {
		return err
	}
	if err := c.life.CheckOnline(); err != nil {
		return err
	}
	doc := docstore.Document{
		Collection: collection,
		ID:         id,
		Data:       maps.Clone(data),
		UpdatedAt:  time.Now(),
		Exists:     true,
	}
	c.storage.mu.Lock()
	c.storage.docs[key(collection, id)] = doc
	c.storage.mu.Unlock()

	c.cache.Put(doc)
	c.storage.notify(doc)
	return nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	if err := c.fault("delete"); err != nil {
		return err
	}
	if err := c.life.CheckOnline(); err != nil {
		return err
	}
	c.storage.mu.Lock()
	delete(c.storage.docs, key(collection, id))
	c.storage.mu.Unlock()

	c.cache.Remove(collection, id)
	c.storage.notify(docstore.Document{Collection: collection, ID: id, UpdatedAt: time.Now()})
	return nil
}

func (c *Client) Watch(
	ctx context.Context,
	collection, id string,
	fn docstore.ChangeFunc,
) (docstore.Unsubscribe, error) {
	if err := c.fault("watch"); err != nil {
		return nil, err
	}
	if err := c.life.CheckOnline(); err != nil {
		return nil, err
	}

	k := key(collection, id)
	c.storage.watchMu.Lock()
	c.storage.nextID++
	wid := c.storage.nextID
	if c.storage.watchers[k] == nil {
		c.storage.watchers[k] = make(map[uint64]docstore.ChangeFunc)
	}
	c.storage.watchers[k][wid] = fn
	c.storage.watchMu.Unlock()

	c.storage.mu.RLock()
	current, ok := c.storage.docs[k]
	c.storage.mu.RUnlock()
	if ok {
		fn(current)
	}

	var once sync.Once
	return func() error {
		once.Do(func() {
			c.storage.watchMu.Lock()
			delete(c.storage.watchers[k], wid)
			if len(c.storage.watchers[k]) == 0 {
				delete(c.storage.watchers, k)
			}
			c.storage.watchMu.Unlock()
		})
		return nil
	}, nil
}

func (c *Client) DisableNetwork(ctx context.Context) error {
	if err := c.fault("disable_network"); err != nil {
		return err
	}
	return c.life.SetOffline(true)
}

func (c *Client) EnableNetwork(ctx context.Context) error {
	if err := c.fault("enable_network"); err != nil {
		return err
	}
	return c.life.SetOffline(false)
}

func (c *Client) Terminate(ctx context.Context) error {
	if err := c.fault("terminate"); err != nil {
		return err
	}
	c.life.MarkTerminated()
	return nil
}

func (c *Client) ClearPersistence(ctx context.Context) error {
	if err := c.fault("clear_persistence"); err != nil {
		return err
	}
	c.cache.Clear()
	return nil
}

func (c *Client) AuthState(ctx context.Context) (docstore.AuthState, error) {
	if err := c.fault("auth"); err != nil {
		return docstore.AuthState{}, err
	}
	if err := c.life.CheckUsable(); err != nil {
		return docstore.AuthState{}, err
	}
	return c.user, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.fault("ping"); err != nil {
		return err
	}
	return c.life.CheckOnline()
}
