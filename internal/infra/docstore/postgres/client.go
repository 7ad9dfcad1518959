package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vietddude/docsync/internal/infra/docstore"
)

type documentRow struct {
	Collection string    `db:"collection"`
	ID         string    `db:"id"`
	Data       []byte    `db:"data"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type changeNotification struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Exists     bool   `json:"exists"`
}

type watcher struct {
	key string
	fn  docstore.ChangeFunc
}

// Client is a PostgreSQL-backed docstore.Client.
type Client struct {
	db    *sqlx.DB
	cfg   Config
	user  docstore.AuthState
	cache *docstore.Cache
	life  docstore.Lifecycle
	log   *slog.Logger

	watchMu  sync.Mutex
	listener *pq.Listener
	watchers map[uint64]watcher
	nextID   uint64
}

// NewClient opens a pool and returns a client over it.
func NewClient(ctx context.Context, cfg Config, store docstore.Config) (*Client, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db, cfg, store), nil
}

// NewWithDB wraps an existing pool.
func NewWithDB(db *sqlx.DB, cfg Config, store docstore.Config) *Client {
	return &Client{
		db:       db,
		cfg:      cfg,
		user:     docstore.AuthState{UserID: store.Username, Anonymous: store.Username == ""},
		cache:    docstore.NewCache(),
		log:      slog.Default().With("backend", "postgres"),
		watchers: make(map[uint64]watcher),
	}
}

// NewFactory returns a factory opening a fresh pool per client.
func NewFactory(cfg Config, store docstore.Config) docstore.Factory {
	return func(ctx context.Context) (docstore.Client, error) {
		return NewClient(ctx, cfg, store)
	}
}

func (c *Client) Name() string { return "postgres" }

func (c *Client) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := c.life.CheckUsable(); err != nil {
		return docstore.Document{}, err
	}
	if c.life.Offline() {
		if doc, ok := c.cache.Get(collection, id); ok {
			return doc, nil
		}
		return docstore.Document{}, docstore.WrapError(docstore.CodeUnavailable, docstore.ErrOffline)
	}

	var row documentRow
	err := c.db.GetContext(ctx, &row,
		`SELECT collection, id, data, updated_at FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.NewError(
			docstore.CodeNotFound,
			fmt.Sprintf("document %s/%s not found", collection, id),
		)
	}
	if err != nil {
		return docstore.Document{}, mapError(fmt.Errorf("failed to get document: %w", err))
	}

	doc, err := row.document()
	if err != nil {
		return docstore.Document{}, err
	}
	c.cache.Put(doc)
	return doc, nil
}

func (r documentRow) document() (docstore.Document, error) {
	data := make(map[string]any)
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return docstore.Document{}, docstore.WrapError(docstore.CodeDataLoss, fmt.Errorf("failed to decode document: %w", err))
		}
	}
	return docstore.Document{
		Collection: r.Collection,
		ID:         r.ID,
		Data:       data,
		UpdatedAt:  r.UpdatedAt,
		Exists:     true,
	}, nil
}

func (c *Client) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := c.life.CheckOnline(); err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return docstore.WrapError(docstore.CodeInvalidArgument, fmt.Errorf("failed to encode document: %w", err))
	}
	now := time.Now().UTC()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		collection, id, payload, now,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to save document: %w", err))
	}
	c.cache.Put(docstore.Document{Collection: collection, ID: id, Data: data, UpdatedAt: now, Exists: true})
	return nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	if err := c.life.CheckOnline(); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id,
	); err != nil {
		return mapError(fmt.Errorf("failed to delete document: %w", err))
	}
	c.cache.Remove(collection, id)
	return nil
}

func watchKey(collection, id string) string {
	return collection + "/" + id
}

func (c *Client) Watch(
	ctx context.Context,
	collection, id string,
	fn docstore.ChangeFunc,
) (docstore.Unsubscribe, error) {
	if err := c.life.CheckOnline(); err != nil {
		return nil, err
	}
	if err := c.ensureListener(); err != nil {
		return nil, err
	}

	c.watchMu.Lock()
	c.nextID++
	wid := c.nextID
	c.watchers[wid] = watcher{key: watchKey(collection, id), fn: fn}
	c.watchMu.Unlock()

	if doc, err := c.Get(ctx, collection, id); err == nil {
		fn(doc)
	} else if docstore.CodeOf(err) != docstore.CodeNotFound {
		c.log.Debug("Initial snapshot unavailable", "collection", collection, "id", id, "error", err)
	}

	return func() error {
		c.watchMu.Lock()
		defer c.watchMu.Unlock()
		delete(c.watchers, wid)
		return nil
	}, nil
}

func (c *Client) ensureListener() error {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	if c.listener != nil {
		return nil
	}

	listener := pq.NewListener(c.cfg.URL, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				c.log.Warn("Listener event", "event", ev, "error", err)
			}
		})
	if err := listener.Listen(NotifyChannel); err != nil {
		_ = listener.Close()
		return mapError(fmt.Errorf("failed to listen: %w", err))
	}
	c.listener = listener
	go c.dispatch(listener)
	return nil
}

func (c *Client) dispatch(listener *pq.Listener) {
	for n := range listener.Notify {
		// A nil notification signals a reconnect; missed changes are not replayed.
		if n == nil {
			continue
		}
		var change changeNotification
		if err := json.Unmarshal([]byte(n.Extra), &change); err != nil {
			c.log.Warn("Dropping malformed change notification", "error", err)
			continue
		}
		c.deliver(change)
	}
}

func (c *Client) deliver(change changeNotification) {
	key := watchKey(change.Collection, change.ID)
	c.watchMu.Lock()
	var fns []docstore.ChangeFunc
	for _, w := range c.watchers {
		if w.key == key {
			fns = append(fns, w.fn)
		}
	}
	c.watchMu.Unlock()
	if len(fns) == 0 {
		return
	}

	doc := docstore.Document{Collection: change.Collection, ID: change.ID, UpdatedAt: time.Now().UTC()}
	if change.Exists {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		fetched, err := c.Get(ctx, change.Collection, change.ID)
		cancel()
		if err != nil {
			c.log.Warn("Failed to fetch changed document", "collection", change.Collection, "id", change.ID, "error", err)
			return
		}
		doc = fetched
	} else {
		c.cache.Remove(change.Collection, change.ID)
	}
	for _, fn := range fns {
		fn(doc)
	}
}

// WatcherCount returns the number of live watches.
func (c *Client) WatcherCount() int {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	return len(c.watchers)
}

func (c *Client) DisableNetwork(ctx context.Context) error {
	return c.life.SetOffline(true)
}

func (c *Client) EnableNetwork(ctx context.Context) error {
	if err := c.life.SetOffline(false); err != nil {
		return err
	}
	if err := c.db.PingContext(ctx); err != nil {
		return mapError(fmt.Errorf("failed to reconnect: %w", err))
	}
	return nil
}

func (c *Client) Terminate(ctx context.Context) error {
	if !c.life.MarkTerminated() {
		return nil
	}

	c.watchMu.Lock()
	listener := c.listener
	c.listener = nil
	c.watchers = make(map[uint64]watcher)
	c.watchMu.Unlock()

	if listener != nil {
		if err := listener.Close(); err != nil {
			c.log.Warn("Failed to close listener", "error", err)
		}
	}
	return c.db.Close()
}

func (c *Client) ClearPersistence(ctx context.Context) error {
	c.cache.Clear()
	return nil
}

func (c *Client) AuthState(ctx context.Context) (docstore.AuthState, error) {
	if err := c.life.CheckUsable(); err != nil {
		return docstore.AuthState{}, err
	}
	return c.user, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.life.CheckOnline(); err != nil {
		return err
	}
	if err := c.db.PingContext(ctx); err != nil {
		return mapError(fmt.Errorf("ping failed: %w", err))
	}
	return nil
}
