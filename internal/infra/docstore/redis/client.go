// Package redis implements docstore.Client on top of Redis. Documents are
// stored as JSON values and watches are delivered over Pub/Sub.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/docsync/internal/infra/docstore"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	// Prefix namespaces every key; defaults to the project ID.
	Prefix string `yaml:"prefix"`
}

// Client is a Redis-backed docstore.Client.
type Client struct {
	rdb    *redis.Client
	prefix string
	user   docstore.AuthState
	cache  *docstore.Cache
	life   docstore.Lifecycle
	log    *slog.Logger

	subsMu sync.Mutex
	subs   map[*redis.PubSub]struct{}
}

// NewClient creates a new Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config, store docstore.Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if store.Username != "" {
		opts.Username = store.Username
		if store.Password != "" {
			opts.Password = store.Password
		}
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, mapError(fmt.Errorf("failed to connect to redis: %w", err))
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = store.ProjectID
	}
	if prefix == "" {
		prefix = "docsync"
	}

	return &Client{
		rdb:    rdb,
		prefix: prefix,
		user:   docstore.AuthState{UserID: store.Username, Anonymous: store.Username == ""},
		cache:  docstore.NewCache(),
		log:    slog.Default().With("backend", "redis"),
		subs:   make(map[*redis.PubSub]struct{}),
	}, nil
}

// NewFactory returns a factory that dials a fresh connection pool per client.
func NewFactory(cfg Config, store docstore.Config) docstore.Factory {
	return func(ctx context.Context) (docstore.Client, error) {
		return NewClient(ctx, cfg, store)
	}
}

// Key helpers
func (c *Client) docKey(collection, id string) string {
	return fmt.Sprintf("%s:doc:%s:%s", c.prefix, collection, id)
}

func (c *Client) channel(collection, id string) string {
	return fmt.Sprintf("%s:watch:%s:%s", c.prefix, collection, id)
}

func (c *Client) Name() string { return "redis" }

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

	data, err := c.rdb.Get(ctx, c.docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return docstore.Document{}, docstore.NewError(
			docstore.CodeNotFound,
			fmt.Sprintf("document %s/%s not found", collection, id),
		)
	}
	if err != nil {
		return docstore.Document{}, mapError(fmt.Errorf("get failed: %w", err))
	}

	var doc docstore.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return docstore.Document{}, docstore.WrapError(docstore.CodeDataLoss, fmt.Errorf("failed to unmarshal document: %w", err))
	}
	c.cache.Put(doc)
	return doc, nil
}

func (c *Client) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := c.life.CheckOnline(); err != nil {
		return err
	}
	doc := docstore.Document{
		Collection: collection,
		ID:         id,
		Data:       data,
		UpdatedAt:  time.Now().UTC(),
		Exists:     true,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return docstore.WrapError(docstore.CodeInvalidArgument, fmt.Errorf("failed to marshal document: %w", err))
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, c.docKey(collection, id), payload, 0)
	pipe.Publish(ctx, c.channel(collection, id), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return mapError(fmt.Errorf("set failed: %w", err))
	}

	c.cache.Put(doc)
	return nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	if err := c.life.CheckOnline(); err != nil {
		return err
	}
	tombstone, _ := json.Marshal(docstore.Document{
		Collection: collection,
		ID:         id,
		UpdatedAt:  time.Now().UTC(),
	})

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, c.docKey(collection, id))
	pipe.Publish(ctx, c.channel(collection, id), tombstone)
	if _, err := pipe.Exec(ctx); err != nil {
		return mapError(fmt.Errorf("delete failed: %w", err))
	}

	c.cache.Remove(collection, id)
	return nil
}

func (c *Client) Watch(
	ctx context.Context,
	collection, id string,
	fn docstore.ChangeFunc,
) (docstore.Unsubscribe, error) {
	if err := c.life.CheckOnline(); err != nil {
		return nil, err
	}

	pubsub := c.rdb.Subscribe(ctx, c.channel(collection, id))
	// Wait for the subscription confirmation so no publish is missed
	// between here and the initial snapshot below.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, mapError(fmt.Errorf("subscribe failed: %w", err))
	}

	c.subsMu.Lock()
	c.subs[pubsub] = struct{}{}
	c.subsMu.Unlock()

	if doc, err := c.Get(ctx, collection, id); err == nil {
		fn(doc)
	} else if docstore.CodeOf(err) != docstore.CodeNotFound {
		c.log.Debug("Initial snapshot unavailable", "collection", collection, "id", id, "error", err)
	}

	ch := pubsub.Channel()
	go func() {
		for msg := range ch {
			var doc docstore.Document
			if err := json.Unmarshal([]byte(msg.Payload), &doc); err != nil {
				c.log.Warn("Dropping malformed change notification", "channel", msg.Channel, "error", err)
				continue
			}
			if doc.Exists {
				c.cache.Put(doc)
			} else {
				c.cache.Remove(doc.Collection, doc.ID)
			}
			fn(doc)
		}
	}()

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, pubsub)
			c.subsMu.Unlock()
			err = pubsub.Close()
		})
		return err
	}, nil
}

// ActiveSubscriptions returns the number of open Pub/Sub subscriptions.
func (c *Client) ActiveSubscriptions() int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return len(c.subs)
}

func (c *Client) DisableNetwork(ctx context.Context) error {
	return c.life.SetOffline(true)
}

func (c *Client) EnableNetwork(ctx context.Context) error {
	if err := c.life.SetOffline(false); err != nil {
		return err
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return mapError(fmt.Errorf("failed to reconnect: %w", err))
	}
	return nil
}

func (c *Client) Terminate(ctx context.Context) error {
	if !c.life.MarkTerminated() {
		return nil
	}

	c.subsMu.Lock()
	subs := c.subs
	c.subs = make(map[*redis.PubSub]struct{})
	c.subsMu.Unlock()

	for ps := range subs {
		if err := ps.Close(); err != nil {
			c.log.Warn("Failed to close subscription", "error", err)
		}
	}
	return c.rdb.Close()
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
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return mapError(fmt.Errorf("ping failed: %w", err))
	}
	return nil
}
