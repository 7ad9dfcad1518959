// Package docstore defines the boundary to the remote synchronized document
// database.
//
// This package contains:
//   - Client: the vendor client surface (documents, watches, connection control)
//   - Error: vendor errors carrying a canonical code
//   - Handle: the versioned, process-wide owner of the live Client
//   - Lifecycle and Cache: shared connection-state helpers for backends
package docstore

import (
	"context"
	"time"
)

// Document is a single stored document.
type Document struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data"`
	UpdatedAt  time.Time      `json:"updated_at"`
	// Exists is false for change notifications about deleted documents.
	Exists bool `json:"exists"`
	// FromCache is set when the document was served from local persistence.
	FromCache bool `json:"-"`
}

// Unsubscribe cancels a live watch. Implementations must be idempotent.
type Unsubscribe func() error

// ChangeFunc receives pushed document snapshots.
type ChangeFunc func(Document)

// AuthState describes the identity the client is connected as.
type AuthState struct {
	UserID    string
	Anonymous bool
	ExpiresAt time.Time
}

// Client is the vendor SDK boundary. Every method may fail with *Error; the
// connection-control methods are idempotent.
type Client interface {
	// Name identifies the backend (e.g., "memory", "redis", "postgres").
	Name() string

	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, data map[string]any) error
	Delete(ctx context.Context, collection, id string) error

	// Watch delivers the current and subsequent snapshots of a document.
	Watch(ctx context.Context, collection, id string, fn ChangeFunc) (Unsubscribe, error)

	// DisableNetwork takes the client offline; reads may be served from cache.
	DisableNetwork(ctx context.Context) error
	// EnableNetwork brings the client back online.
	EnableNetwork(ctx context.Context) error
	// Terminate releases every resource held by the client. A terminated
	// client cannot be reused.
	Terminate(ctx context.Context) error
	// ClearPersistence drops locally cached documents.
	ClearPersistence(ctx context.Context) error

	AuthState(ctx context.Context) (AuthState, error)
	Ping(ctx context.Context) error
}

// Config is the backend-agnostic part of the client configuration.
type Config struct {
	Backend   string `yaml:"backend"`
	ProjectID string `yaml:"project_id"`
	// Credentials identify the connecting user; empty means anonymous.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Factory builds a fresh client from the configuration captured at wiring
// time.
type Factory func(ctx context.Context) (Client, error)
