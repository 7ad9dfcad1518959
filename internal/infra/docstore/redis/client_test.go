package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/docsync/internal/infra/docstore"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(),
		Config{URL: "redis://" + mr.Addr()},
		docstore.Config{ProjectID: "demo"},
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })
	return c, mr
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URL: "not a url"}, docstore.Config{})
	assert.Error(t, err)
}

func TestClient_CRUD(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	_, err := c.Get(ctx, "users", "1")
	assert.Equal(t, docstore.CodeNotFound, docstore.CodeOf(err))

	require.NoError(t, c.Set(ctx, "users", "1", map[string]any{"name": "Ada"}))
	assert.True(t, mr.Exists("demo:doc:users:1"))

	doc, err := c.Get(ctx, "users", "1")
	require.NoError(t, err)
	assert.True(t, doc.Exists)
	assert.Equal(t, "Ada", doc.Data["name"])

	require.NoError(t, c.Delete(ctx, "users", "1"))
	assert.False(t, mr.Exists("demo:doc:users:1"))
}

func TestClient_OfflineReadsFromCache(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	require.NoError(t, c.Set(ctx, "users", "1", map[string]any{"name": "Ada"}))

	require.NoError(t, c.DisableNetwork(ctx))
	doc, err := c.Get(ctx, "users", "1")
	require.NoError(t, err)
	assert.True(t, doc.FromCache)
	assert.ErrorIs(t, c.Ping(ctx), docstore.ErrOffline)

	require.NoError(t, c.EnableNetwork(ctx))
	assert.NoError(t, c.Ping(ctx))
}

func TestClient_Watch(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	require.NoError(t, c.Set(ctx, "rooms", "a", map[string]any{"n": 1}))

	var mu sync.Mutex
	var seen []docstore.Document
	unsub, err := c.Watch(ctx, "rooms", "a", func(d docstore.Document) {
		mu.Lock()
		seen = append(seen, d)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.ActiveSubscriptions())

	require.NoError(t, c.Set(ctx, "rooms", "a", map[string]any{"n": 2}))
	require.NoError(t, c.Delete(ctx, "rooms", "a"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, float64(1), seen[0].Data["n"])
	assert.Equal(t, float64(2), seen[1].Data["n"])
	assert.False(t, seen[2].Exists)
	mu.Unlock()

	require.NoError(t, unsub())
	require.NoError(t, unsub())
	assert.Zero(t, c.ActiveSubscriptions())
}

func TestClient_Terminate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	_, err := c.Watch(ctx, "rooms", "a", func(docstore.Document) {})
	require.NoError(t, err)

	require.NoError(t, c.Terminate(ctx))
	require.NoError(t, c.Terminate(ctx))
	assert.Zero(t, c.ActiveSubscriptions())

	_, err = c.Get(ctx, "rooms", "a")
	assert.ErrorIs(t, err, docstore.ErrTerminated)
}

func TestClient_ServerErrors(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)

	mr.SetError("READONLY You can't write against a read only replica.")
	err := c.Set(ctx, "users", "1", map[string]any{"x": 1})
	assert.Equal(t, docstore.CodeFailedPrecondition, docstore.CodeOf(err))

	mr.SetError("LOADING Redis is loading the dataset in memory")
	_, err = c.Get(ctx, "users", "1")
	assert.Equal(t, docstore.CodeUnavailable, docstore.CodeOf(err))

	mr.SetError("")
	assert.NoError(t, c.Ping(ctx))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{redis.Nil, docstore.CodeNotFound},
		{fmt.Errorf("get: %w", context.DeadlineExceeded), docstore.CodeDeadlineExceeded},
		{context.Canceled, docstore.CodeCancelled},
		{redis.ErrClosed, docstore.CodeFailedPrecondition},
		{errors.New("something else"), docstore.CodeUnknown},
		{docstore.NewError(docstore.CodeAborted, "kept"), docstore.CodeAborted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, docstore.CodeOf(mapError(tt.err)), "%v", tt.err)
	}
	assert.NoError(t, mapError(nil))
}
