package diagnostics

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/docsync/internal/infra/docstore"
	"github.com/vietddude/docsync/internal/infra/docstore/memory"
)

// swapResolver hands out whichever client is current and counts lookups.
type swapResolver struct {
	client  atomic.Value
	lookups atomic.Int32
}

func newResolver(c docstore.Client) *swapResolver {
	r := &swapResolver{}
	r.client.Store(&c)
	return r
}

func (r *swapResolver) Current() docstore.Client {
	r.lookups.Add(1)
	return *r.client.Load().(*docstore.Client)
}

func (r *swapResolver) swap(c docstore.Client) { r.client.Store(&c) }

// hangingClient blocks Ping until released, ignoring ctx.
type hangingClient struct {
	*memory.Client
	release chan struct{}
}

func (c *hangingClient) Ping(ctx context.Context) error {
	<-c.release
	return nil
}

// panickyClient panics while reading auth state.
type panickyClient struct {
	*memory.Client
}

func (c *panickyClient) AuthState(ctx context.Context) (docstore.AuthState, error) {
	panic("auth provider exploded")
}

var testTarget = Target{Backend: "memory", ProjectID: "demo"}

func statuses(results []Result) map[string]Status {
	out := make(map[string]Status, len(results))
	for _, r := range results {
		out[r.Test] = r.Status
	}
	return out
}

func TestRunFullDiagnostics_Healthy(t *testing.T) {
	client := memory.NewClient(memory.NewStorage(), "alice")
	r := NewRunner(DefaultConfig(), testTarget, newResolver(client), nil)

	results := r.RunFullDiagnostics(context.Background())
	require.Len(t, results, 5)

	names := make([]string, 0, len(results))
	for _, res := range results {
		names = append(names, res.Test)
		assert.Equal(t, StatusPass, res.Status, "%s: %s", res.Test, res.Message)
	}
	assert.Equal(t, []string{"config", "network", "auth", "read", "write"}, names)
	assert.Equal(t, StatusHealthy, Summarize(results))
}

func TestRunFullDiagnostics_Degraded(t *testing.T) {
	client := memory.NewClient(memory.NewStorage(), "")
	client.Inject(memory.Fault{
		Op:  "set",
		Err: docstore.NewError(docstore.CodePermissionDenied, "rules reject write"),
	})
	r := NewRunner(DefaultConfig(), Target{Backend: "memory"}, newResolver(client), nil)

	got := statuses(r.RunFullDiagnostics(context.Background()))
	assert.Equal(t, StatusWarning, got["config"])
	assert.Equal(t, StatusWarning, got["auth"])
	assert.Equal(t, StatusWarning, got["write"])
	assert.Equal(t, StatusPass, got["read"])
}

func TestRunFullDiagnostics_Offline(t *testing.T) {
	client := memory.NewClient(memory.NewStorage(), "alice")
	require.NoError(t, client.DisableNetwork(context.Background()))
	r := NewRunner(DefaultConfig(), testTarget, newResolver(client), nil)

	results := r.RunFullDiagnostics(context.Background())
	got := statuses(results)
	assert.Equal(t, StatusFail, got["network"])
	assert.Equal(t, StatusFail, got["write"])
	assert.Equal(t, StatusCritical, Summarize(results))
}

func TestRunFullDiagnostics_ProbePanicIsIsolated(t *testing.T) {
	client := &panickyClient{memory.NewClient(memory.NewStorage(), "alice")}
	r := NewRunner(DefaultConfig(), testTarget, newResolver(client), nil)

	results := r.RunFullDiagnostics(context.Background())
	require.Len(t, results, 5)
	got := statuses(results)
	assert.Equal(t, StatusFail, got["auth"])
	assert.Equal(t, StatusPass, got["read"])
	assert.Equal(t, StatusPass, got["write"])
	assert.Contains(t, results[2].Message, "panicked")
}

func TestRunFullDiagnostics_Timeout(t *testing.T) {
	client := &hangingClient{
		Client:  memory.NewClient(memory.NewStorage(), "alice"),
		release: make(chan struct{}),
	}
	defer close(client.release)

	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	r := NewRunner(cfg, testTarget, newResolver(client), nil)

	start := time.Now()
	results := r.RunFullDiagnostics(context.Background())

	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, results, 1)
	assert.Equal(t, "diagnostics", results[0].Test)
	assert.Equal(t, StatusFail, results[0].Status)
}

func TestRunFullDiagnostics_ResolvesClientEachRun(t *testing.T) {
	storage := memory.NewStorage()
	resolver := newResolver(memory.NewClient(storage, "alice"))
	r := NewRunner(DefaultConfig(), testTarget, resolver, nil)

	assert.Equal(t, StatusHealthy, Summarize(r.RunFullDiagnostics(context.Background())))

	broken := memory.NewClient(storage, "alice")
	require.NoError(t, broken.Terminate(context.Background()))
	resolver.swap(broken)

	assert.Equal(t, StatusCritical, Summarize(r.RunFullDiagnostics(context.Background())))
	assert.Equal(t, int32(2), resolver.lookups.Load())
}

func TestRunFullDiagnostics_ConfigMissing(t *testing.T) {
	client := memory.NewClient(memory.NewStorage(), "alice")
	r := NewRunner(DefaultConfig(), Target{Backend: "redis"}, newResolver(client), nil)

	got := statuses(r.RunFullDiagnostics(context.Background()))
	assert.Equal(t, StatusFail, got["config"])
	assert.Equal(t, StatusPass, got["network"], "later probes still run")
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, StatusHealthy, Summarize(nil))
	assert.Equal(t, StatusDegraded, Summarize([]Result{{Status: StatusPass}, {Status: StatusWarning}}))
	assert.Equal(t, StatusCritical, Summarize([]Result{{Status: StatusWarning}, {Status: StatusFail}}))
}
