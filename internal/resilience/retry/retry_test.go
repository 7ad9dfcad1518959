package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/docsync/internal/core/clock"
	"github.com/vietddude/docsync/internal/infra/docstore"
	"github.com/vietddude/docsync/internal/resilience/classify"
)

func newTestExecutor(t *testing.T) (*Executor, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewExecutor(WithClock(clk), WithClassifier(classify.New())), clk
}

// failing returns an op that fails with errs in order, then succeeds.
func failing(calls *int, errs ...error) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= len(errs) {
			return errs[*calls-1]
		}
		return nil
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxAttempts: 6, BaseDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second,
	}
	for i, d := range want {
		assert.Equal(t, d, p.Delay(i+1), "attempt %d", i+1)
	}
	assert.Equal(t, 10*time.Second, p.Delay(200))
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	e, clk := newTestExecutor(t)
	unavailable := docstore.NewError(docstore.CodeUnavailable, "backend restarting")

	var calls int
	var retried []int
	policy := DefaultPolicy()
	policy.OnRetry = func(attempt int, err error) {
		retried = append(retried, attempt)
		assert.ErrorIs(t, err, unavailable)
	}

	err := e.Do(context.Background(), "get", &policy, failing(&calls, unavailable, unavailable))
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.Sleeps())
	assert.Equal(t, 3000*time.Millisecond, clk.TotalSlept())
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	e, clk := newTestExecutor(t)
	denied := docstore.NewError(docstore.CodePermissionDenied, "rules reject read")

	var calls int
	err := e.Do(context.Background(), "get", nil, failing(&calls, denied))

	assert.Same(t, denied, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clk.Sleeps())
	assert.Zero(t, Attempts(err))
}

func TestDo_Exhausted(t *testing.T) {
	e, clk := newTestExecutor(t)
	timeout := docstore.NewError(docstore.CodeDeadlineExceeded, "slow")

	var calls int
	err := e.Do(context.Background(), "set", nil, failing(&calls, timeout, timeout, timeout, timeout))

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, "set", ex.Operation)
	assert.Equal(t, 3, Attempts(err))
	assert.ErrorIs(t, err, timeout)
	assert.Equal(t, 3, calls)
	assert.Len(t, clk.Sleeps(), 2)
}

func TestDo_CatastrophicIsNotRetried(t *testing.T) {
	e, clk := newTestExecutor(t)
	broken := docstore.NewError(docstore.CodeInternal, "INTERNAL ASSERTION FAILED: Unexpected state (ID: ca9)")

	var calls int
	err := e.Do(context.Background(), "watch", nil, failing(&calls, broken))

	assert.Same(t, broken, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clk.Sleeps())
}

func TestDo_RetryableCodesOverride(t *testing.T) {
	e, _ := newTestExecutor(t)
	policy := &Policy{
		MaxAttempts:    2,
		BaseDelay:      time.Millisecond,
		RetryableCodes: map[string]bool{docstore.CodeNotFound: true},
	}

	var calls int
	notFound := docstore.NewError(docstore.CodeNotFound, "eventually consistent")
	require.NoError(t, e.Do(context.Background(), "get", policy, failing(&calls, notFound)))
	assert.Equal(t, 2, calls)

	calls = 0
	unavailable := docstore.NewError(docstore.CodeUnavailable, "down")
	err := e.Do(context.Background(), "get", policy, failing(&calls, unavailable))
	assert.Same(t, unavailable, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())

	unavailable := docstore.NewError(docstore.CodeUnavailable, "down")
	var calls int
	err := e.Do(ctx, "get", nil, func(context.Context) error {
		calls++
		cancel()
		return unavailable
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, unavailable)
	assert.Equal(t, 1, calls)
}

func TestValue(t *testing.T) {
	e, _ := newTestExecutor(t)

	var calls int
	v, err := Value(context.Background(), e, "count", nil, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("connection reset by peer")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Value(context.Background(), e, "count", nil, func(context.Context) (int, error) {
		return 7, docstore.NewError(docstore.CodeInvalidArgument, "bad")
	})
	assert.Equal(t, docstore.CodeInvalidArgument, docstore.CodeOf(err))
}
