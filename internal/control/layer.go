// Package control wires the resilience layer around a document client.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/docsync/internal/core/clock"
	"github.com/vietddude/docsync/internal/core/config"
	"github.com/vietddude/docsync/internal/infra/docstore"
	"github.com/vietddude/docsync/internal/infra/docstore/memory"
	"github.com/vietddude/docsync/internal/infra/docstore/postgres"
	"github.com/vietddude/docsync/internal/infra/docstore/redis"
	"github.com/vietddude/docsync/internal/resilience/classify"
	"github.com/vietddude/docsync/internal/resilience/diagnostics"
	"github.com/vietddude/docsync/internal/resilience/listeners"
	"github.com/vietddude/docsync/internal/resilience/recovery"
	"github.com/vietddude/docsync/internal/resilience/retry"
	"github.com/vietddude/docsync/internal/resilience/telemetry"
)

// Layer owns the live client and every resilience component around it.
type Layer struct {
	cfg          *config.AppConfig
	handle       *docstore.Handle
	classifier   *classify.Classifier
	executor     *retry.Executor
	listeners    *listeners.Registry
	orchestrator *recovery.Orchestrator
	telemetry    *telemetry.Log
	runner       *diagnostics.Runner
	monitor      *diagnostics.Monitor
	server       *diagnostics.Server
	log          *slog.Logger
}

type options struct {
	clock   clock.Clock
	factory docstore.Factory
	log     *slog.Logger
}

// Option customizes NewLayer.
type Option func(*options)

// WithClock injects the clock used for backoff and cooldowns.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithFactory overrides the backend selected by configuration.
func WithFactory(f docstore.Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// NewFactory builds the client factory for the configured backend.
func NewFactory(cfg config.StoreConfig) (docstore.Factory, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.NewFactory(memory.NewStorage(), cfg.Username), nil
	case "redis":
		return redis.NewFactory(cfg.Redis, cfg.Config), nil
	case "postgres":
		return postgres.NewFactory(cfg.Database, cfg.Config), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// NewLayer builds the client and its resilience components.
func NewLayer(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Layer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{clock: clock.New(), log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	factory := o.factory
	if factory == nil {
		var err error
		if factory, err = NewFactory(cfg.Store); err != nil {
			return nil, err
		}
	}

	handle, err := docstore.NewHandle(ctx, factory)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	classifier := classify.New(
		classify.WithLocale(cfg.Locale),
		classify.WithLogger(o.log),
	)
	registry := listeners.NewRegistry(o.log)
	runner := diagnostics.NewRunner(
		cfg.Diagnostics,
		diagnostics.Target{
			Backend:   cfg.Store.Backend,
			Endpoint:  cfg.Store.Endpoint(),
			ProjectID: cfg.Store.ProjectID,
		},
		handle,
		o.log,
	)

	l := &Layer{
		cfg:        cfg,
		handle:     handle,
		classifier: classifier,
		executor: retry.NewExecutor(
			retry.WithClassifier(classifier),
			retry.WithClock(o.clock),
			retry.WithDefaultPolicy(cfg.Retry),
			retry.WithLogger(o.log),
		),
		listeners:    registry,
		orchestrator: recovery.NewOrchestrator(cfg.Recovery, handle, registry, o.clock, o.log),
		telemetry:    telemetry.NewLog(cfg.Telemetry.Capacity, o.clock.Now),
		runner:       runner,
		monitor:      diagnostics.NewMonitor(runner, o.log),
		log:          o.log,
	}
	l.server = diagnostics.NewServer(
		fmt.Sprintf(":%d", cfg.Server.Port),
		l.monitor,
		diagnostics.Sources{
			Stats:    func() any { return l.telemetry.Stats() },
			Events:   func() any { return l.telemetry.Events() },
			Recovery: func() any { return l.orchestrator.State() },
		},
	)

	l.log.Info("Resilience layer ready",
		"backend", handle.Current().Name(),
		"generation", handle.Generation(),
	)
	return l, nil
}

// Client returns the live client. Do not hold on to it across operations;
// recovery replaces it.
func (l *Layer) Client() docstore.Client { return l.handle.Current() }

// Handle returns the versioned client handle.
func (l *Layer) Handle() *docstore.Handle { return l.handle }

// Retry runs op against the live client with retry. The client is resolved
// per attempt, so attempts after a recovery use the rebuilt client. The final
// error, if any, is recorded in telemetry.
func (l *Layer) Retry(
	ctx context.Context,
	label string,
	policy *retry.Policy,
	op func(ctx context.Context, client docstore.Client) error,
) error {
	err := l.executor.Do(ctx, label, policy, func(ctx context.Context) error {
		return op(ctx, l.handle.Current())
	})
	if err != nil {
		l.telemetry.RecordError(err, label)
	}
	return err
}

// Value is Layer.Retry for operations that produce a result.
func Value[T any](
	ctx context.Context,
	l *Layer,
	label string,
	policy *retry.Policy,
	op func(ctx context.Context, client docstore.Client) (T, error),
) (T, error) {
	v, err := value(ctx, l, label, policy, op)
	if err != nil {
		l.telemetry.RecordError(err, label)
	}
	return v, err
}

func value[T any](
	ctx context.Context,
	l *Layer,
	label string,
	policy *retry.Policy,
	op func(ctx context.Context, client docstore.Client) (T, error),
) (T, error) {
	return retry.Value(ctx, l.executor, label, policy, func(ctx context.Context) (T, error) {
		return op(ctx, l.handle.Current())
	})
}

// WithRecovery runs op with retry. A catastrophic failure is recorded in
// telemetry, triggers recovery, and op runs once more when the client was
// rebuilt. If op still fails the fallback is returned with a nil error when
// one is given.
func WithRecovery[T any](
	ctx context.Context,
	l *Layer,
	label string,
	op func(ctx context.Context, client docstore.Client) (T, error),
	fallback ...T,
) (T, error) {
	var eventID string
	attempt := func(ctx context.Context) (T, error) {
		v, err := value(ctx, l, label, nil, op)
		if err != nil && eventID == "" {
			eventID = l.telemetry.RecordError(err, label)
		}
		return v, err
	}

	result, out, err := recovery.Run(ctx, l.orchestrator, attempt)
	if out.Attempted {
		l.telemetry.RecordOutcome(eventID, true, out.Recovered)
	}
	if err == nil {
		return result, nil
	}

	details := l.classifier.Classify(err, classify.Context{Operation: label})
	if len(fallback) > 0 {
		l.log.Warn("Operation failed, returning fallback",
			"operation", label,
			"code", details.Code,
			"recovered", out.Recovered,
		)
		return fallback[0], nil
	}
	var zero T
	return zero, err
}

// Subscribe watches a document and tracks the subscription so recovery can
// tear it down. The returned function is idempotent.
func (l *Layer) Subscribe(
	ctx context.Context,
	collection, id string,
	fn docstore.ChangeFunc,
) (func() error, error) {
	unsub, err := Value(ctx, l, "watch", nil,
		func(ctx context.Context, client docstore.Client) (docstore.Unsubscribe, error) {
			return client.Watch(ctx, collection, id, fn)
		},
	)
	if err != nil {
		return nil, err
	}
	return l.listeners.Track(unsub), nil
}

// Classify classifies err in the layer's locale.
func (l *Layer) Classify(err error, operation string) classify.ErrorDetails {
	return l.classifier.Classify(err, classify.Context{Operation: operation})
}

// Recover requests a client rebuild.
func (l *Layer) Recover(ctx context.Context) bool { return l.orchestrator.Recover(ctx) }

// RecoveryState returns the orchestrator snapshot.
func (l *Layer) RecoveryState() recovery.State { return l.orchestrator.State() }

// Telemetry returns the error log.
func (l *Layer) Telemetry() *telemetry.Log { return l.telemetry }

// Listeners returns the subscription registry.
func (l *Layer) Listeners() *listeners.Registry { return l.listeners }

// Diagnose runs the diagnostics battery once.
func (l *Layer) Diagnose(ctx context.Context) []diagnostics.Result {
	return l.runner.RunFullDiagnostics(ctx)
}

// HTTPHandler returns the observability endpoints.
func (l *Layer) HTTPHandler() http.Handler { return l.server.Handler() }

// Serve runs the diagnostics monitor and HTTP server until ctx is done.
func (l *Layer) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.monitor.Start(ctx)
		return nil
	})
	g.Go(func() error {
		l.log.Info("Starting observability server", "port", l.cfg.Server.Port)
		if err := l.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("observability server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.server.Stop(shutdownCtx)
	})

	return g.Wait()
}

// Close tears down every subscription and terminates the client.
func (l *Layer) Close(ctx context.Context) error {
	l.log.Info("Stopping resilience layer...")
	l.orchestrator.Close()
	report := l.listeners.DrainAll()
	if report.Failed > 0 {
		l.log.Warn("Some listeners failed to unsubscribe", "failed", report.Failed)
	}
	return l.handle.Close(ctx)
}
