// Package diagnostics runs a read-only battery of health probes against the
// live document client and reports the results. It never triggers recovery.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/docsync/internal/infra/docstore"
	"github.com/vietddude/docsync/internal/resilience/metrics"
)

// Status is the outcome of a single probe.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusWarning Status = "warning"
)

// Result is the outcome of one probe.
type Result struct {
	Test     string         `json:"test"`
	Status   Status         `json:"status"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Resolver returns the live client. *docstore.Handle satisfies it.
type Resolver interface {
	Current() docstore.Client
}

// Target describes the configured connection, for the config probe.
type Target struct {
	Backend   string
	Endpoint  string
	ProjectID string
}

// Config controls the runner.
type Config struct {
	Timeout         time.Duration `yaml:"timeout"`
	Interval        time.Duration `yaml:"interval"`
	ProbeCollection string        `yaml:"probe_collection"`
	ProbeDocument   string        `yaml:"probe_document"`
	// RateLimit bounds on-demand runs through the HTTP server, per second.
	RateLimit float64 `yaml:"rate_limit"`
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         15 * time.Second,
		Interval:        time.Minute,
		ProbeCollection: "_diagnostics",
		ProbeDocument:   "probe",
		RateLimit:       0.2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.ProbeCollection == "" {
		c.ProbeCollection = d.ProbeCollection
	}
	if c.ProbeDocument == "" {
		c.ProbeDocument = d.ProbeDocument
	}
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	return c
}

// probe is one named check in the battery.
type probe struct {
	name string
	run  func(ctx context.Context, client docstore.Client) Result
}

// Runner executes the diagnostics battery.
type Runner struct {
	cfg      Config
	target   Target
	resolver Resolver
	log      *slog.Logger
	probes   []probe
}

// NewRunner creates a runner. The client is resolved through resolver on
// every run, never cached.
func NewRunner(cfg Config, target Target, resolver Resolver, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{
		cfg:      cfg.withDefaults(),
		target:   target,
		resolver: resolver,
		log:      log,
	}
	r.probes = []probe{
		{"config", r.checkConfig},
		{"network", r.checkNetwork},
		{"auth", r.checkAuth},
		{"read", r.checkRead},
		{"write", r.checkWrite},
	}
	return r
}

// Config returns the effective configuration.
func (r *Runner) Config() Config { return r.cfg }

// RunFullDiagnostics runs every probe in order. A failing or panicking probe
// produces a fail result and the battery continues. If the whole battery
// outlives the configured timeout, a single synthetic fail result is returned
// instead of partial results.
func (r *Runner) RunFullDiagnostics(ctx context.Context) []Result {
	start := time.Now()
	defer func() {
		metrics.DiagnosticsDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	done := make(chan []Result, 1)
	go func() {
		done <- r.runAll(ctx)
	}()

	select {
	case results := <-done:
		for _, res := range results {
			metrics.DiagnosticsResults.WithLabelValues(res.Test, string(res.Status)).Inc()
		}
		return results
	case <-ctx.Done():
		r.log.Error("Diagnostics timed out", "timeout", r.cfg.Timeout)
		metrics.DiagnosticsResults.WithLabelValues("diagnostics", string(StatusFail)).Inc()
		return []Result{{
			Test:     "diagnostics",
			Status:   StatusFail,
			Message:  fmt.Sprintf("diagnostics did not complete within %s", r.cfg.Timeout),
			Details:  map[string]any{"error": ctx.Err().Error()},
			Duration: time.Since(start),
		}}
	}
}

func (r *Runner) runAll(ctx context.Context) []Result {
	client := r.resolver.Current()
	results := make([]Result, 0, len(r.probes))
	for _, p := range r.probes {
		results = append(results, r.runProbe(ctx, p, client))
	}
	return results
}

func (r *Runner) runProbe(ctx context.Context, p probe, client docstore.Client) (res Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			res = Result{
				Test:    p.name,
				Status:  StatusFail,
				Message: fmt.Sprintf("probe panicked: %v", rec),
			}
		}
		res.Test = p.name
		res.Duration = time.Since(start)
		r.log.Debug("Diagnostic probe finished", "test", p.name, "status", res.Status, "message", res.Message)
	}()

	if client == nil && p.name != "config" {
		return Result{Status: StatusFail, Message: "no client available"}
	}
	return p.run(ctx, client)
}

func (r *Runner) checkConfig(ctx context.Context, _ docstore.Client) Result {
	details := map[string]any{
		"backend":    r.target.Backend,
		"endpoint":   r.target.Endpoint != "",
		"project_id": r.target.ProjectID,
	}
	switch {
	case r.target.Backend == "":
		return Result{Status: StatusFail, Message: "no backend configured", Details: details}
	case r.target.Backend != "memory" && r.target.Endpoint == "":
		return Result{Status: StatusFail, Message: "backend endpoint is not configured", Details: details}
	case r.target.ProjectID == "":
		return Result{Status: StatusWarning, Message: "project id is not configured", Details: details}
	}
	return Result{Status: StatusPass, Message: "configuration present", Details: details}
}

func (r *Runner) checkNetwork(ctx context.Context, client docstore.Client) Result {
	start := time.Now()
	if err := client.Ping(ctx); err != nil {
		return Result{
			Status:  StatusFail,
			Message: "backend is unreachable",
			Details: errorDetails(err),
		}
	}
	return Result{
		Status:  StatusPass,
		Message: "backend reachable",
		Details: map[string]any{"latency_ms": time.Since(start).Milliseconds()},
	}
}

func (r *Runner) checkAuth(ctx context.Context, client docstore.Client) Result {
	state, err := client.AuthState(ctx)
	if err != nil {
		return Result{Status: StatusFail, Message: "auth state unavailable", Details: errorDetails(err)}
	}
	if state.Anonymous {
		return Result{Status: StatusWarning, Message: "connected anonymously"}
	}
	details := map[string]any{"user_id": state.UserID}
	if !state.ExpiresAt.IsZero() && time.Until(state.ExpiresAt) < 5*time.Minute {
		return Result{Status: StatusWarning, Message: "credentials expire soon", Details: details}
	}
	return Result{Status: StatusPass, Message: "authenticated", Details: details}
}

func (r *Runner) checkRead(ctx context.Context, client docstore.Client) Result {
	_, err := client.Get(ctx, r.cfg.ProbeCollection, r.cfg.ProbeDocument)
	switch code := docstore.CodeOf(err); {
	case err == nil:
		return Result{Status: StatusPass, Message: "read succeeded"}
	case code == docstore.CodeNotFound:
		return Result{Status: StatusPass, Message: "read succeeded (probe document absent)"}
	case code == docstore.CodePermissionDenied:
		return Result{Status: StatusFail, Message: "rules reject reads", Details: errorDetails(err)}
	default:
		return Result{Status: StatusFail, Message: "read failed", Details: errorDetails(err)}
	}
}

func (r *Runner) checkWrite(ctx context.Context, client docstore.Client) Result {
	err := client.Set(ctx, r.cfg.ProbeCollection, r.cfg.ProbeDocument, map[string]any{
		"probe_id":   uuid.NewString(),
		"checked_at": time.Now().UTC().Format(time.RFC3339),
	})
	switch code := docstore.CodeOf(err); {
	case err == nil:
		return Result{Status: StatusPass, Message: "write succeeded"}
	case code == docstore.CodePermissionDenied:
		return Result{Status: StatusWarning, Message: "rules reject writes", Details: errorDetails(err)}
	default:
		return Result{Status: StatusFail, Message: "write failed", Details: errorDetails(err)}
	}
}

func errorDetails(err error) map[string]any {
	d := map[string]any{"error": err.Error()}
	if code := docstore.CodeOf(err); code != "" {
		d["code"] = code
	}
	return d
}
