// Package recovery rebuilds the document client after catastrophic internal
// failures. At most one recovery runs at a time, and repeated attempts are
// throttled by a cooldown.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/docsync/internal/core/clock"
	"github.com/vietddude/docsync/internal/infra/docstore"
	"github.com/vietddude/docsync/internal/resilience/listeners"
	"github.com/vietddude/docsync/internal/resilience/metrics"
)

// Config controls the recovery guard.
type Config struct {
	// MaxAttempts is the number of recoveries allowed per cooldown window.
	MaxAttempts int `yaml:"max_attempts"`
	// Cooldown is the delay after a recovery before the attempt counter resets.
	Cooldown time.Duration `yaml:"cooldown"`
	// ClearPersistence drops the old client's local cache during rebuild.
	ClearPersistence bool `yaml:"clear_persistence"`
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Cooldown:    5 * time.Second,
	}
}

// Phase is a state of the recovery state machine.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRecovering Phase = "recovering"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// State is a snapshot of the orchestrator.
type State struct {
	Phase                 Phase     `json:"phase"`
	InProgress            bool      `json:"in_progress"`
	AttemptsSinceCooldown int       `json:"attempts_since_cooldown"`
	MaxAttempts           int       `json:"max_attempts"`
	CooldownDeadline      time.Time `json:"cooldown_deadline,omitzero"`
	Generation            uint64    `json:"generation"`
	LastRecovery          time.Time `json:"last_recovery,omitzero"`
	TotalRecoveries       int       `json:"total_recoveries"`
}

// Orchestrator runs the recovery sequence: drain listeners, take the client
// offline, rebuild it, bring the new client online.
type Orchestrator struct {
	cfg       Config
	handle    *docstore.Handle
	listeners *listeners.Registry
	clock     clock.Clock
	log       *slog.Logger

	mu               sync.Mutex
	phase            Phase
	inProgress       bool
	attempts         int
	cooldownTimer    clock.Timer
	cooldownSeq      uint64
	cooldownDeadline time.Time
	lastRecovery     time.Time
	total            int
	closed           bool
}

// NewOrchestrator creates an orchestrator for handle. A nil clock uses the
// wall clock.
func NewOrchestrator(
	cfg Config,
	handle *docstore.Handle,
	registry *listeners.Registry,
	clk clock.Clock,
	log *slog.Logger,
) *Orchestrator {
	d := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = d.Cooldown
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = listeners.NewRegistry(log)
	}
	return &Orchestrator{
		cfg:       cfg,
		handle:    handle,
		listeners: registry,
		clock:     clk,
		log:       log,
		phase:     PhaseIdle,
	}
}

// Recover runs the recovery sequence unless one is already in flight, the
// attempt budget for this cooldown window is spent, or the orchestrator was
// closed; in those cases it returns false immediately without touching the
// client. Otherwise it reports whether the client was rebuilt.
func (o *Orchestrator) Recover(ctx context.Context) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		metrics.RecoverySkipped.WithLabelValues("closed").Inc()
		return false
	}
	if o.inProgress {
		o.mu.Unlock()
		metrics.RecoverySkipped.WithLabelValues("in_progress").Inc()
		o.log.Debug("Recovery already in progress, skipping")
		return false
	}
	if o.attempts >= o.cfg.MaxAttempts {
		deadline := o.cooldownDeadline
		o.mu.Unlock()
		metrics.RecoverySkipped.WithLabelValues("cooldown").Inc()
		o.log.Warn("Recovery attempts exhausted, waiting for cooldown", "until", deadline)
		return false
	}
	o.attempts++
	o.inProgress = true
	o.phase = PhaseRecovering
	attempt := o.attempts
	o.mu.Unlock()

	start := o.clock.Now()
	o.log.Warn("Starting client recovery", "attempt", attempt, "max_attempts", o.cfg.MaxAttempts)

	ok := false
	defer func() {
		metrics.RecoveryDuration.Observe(o.clock.Now().Sub(start).Seconds())
		o.finish(ok)
		if ok {
			metrics.RecoveriesTotal.WithLabelValues("succeeded").Inc()
			o.log.Info("Client recovery succeeded", "attempt", attempt, "generation", o.handle.Generation())
		} else {
			metrics.RecoveriesTotal.WithLabelValues("failed").Inc()
			o.log.Error("Client recovery failed", "attempt", attempt)
		}
	}()
	ok = o.run(ctx)
	return ok
}

// finish leaves the recovering phase and arms the cooldown. It runs even if
// the sequence panicked.
func (o *Orchestrator) finish(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inProgress = false
	o.lastRecovery = o.clock.Now()
	o.total++
	if ok {
		o.phase = PhaseSucceeded
	} else {
		o.phase = PhaseFailed
	}
	if !o.closed {
		o.armCooldownLocked()
	}
}

// run executes the four steps. Each step is best-effort and panic-isolated;
// only the rebuild decides the outcome.
func (o *Orchestrator) run(ctx context.Context) bool {
	// 1. Drain every live subscription
	_ = o.step("drain listeners", func() error {
		report := o.listeners.DrainAll()
		o.log.Debug("Recovery step: listeners drained", "count", report.Drained, "failed", report.Failed)
		return nil
	})

	// 2. Take the current client offline
	_ = o.step("disable network", func() error {
		return o.handle.Current().DisableNetwork(ctx)
	})

	// 3. Discard and rebuild the client
	err := o.step("reinitialize client", func() error {
		gen, err := o.handle.Reinitialize(ctx, o.cfg.ClearPersistence)
		if err != nil {
			return err
		}
		metrics.ClientGeneration.Set(float64(gen))
		return nil
	})
	if err != nil {
		return false
	}

	// 4. Bring the new client online
	_ = o.step("enable network", func() error {
		return o.handle.Current().EnableNetwork(ctx)
	})
	return true
}

// step runs fn, turning a panic into an error. Failures are logged.
func (o *Orchestrator) step(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			o.log.Warn("Recovery step failed", "step", name, "error", err)
		}
	}()
	return fn()
}

// armCooldownLocked replaces any pending cooldown timer, so at most one is
// outstanding. Must be called with o.mu held.
func (o *Orchestrator) armCooldownLocked() {
	if o.cooldownTimer != nil {
		o.cooldownTimer.Stop()
	}
	o.cooldownSeq++
	seq := o.cooldownSeq
	o.cooldownDeadline = o.clock.Now().Add(o.cfg.Cooldown)
	o.cooldownTimer = o.clock.AfterFunc(o.cfg.Cooldown, func() { o.resetCooldown(seq) })
}

func (o *Orchestrator) resetCooldown(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	// A replaced timer that fired anyway must not clear its successor.
	if seq != o.cooldownSeq {
		return
	}
	o.attempts = 0
	o.cooldownTimer = nil
	o.cooldownDeadline = time.Time{}
	if !o.inProgress {
		o.phase = PhaseIdle
	}
	o.log.Debug("Recovery cooldown elapsed, attempts reset")
}

// State returns a snapshot of the orchestrator.
func (o *Orchestrator) State() State {
	gen := o.handle.Generation()
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Phase:                 o.phase,
		InProgress:            o.inProgress,
		AttemptsSinceCooldown: o.attempts,
		MaxAttempts:           o.cfg.MaxAttempts,
		CooldownDeadline:      o.cooldownDeadline,
		Generation:            gen,
		LastRecovery:          o.lastRecovery,
		TotalRecoveries:       o.total,
	}
}

// Close stops a pending cooldown timer. Later Recover calls are refused.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.cooldownTimer != nil {
		o.cooldownTimer.Stop()
		o.cooldownTimer = nil
	}
}
