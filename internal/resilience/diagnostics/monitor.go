package diagnostics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Report is the cached outcome of the latest battery.
type Report struct {
	Status    SystemStatus `json:"status"`
	Results   []Result     `json:"results"`
	CheckedAt time.Time    `json:"checked_at"`
}

// Monitor runs the diagnostics battery periodically and caches the last report.
type Monitor struct {
	runner      *Runner
	interval    time.Duration
	minInterval time.Duration
	log         *slog.Logger

	mu         sync.RWMutex
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a new diagnostics monitor.
func NewMonitor(runner *Runner, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		runner:      runner,
		interval:    runner.Config().Interval,
		minInterval: 10 * time.Second,
		log:         log,
	}
}

// Check returns the cached report when it is fresh, otherwise runs the battery.
func (m *Monitor) Check(ctx context.Context) Report {
	m.mu.RLock()
	if m.lastReport != nil && time.Since(m.lastCheck) < m.minInterval {
		report := *m.lastReport
		m.mu.RUnlock()
		return report
	}
	m.mu.RUnlock()
	return m.Refresh(ctx)
}

// Refresh runs the battery unconditionally and caches the result.
func (m *Monitor) Refresh(ctx context.Context) Report {
	results := m.runner.RunFullDiagnostics(ctx)
	report := Report{
		Status:    Summarize(results),
		Results:   results,
		CheckedAt: time.Now(),
	}

	m.mu.Lock()
	m.lastCheck = report.CheckedAt
	m.lastReport = &report
	m.mu.Unlock()

	if report.Status != StatusHealthy {
		m.log.Warn("Diagnostics reported problems", "status", report.Status)
	}
	return report
}

// Last returns the cached report, if any.
func (m *Monitor) Last() (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastReport == nil {
		return Report{}, false
	}
	return *m.lastReport, true
}

// Start runs the monitor loop until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}
