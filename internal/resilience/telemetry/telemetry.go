// Package telemetry keeps a bounded in-memory history of error and recovery
// events and derives statistics from it. Nothing is persisted.
package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/docsync/internal/core/ring"
	"github.com/vietddude/docsync/internal/resilience/classify"
	"github.com/vietddude/docsync/internal/resilience/metrics"
)

// ErrorType is the coarse bucket an event is counted under.
type ErrorType string

const (
	TypeInternal   ErrorType = "internal"
	TypeNetwork    ErrorType = "network"
	TypePermission ErrorType = "permission"
	TypeOther      ErrorType = "other"
)

// DefaultCapacity is the default number of retained events.
const DefaultCapacity = 100

// Event is a single recorded error.
type Event struct {
	ID                 string    `json:"id"`
	Timestamp          time.Time `json:"timestamp"`
	RawMessage         string    `json:"raw_message"`
	ErrorType          ErrorType `json:"error_type"`
	Operation          string    `json:"operation,omitempty"`
	RecoveryAttempted  bool      `json:"recovery_attempted"`
	RecoverySuccessful bool      `json:"recovery_successful"`
	outcomeSet         bool
}

// Stats summarizes the retained events. Every count except EvictedErrors
// covers the same window: the events still in the log, so TotalErrors always
// equals the sum of CountsByType.
type Stats struct {
	TotalErrors  int               `json:"total_errors"`
	RecentErrors int               `json:"recent_errors"`
	DailyErrors  int               `json:"daily_errors"`
	CountsByType map[ErrorType]int `json:"counts_by_type"`
	LastError    *Event            `json:"last_error,omitempty"`
	// EvictedErrors counts events pushed out of the log since the last Reset.
	EvictedErrors int `json:"evicted_errors"`
}

// Log is a fixed-capacity ring of events.
type Log struct {
	events *ring.Buffer[Event]
	now    func() time.Time

	mu      sync.Mutex
	evicted int
}

// NewLog creates a log retaining at most capacity events.
func NewLog(capacity int, now func() time.Time) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Log{
		events: ring.New[Event](capacity),
		now:    now,
	}
}

// Capacity returns the maximum number of retained events.
func (l *Log) Capacity() int { return l.events.Cap() }

// Record appends ev and returns its ID. ID and Timestamp are filled in when
// empty; recovery outcome fields are reset, use RecordOutcome to set them.
func (l *Log) Record(ev Event) string {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	if ev.ErrorType == "" {
		ev.ErrorType = TypeOther
	}
	ev.RecoveryAttempted = false
	ev.RecoverySuccessful = false
	ev.outcomeSet = false

	if l.events.Push(ev) {
		l.mu.Lock()
		l.evicted++
		l.mu.Unlock()
	}
	metrics.TelemetryEvents.WithLabelValues(string(ev.ErrorType)).Inc()
	return ev.ID
}

// RecordError classifies err and records it under operation.
func (l *Log) RecordError(err error, operation string) string {
	if err == nil {
		return ""
	}
	return l.Record(Event{
		RawMessage: err.Error(),
		ErrorType:  TypeOf(err),
		Operation:  operation,
	})
}

// RecordOutcome sets the recovery outcome of the event with the given ID. The
// outcome can be set once; it reports false for unknown, evicted or already
// resolved events.
func (l *Log) RecordOutcome(id string, attempted, successful bool) bool {
	return l.events.Update(
		func(ev Event) bool { return ev.ID == id && !ev.outcomeSet },
		func(ev *Event) {
			ev.RecoveryAttempted = attempted
			ev.RecoverySuccessful = successful
			ev.outcomeSet = true
		},
	)
}

// Events returns the retained events, oldest first.
func (l *Log) Events() []Event {
	return l.events.Items()
}

// Get returns the retained event with the given ID.
func (l *Log) Get(id string) (Event, bool) {
	for _, ev := range l.events.Items() {
		if ev.ID == id {
			return ev, true
		}
	}
	return Event{}, false
}

// Stats computes statistics over the retained events.
func (l *Log) Stats() Stats {
	now := l.now()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	l.mu.Lock()
	evicted := l.evicted
	l.mu.Unlock()

	stats := Stats{
		EvictedErrors: evicted,
		CountsByType: map[ErrorType]int{
			TypeInternal:   0,
			TypeNetwork:    0,
			TypePermission: 0,
			TypeOther:      0,
		},
	}
	for _, ev := range l.events.Items() {
		if ev.Timestamp.After(hourAgo) {
			stats.RecentErrors++
		}
		if ev.Timestamp.After(dayAgo) {
			stats.DailyErrors++
		}
		stats.CountsByType[ev.ErrorType]++
		stats.TotalErrors++
	}
	if last, ok := l.events.Last(); ok {
		stats.LastError = &last
	}
	return stats
}

// Reset drops every retained event and the eviction count.
func (l *Log) Reset() {
	l.events.Reset()
	l.mu.Lock()
	l.evicted = 0
	l.mu.Unlock()
}

// TypeOf buckets err into an ErrorType.
func TypeOf(err error) ErrorType {
	if err == nil {
		return TypeOther
	}
	if classify.IsCatastrophicInternalFailure(err) {
		return TypeInternal
	}
	switch classify.CategoryOf(err) {
	case classify.CategoryNetwork:
		return TypeNetwork
	case classify.CategoryPermission, classify.CategoryAuth:
		return TypePermission
	default:
		return TypeOther
	}
}
