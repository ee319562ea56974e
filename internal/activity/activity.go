// Package activity records primary mutations in the activity log.
//
// The log is append-only and advisory: a failure to record never undoes or
// fails the mutation that triggered it.
package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/riskctl/internal/record"
	"github.com/roach88/riskctl/internal/store"
)

// Event is one activity log entry.
type Event = record.ActivityEvent

// Recorder accepts activity events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// New builds an event for one primary mutation. ID and At are filled in by
// the recorder when empty.
func New(action string, kind record.Kind, id, name string) Event {
	meta := map[string]string{"id": id}
	return Event{
		Domain:     record.ActivityDomain,
		Action:     action,
		EntityKind: kind,
		Name:       name,
		Metadata:   meta,
	}
}

// StoreRecorder appends events to the store's activity collection.
type StoreRecorder struct {
	st  *store.Store
	now func() time.Time
}

// NewStoreRecorder creates a recorder writing to st. A nil now uses time.Now.
func NewStoreRecorder(st *store.Store, now func() time.Time) *StoreRecorder {
	if now == nil {
		now = time.Now
	}
	return &StoreRecorder{st: st, now: now}
}

// Record implements Recorder. Event IDs are UUIDv7 so the log sorts by time.
func (r *StoreRecorder) Record(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		ev.ID = id.String()
	}
	if ev.At.IsZero() {
		ev.At = r.now().UTC()
	}
	if ev.Domain == "" {
		ev.Domain = record.ActivityDomain
	}
	return r.st.AppendActivity(ctx, ev)
}

// MemoryRecorder keeps events in memory. Used by tests and dry runs.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

// Record implements Recorder.
func (m *MemoryRecorder) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Safe records ev and logs instead of returning any failure.
func Safe(ctx context.Context, r Recorder, logger *slog.Logger, ev Event) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, ev); err != nil {
		logger.Warn("activity not recorded",
			"action", ev.Action,
			"kind", ev.EntityKind,
			"name", ev.Name,
			"error", err)
	}
}
