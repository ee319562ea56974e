package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/riskctl/internal/record"
)

// CurrentDataVersion is the data schema version written by this build.
//
// Data version tracking:
// 0 - Unversioned data (control identifiers may be non-canonical)
// 1 - Control identifiers migrated to CTRL-NNN
const CurrentDataVersion = 1

// Meta is the content of the meta collection.
type Meta struct {
	DataVersion int       `json:"dataVersion"`
	MigratedAt  time.Time `json:"migratedAt,omitempty"`
}

// Store provides typed access to the risk register collections.
// Every Set call is exactly one Backend.Save.
type Store struct {
	backend Backend
}

// New wraps a backend.
func New(b Backend) *Store {
	return &Store{backend: b}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Close closes the backend.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// Risks loads the risk collection.
func (s *Store) Risks(ctx context.Context) ([]record.Risk, error) {
	return loadCollection[record.Risk](ctx, s.backend, record.CollectionRisks)
}

// SetRisks replaces the risk collection.
func (s *Store) SetRisks(ctx context.Context, risks []record.Risk) error {
	out := make([]record.Risk, len(risks))
	for i, r := range risks {
		if r.ControlRefs == nil {
			r.ControlRefs = record.Refs{}
		}
		out[i] = r
	}
	return saveCollection(ctx, s.backend, record.CollectionRisks, out)
}

// Controls loads the control collection.
func (s *Store) Controls(ctx context.Context) ([]record.Control, error) {
	return loadCollection[record.Control](ctx, s.backend, record.CollectionControls)
}

// SetControls replaces the control collection.
func (s *Store) SetControls(ctx context.Context, controls []record.Control) error {
	out := make([]record.Control, len(controls))
	for i, c := range controls {
		if c.RiskRefs == nil {
			c.RiskRefs = record.Refs{}
		}
		out[i] = c
	}
	return saveCollection(ctx, s.backend, record.CollectionControls, out)
}

// Activity loads the activity log, oldest first.
func (s *Store) Activity(ctx context.Context) ([]record.ActivityEvent, error) {
	return loadCollection[record.ActivityEvent](ctx, s.backend, record.CollectionActivity)
}

// AppendActivity appends one event to the activity log.
func (s *Store) AppendActivity(ctx context.Context, ev record.ActivityEvent) error {
	events, err := s.Activity(ctx)
	if err != nil {
		return err
	}
	events = append(events, ev)
	return saveCollection(ctx, s.backend, record.CollectionActivity, events)
}

// Meta loads the meta collection. An absent collection is DataVersion 0.
func (s *Store) Meta(ctx context.Context) (Meta, error) {
	data, err := s.backend.Load(ctx, record.CollectionMeta)
	if err != nil {
		return Meta{}, fmt.Errorf("load %s: %w", record.CollectionMeta, err)
	}
	var m Meta
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("load %s: %w: %v", record.CollectionMeta, ErrCorrupt, err)
	}
	return m, nil
}

// SetMeta replaces the meta collection.
func (s *Store) SetMeta(ctx context.Context, m Meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("save %s: %w: %v", record.CollectionMeta, ErrSerialization, err)
	}
	if err := s.backend.Save(ctx, record.CollectionMeta, data); err != nil {
		return fmt.Errorf("save %s: %w: %v", record.CollectionMeta, ErrSerialization, err)
	}
	return nil
}

func loadCollection[T any](ctx context.Context, b Backend, name string) ([]T, error) {
	data, err := b.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	if len(data) == 0 {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("load %s: %w: %v", name, ErrCorrupt, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func saveCollection[T any](ctx context.Context, b Backend, name string, records []T) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("save %s: %w: %v", name, ErrSerialization, err)
	}
	if err := b.Save(ctx, name, data); err != nil {
		return fmt.Errorf("save %s: %w: %v", name, ErrSerialization, err)
	}
	return nil
}
