package testutil

import (
	"context"
	"sync"
)

// MemoryBackend is a map-backed store.Backend for tests.
type MemoryBackend struct {
	mu     sync.Mutex
	docs   map[string][]byte
	closed bool
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

// Load returns a copy of the stored document, nil when absent.
func (m *MemoryBackend) Load(_ context.Context, collection string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[collection]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// Save replaces the document.
func (m *MemoryBackend) Save(_ context.Context, collection string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[collection] = append([]byte(nil), data...)
	return nil
}

// Close marks the backend closed. Documents stay readable.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Raw returns the stored bytes of a collection as a string.
func (m *MemoryBackend) Raw(collection string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.docs[collection])
}

// Backend is the subset of store.Backend CountingBackend wraps. Declared
// here so testutil does not import store.
type Backend interface {
	Load(ctx context.Context, collection string) ([]byte, error)
	Save(ctx context.Context, collection string, data []byte) error
	Close() error
}

// CountingBackend wraps a backend, counting saves per collection and
// optionally failing saves of chosen collections.
type CountingBackend struct {
	Backend

	mu       sync.Mutex
	saves    map[string]int
	failures map[string]error
}

// NewCountingBackend wraps b. A nil b wraps a fresh MemoryBackend.
func NewCountingBackend(b Backend) *CountingBackend {
	if b == nil {
		b = NewMemoryBackend()
	}
	return &CountingBackend{
		Backend:  b,
		saves:    make(map[string]int),
		failures: make(map[string]error),
	}
}

// Save counts the call, then fails or delegates.
func (c *CountingBackend) Save(ctx context.Context, collection string, data []byte) error {
	c.mu.Lock()
	err := c.failures[collection]
	if err == nil {
		c.saves[collection]++
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Backend.Save(ctx, collection, data)
}

// FailSaves makes every later save of collection return err. A nil err
// clears the failure.
func (c *CountingBackend) FailSaves(collection string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, collection)
		return
	}
	c.failures[collection] = err
}

// Saves returns the number of successful saves of collection.
func (c *CountingBackend) Saves(collection string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves[collection]
}

// ResetCounts zeroes every counter.
func (c *CountingBackend) ResetCounts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = make(map[string]int)
}
