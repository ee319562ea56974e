package store

import (
	"context"
	"errors"
)

// Sentinel errors. Backends wrap these so callers can use errors.Is.
var (
	// ErrSerialization means a collection could not be encoded or persisted
	// (encoding failure, quota, I/O). The write did not happen.
	ErrSerialization = errors.New("serialization failure")

	// ErrCorrupt means a stored collection could not be decoded.
	ErrCorrupt = errors.New("corrupt collection")

	// ErrClosed is returned by backends used after Close.
	ErrClosed = errors.New("store closed")
)

// Backend is the raw key-value document layer: one opaque document per
// collection name.
type Backend interface {
	// Load returns the stored document, or nil with no error when the
	// collection has never been written.
	Load(ctx context.Context, collection string) ([]byte, error)

	// Save replaces the collection's document.
	Save(ctx context.Context, collection string, data []byte) error

	// Close releases backend resources.
	Close() error
}
