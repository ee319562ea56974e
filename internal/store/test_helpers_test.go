package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// createTestSQLite creates a new SQLite backend in a temp directory.
func createTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestBadger creates an in-memory Badger backend.
func createTestBadger(t *testing.T) *Badger {
	t.Helper()
	b, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger() failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// createTestRedis creates a Redis backend against miniredis.
func createTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewRedis(client, "test")
	t.Cleanup(func() { r.Close() })
	return r, mr
}

// failingBackend fails every Save and optionally every Load.
type failingBackend struct {
	Backend
	failLoad bool
}

var errQuota = errors.New("quota exceeded")

func (f *failingBackend) Load(ctx context.Context, collection string) ([]byte, error) {
	if f.failLoad {
		return nil, errQuota
	}
	return f.Backend.Load(ctx, collection)
}

func (f *failingBackend) Save(context.Context, string, []byte) error {
	return errQuota
}
