package storage

import (
	"context"
	"fmt"
	"sync"
)

// Collection names. These match the blob keys used by earlier versions of
// the dashboard, so exported data can be imported as-is.
const (
	FeedbackCollection = "apex_db_feedback"
	UsersCollection    = "apex_db_users"
)

// Blob is the serialized content of one named collection together with the
// version it was read at. A missing collection reads as an empty blob at
// version 0.
type Blob struct {
	Data    []byte
	Version int64
}

// Backend stores whole collections as opaque blobs. Put is a compare-and-swap:
// it only succeeds when the stored version still equals expect, and returns
// ErrConflict otherwise.
type Backend interface {
	Get(ctx context.Context, collection string) (Blob, error)
	Put(ctx context.Context, collection string, data []byte, expect int64) (int64, error)
	Delete(ctx context.Context, collection string) error
	Close() error
}

// Compile-time check that MemoryBackend implements Backend.
var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps collections in process memory.
type MemoryBackend struct {
	mu    sync.Mutex
	blobs map[string]Blob
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string]Blob)}
}

func (m *MemoryBackend) Get(_ context.Context, collection string) (Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.blobs[collection]
	return Blob{Data: append([]byte(nil), b.Data...), Version: b.Version}, nil
}

func (m *MemoryBackend) Put(_ context.Context, collection string, data []byte, expect int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.blobs[collection]
	if cur.Version != expect {
		return 0, fmt.Errorf("%s at version %d, expected %d: %w", collection, cur.Version, expect, ErrConflict)
	}
	next := Blob{Data: append([]byte(nil), data...), Version: expect + 1}
	m.blobs[collection] = next
	return next.Version, nil
}

func (m *MemoryBackend) Delete(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, collection)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
