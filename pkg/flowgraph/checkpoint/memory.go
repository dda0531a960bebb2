package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is an in-memory checkpoint store.
// Data is lost when the process exits. Threads are stored in a sync.Map so
// commits for different threads never contend on a shared mutex.
type MemoryStore struct {
	data   sync.Map // threadID -> *storedCheckpoint
	closed atomic.Bool
}

// storedCheckpoint holds checkpoint data with metadata for List().
// Values are never mutated once stored.
type storedCheckpoint struct {
	data      []byte
	sequence  int
	timestamp time.Time
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func newStored(data []byte, sequence int) *storedCheckpoint {
	// Copy data to avoid retaining caller's slice
	stored := make([]byte, len(data))
	copy(stored, data)
	return &storedCheckpoint{
		data:      stored,
		sequence:  sequence,
		timestamp: time.Now().UTC(),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, threadID string, data []byte) error {
	if m.closed.Load() {
		return ErrStoreClosed
	}
	m.data.Store(threadID, newStored(data, 0))
	return nil
}

// Commit implements Store.
func (m *MemoryStore) Commit(_ context.Context, threadID string, sequence int, data []byte) error {
	if m.closed.Load() {
		return ErrStoreClosed
	}

	next := newStored(data, sequence)
	for {
		prev, loaded := m.data.LoadOrStore(threadID, next)
		if !loaded {
			return nil
		}
		cur := prev.(*storedCheckpoint)
		if cur.sequence >= sequence {
			return fmt.Errorf("%w: thread %s at %d, commit %d", ErrStaleSequence, threadID, cur.sequence, sequence)
		}
		if m.data.CompareAndSwap(threadID, prev, next) {
			return nil
		}
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, threadID string) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrStoreClosed
	}

	v, ok := m.data.Load(threadID)
	if !ok {
		return nil, ErrNotFound
	}
	cp := v.(*storedCheckpoint)

	result := make([]byte, len(cp.data))
	copy(result, cp.data)
	return result, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]Info, error) {
	if m.closed.Load() {
		return nil, ErrStoreClosed
	}

	infos := []Info{}
	m.data.Range(func(k, v any) bool {
		cp := v.(*storedCheckpoint)
		infos = append(infos, Info{
			ThreadID:  k.(string),
			Timestamp: cp.timestamp,
			Size:      int64(len(cp.data)),
		})
		return true
	})

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, threadID string) error {
	if m.closed.Load() {
		return ErrStoreClosed
	}
	m.data.Delete(threadID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.closed.Store(true)
	m.data.Range(func(k, _ any) bool {
		m.data.Delete(k)
		return true
	})
	return nil
}

// Len returns the number of stored threads.
func (m *MemoryStore) Len() int {
	n := 0
	m.data.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
