// Package checkpoint provides durable, per-thread checkpoint storage.
//
// Each thread has exactly one current checkpoint. Save overwrites it
// unconditionally; Commit replaces it only with a checkpoint of a higher
// sequence, so a writer holding stale state cannot clobber newer work.
// Implementations never serialize writes for different threads behind a
// shared lock held across I/O.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Store persists thread checkpoints.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the checkpoint for a thread, overwriting any prior value
	// and resetting its sequence to zero.
	Save(ctx context.Context, threadID string, data []byte) error

	// Commit stores the checkpoint for a thread if sequence is greater than
	// the sequence of the stored one. Returns ErrStaleSequence otherwise.
	Commit(ctx context.Context, threadID string, sequence int, data []byte) error

	// Load retrieves the checkpoint for a thread.
	// Returns ErrNotFound if the thread has no checkpoint.
	Load(ctx context.Context, threadID string) ([]byte, error)

	// List returns metadata for every stored thread. Ordering is
	// implementation-defined. Returns an empty slice (not error) if the
	// store is empty.
	List(ctx context.Context) ([]Info, error)

	// Delete removes a thread's checkpoint.
	// Returns nil if the thread has no checkpoint.
	Delete(ctx context.Context, threadID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading full state.
type Info struct {
	ThreadID  string
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrStaleSequence indicates a commit lost to a newer checkpoint.
	ErrStaleSequence = errors.New("checkpoint sequence is stale")
)
