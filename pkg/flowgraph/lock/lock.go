// Package lock serializes work per key.
//
// Keyed gives each key its own slot inside one process and removes the
// entry once nobody holds or waits on it. A Distributed locker extends the
// guarantee across processes that share a backend; Keyed renews the lease
// while the work runs and cancels the work if the lease is lost.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrLockLost indicates a distributed lease expired or passed to another
// holder before the work finished.
var ErrLockLost = errors.New("distributed lock lost")

// Lease is a held distributed lock.
type Lease interface {
	// Renew extends the lease to ttl from now. Returns ErrLockLost if the
	// lock is no longer held by this lease.
	Renew(ctx context.Context, ttl time.Duration) error

	// Release frees the lock if this lease still holds it.
	Release(ctx context.Context) error
}

// Distributed coordinates access to a key across processes.
type Distributed interface {
	// Lock blocks until the lock for key is held or ctx is done.
	// The returned Lease must be released.
	Lock(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// entry holds a one-slot semaphore and the number of goroutines using it.
type entry struct {
	sem  chan struct{}
	refs int
}

// Keyed is a table of per-key locks with reference counting.
// Different keys never contend with each other.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry

	remote Distributed
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Keyed lock table.
type Option func(*Keyed)

// WithDistributed layers a cross-process lock under the local one.
func WithDistributed(d Distributed, ttl time.Duration) Option {
	return func(k *Keyed) {
		k.remote = d
		if ttl > 0 {
			k.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for renewal and release failures.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Keyed) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// NewKeyed creates an empty lock table.
func NewKeyed(opts ...Option) *Keyed {
	k := &Keyed{
		entries: make(map[string]*entry),
		ttl:     30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// acquire gets or creates the entry for key and takes a reference.
func (k *Keyed) acquire(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

// release drops a reference and deletes the entry when unused.
func (k *Keyed) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(k.entries, key)
	}
}

// WithLock runs fn while holding the lock for key. Waiting stops when ctx
// is done. With a distributed locker, the context passed to fn is
// cancelled with ErrLockLost as its cause if the lease cannot be renewed.
func (k *Keyed) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	e := k.acquire(key)
	defer k.release(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	if k.remote == nil {
		return fn(ctx)
	}

	lease, err := k.remote.Lock(ctx, key, k.ttl)
	if err != nil {
		return fmt.Errorf("acquire distributed lock: %w", err)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	stop := k.keepAlive(runCtx, cancel, key, lease)
	defer func() {
		stop()
		cancel(nil)
		// Release with a fresh context so a cancelled request still frees the key.
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			k.logger.Warn("failed to release distributed lock (will expire via TTL)",
				"key", key,
				"error", err,
			)
		}
	}()

	return fn(runCtx)
}

// keepAlive renews lease every third of the TTL until stop is called.
// A transient renewal error is retried on the next tick; the work is
// cancelled once the lease is reported lost or a full TTL passes without a
// successful renewal.
func (k *Keyed) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, key string, lease Lease) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(max(k.ttl/3, time.Millisecond))
		defer ticker.Stop()

		renewed := time.Now()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			err := lease.Renew(ctx, k.ttl)
			if err == nil {
				renewed = time.Now()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, ErrLockLost) && time.Since(renewed) < k.ttl {
				k.logger.Warn("distributed lock renewal failed, retrying",
					"key", key,
					"error", err,
				)
				continue
			}

			k.logger.Error("distributed lock lost, cancelling work",
				"key", key,
				"error", err,
			)
			if !errors.Is(err, ErrLockLost) {
				err = fmt.Errorf("%w: %v", ErrLockLost, err)
			}
			cancel(err)
			return
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// Len returns the number of live entries. Useful for leak tests.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
