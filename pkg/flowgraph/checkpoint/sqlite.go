package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// busyTimeout is how long a writer waits on another connection's lock
// before SQLite reports SQLITE_BUSY.
const busyTimeout = 5 * time.Second

// SQLiteStore persists checkpoints to SQLite.
//
// Several processes on one host may open the same database file: writers
// wait up to busyTimeout for each other, and Commit is a conditional upsert
// so a process holding stale state gets ErrStaleSequence instead of
// overwriting a newer checkpoint. SQLite does not serialize whole runs of a
// thread across processes; use a distributed lock for that.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex // guards closed; held shared during queries
	closed bool
}

// NewSQLiteStore creates a new SQLite checkpoint store.
// The path should be a file path (e.g., "./checkpoints.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and avoids
	// SQLITE_BUSY between pooled writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS thread_checkpoints (
			thread_id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			sequence INTEGER NOT NULL DEFAULT 0,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, threadID string, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_checkpoints (thread_id, timestamp, sequence, data)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			timestamp = excluded.timestamp,
			sequence = 0,
			data = excluded.data
	`, threadID, time.Now().UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Commit implements Store.
func (s *SQLiteStore) Commit(ctx context.Context, threadID string, sequence int, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_checkpoints (thread_id, timestamp, sequence, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			timestamp = excluded.timestamp,
			sequence = excluded.sequence,
			data = excluded.data
		WHERE thread_checkpoints.sequence < excluded.sequence
	`, threadID, time.Now().UTC().Format(time.RFC3339Nano), sequence, data)
	if err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: thread %s, commit %d", ErrStaleSequence, threadID, sequence)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM thread_checkpoints WHERE thread_id = ?
	`, threadID).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return data, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, timestamp, LENGTH(data)
		FROM thread_checkpoints
		ORDER BY timestamp DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var info Info
		var timestamp string
		if err := rows.Scan(&info.ThreadID, &timestamp, &info.Size); err != nil {
			return nil, fmt.Errorf("scan checkpoint info: %w", err)
		}
		info.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM thread_checkpoints WHERE thread_id = ?
	`, threadID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
