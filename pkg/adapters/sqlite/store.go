// Package sqlite implements the checkpoint store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/threadgraph/pkg/codec"
	"github.com/aretw0/threadgraph/pkg/domain"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	namespace  TEXT NOT NULL,
	thread_id  TEXT NOT NULL,
	messages   BLOB NOT NULL,
	version    INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, thread_id)
);`

// Store implements ports.CheckpointStore using SQLite.
// The version column carries the compare-and-swap guard.
type Store struct {
	db    *sql.DB
	codec codec.Codec
}

type Option func(*Store)

// WithCodec sets the transcript codec (JSON by default).
func WithCodec(c codec.Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// OpenDB opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY under contention.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return db, nil
}

// Open opens the database at path and prepares the schema.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	s, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and creates the checkpoints table if needed.
func New(db *sql.DB, opts ...Option) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	s := &Store{db: db, codec: codec.JSON{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get retrieves the checkpoint for key.
func (s *Store) Get(ctx context.Context, key domain.CheckpointKey) (*domain.Checkpoint, error) {
	var (
		data    []byte
		version int64
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT messages, version, updated_at FROM checkpoints WHERE namespace = ? AND thread_id = ?`,
		key.Namespace, key.ThreadID,
	).Scan(&data, &version, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var msgs []domain.Message
	if err := s.codec.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}

	return &domain.Checkpoint{
		ThreadID:  key.ThreadID,
		Namespace: key.Namespace,
		Messages:  domain.CloneMessages(msgs),
		Version:   version,
		UpdatedAt: time.Unix(0, updated).UTC(),
	}, nil
}

// Put writes the checkpoint if the stored version still equals expectedVersion.
func (s *Store) Put(ctx context.Context, key domain.CheckpointKey, messages []domain.Message, expectedVersion int64) (*domain.Checkpoint, error) {
	cp := &domain.Checkpoint{
		ThreadID:  key.ThreadID,
		Namespace: key.Namespace,
		Messages:  domain.CloneMessages(messages),
		Version:   expectedVersion + 1,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := s.codec.Marshal(cp.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}

	var res sql.Result
	if expectedVersion == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO checkpoints (namespace, thread_id, messages, version, updated_at)
			 VALUES (?, ?, ?, 1, ?)
			 ON CONFLICT (namespace, thread_id) DO NOTHING`,
			key.Namespace, key.ThreadID, data, cp.UpdatedAt.UnixNano())
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE checkpoints SET messages = ?, version = version + 1, updated_at = ?
			 WHERE namespace = ? AND thread_id = ? AND version = ?`,
			data, cp.UpdatedAt.UnixNano(), key.Namespace, key.ThreadID, expectedVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("expected version %d: %w", expectedVersion, domain.ErrVersionConflict)
	}
	return cp, nil
}

// Delete removes the checkpoint for key.
func (s *Store) Delete(ctx context.Context, key domain.CheckpointKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE namespace = ? AND thread_id = ?`, key.Namespace, key.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns the threads checkpointed in namespace, sorted.
func (s *Store) List(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id FROM checkpoints WHERE namespace = ? ORDER BY thread_id`, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	threads := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan thread id: %w", err)
		}
		threads = append(threads, id)
	}
	return threads, rows.Err()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
