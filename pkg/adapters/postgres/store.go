// Package postgres implements the checkpoint store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/threadgraph/pkg/codec"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements ports.CheckpointStore for PostgreSQL.
type Store struct {
	pool      *pgxpool.Pool
	codec     codec.Codec
	tableName string
}

type Option func(*Store)

// WithCodec sets the transcript codec (JSON by default).
func WithCodec(c codec.Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// WithTable overrides the table name (default "checkpoints").
func WithTable(name string) Option {
	return func(s *Store) {
		s.tableName = name
	}
}

// Connect opens a pool for dsn and prepares the schema.
func Connect(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s := New(pool, opts...)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New creates a store on an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:      pool,
		codec:     codec.JSON{},
		tableName: "checkpoints",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the checkpoints table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			namespace  TEXT NOT NULL,
			thread_id  TEXT NOT NULL,
			messages   BYTEA NOT NULL,
			version    BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (namespace, thread_id)
		)`, s.tableName)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

// Get retrieves the checkpoint for key.
func (s *Store) Get(ctx context.Context, key domain.CheckpointKey) (*domain.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT messages, version, updated_at
		FROM %s
		WHERE namespace = $1 AND thread_id = $2
	`, s.tableName)

	cp := domain.Checkpoint{ThreadID: key.ThreadID, Namespace: key.Namespace}
	var data []byte
	err := s.pool.QueryRow(ctx, query, key.Namespace, key.ThreadID).Scan(&data, &cp.Version, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := s.codec.Unmarshal(data, &cp.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	cp.Messages = domain.CloneMessages(cp.Messages)
	return &cp, nil
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

	var query string
	var args []any
	if expectedVersion == 0 {
		query = fmt.Sprintf(`
			INSERT INTO %s (namespace, thread_id, messages, version, updated_at)
			VALUES ($1, $2, $3, 1, $4)
			ON CONFLICT (namespace, thread_id) DO NOTHING
		`, s.tableName)
		args = []any{key.Namespace, key.ThreadID, data, cp.UpdatedAt}
	} else {
		query = fmt.Sprintf(`
			UPDATE %s SET messages = $1, version = version + 1, updated_at = $2
			WHERE namespace = $3 AND thread_id = $4 AND version = $5
		`, s.tableName)
		args = []any{data, cp.UpdatedAt, key.Namespace, key.ThreadID, expectedVersion}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("expected version %d: %w", expectedVersion, domain.ErrVersionConflict)
	}
	return cp, nil
}

// Delete removes the checkpoint for key.
func (s *Store) Delete(ctx context.Context, key domain.CheckpointKey) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND thread_id = $2", s.tableName)
	if _, err := s.pool.Exec(ctx, query, key.Namespace, key.ThreadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns the threads checkpointed in namespace, sorted.
func (s *Store) List(ctx context.Context, namespace string) ([]string, error) {
	query := fmt.Sprintf("SELECT thread_id FROM %s WHERE namespace = $1 ORDER BY thread_id", s.tableName)
	rows, err := s.pool.Query(ctx, query, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	threads, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan thread ids: %w", err)
	}
	if threads == nil {
		threads = []string{}
	}
	return threads, nil
}

// Ping checks connectivity with the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
