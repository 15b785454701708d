package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/threadgraph/pkg/codec"
	"github.com/aretw0/threadgraph/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "threadgraph:"

// noExpiryScore is the index score used for checkpoints without TTL (2100-01-01).
const noExpiryScore = 4102444800

// Store implements ports.CheckpointStore using Redis.
// Writes are guarded by WATCH/MULTI so that concurrent writers of one thread
// cannot silently overwrite each other.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	codec  codec.Codec
}

type Option func(*Store)

// WithTTL sets the expiration for checkpoints.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for checkpoints.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithCodec sets the payload codec (JSON by default).
func WithCodec(c codec.Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		ttl:    0, // No expiration by default
		codec:  codec.JSON{},
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the underlying client so a Locker can share the connection pool.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(k domain.CheckpointKey) string {
	return s.prefix + "thread:" + k.Namespace + ":" + k.ThreadID
}

func (s *Store) indexKey(namespace string) string {
	return s.prefix + "index:" + namespace
}

// Get retrieves the checkpoint from Redis.
func (s *Store) Get(ctx context.Context, key domain.CheckpointKey) (*domain.Checkpoint, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return s.decode(val)
}

// Put writes the checkpoint if the stored version still equals expectedVersion.
func (s *Store) Put(ctx context.Context, key domain.CheckpointKey, messages []domain.Message, expectedVersion int64) (*domain.Checkpoint, error) {
	redisKey := s.key(key)
	var written *domain.Checkpoint

	txf := func(tx *backend.Tx) error {
		var current int64
		raw, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, backend.Nil):
		case err != nil:
			return fmt.Errorf("failed to read current version: %w", err)
		default:
			cp, err := s.decode(raw)
			if err != nil {
				return err
			}
			current = cp.Version
		}

		if current != expectedVersion {
			return fmt.Errorf("expected version %d, found %d: %w", expectedVersion, current, domain.ErrVersionConflict)
		}

		cp := &domain.Checkpoint{
			ThreadID:  key.ThreadID,
			Namespace: key.Namespace,
			Messages:  domain.CloneMessages(messages),
			Version:   current + 1,
			UpdatedAt: time.Now().UTC(),
		}
		data, err := s.codec.Marshal(cp)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint: %w", err)
		}

		// Score = Now + TTL. If TTL = 0, the member never expires from the index.
		score := float64(time.Now().Add(s.ttl).Unix())
		if s.ttl == 0 {
			score = noExpiryScore
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, s.ttl)
			pipe.ZAdd(ctx, s.indexKey(key.Namespace), backend.Z{Score: score, Member: key.ThreadID})
			return nil
		})
		if err != nil {
			return err
		}
		written = cp
		return nil
	}

	err := s.client.Watch(ctx, txf, redisKey)
	switch {
	case err == nil:
		return written, nil
	case errors.Is(err, backend.TxFailedErr):
		return nil, fmt.Errorf("key modified during write: %w", domain.ErrVersionConflict)
	case errors.Is(err, domain.ErrVersionConflict):
		return nil, err
	}
	return nil, fmt.Errorf("failed to save to redis: %w", err)
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, key domain.CheckpointKey) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.key(key))
	pipe.ZRem(ctx, s.indexKey(key.Namespace), key.ThreadID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List returns the threads of a namespace, lazily pruning expired index entries.
func (s *Store) List(ctx context.Context, namespace string) ([]string, error) {
	now := float64(time.Now().Unix())

	err := s.client.ZRemRangeByScore(ctx, s.indexKey(namespace), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired threads: %w", err)
	}

	threads, err := s.client.ZRange(ctx, s.indexKey(namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	return threads, nil
}

// Ping checks connectivity with the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) decode(raw []byte) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	if err := s.codec.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	cp.Messages = domain.CloneMessages(cp.Messages)
	return &cp, nil
}
