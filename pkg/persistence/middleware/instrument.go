package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
)

// Observer receives the outcome of every store operation.
type Observer func(op string, duration time.Duration, err error)

type instrumented struct {
	next     ports.CheckpointStore
	logger   *slog.Logger
	observer Observer
}

// NewInstrumentation logs failed store operations and reports durations to observer.
// Either argument may be nil.
func NewInstrumentation(logger *slog.Logger, observer Observer) Middleware {
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &instrumented{next: next, logger: logger, observer: observer}
	}
}

func (m *instrumented) done(ctx context.Context, op string, key string, start time.Time, err error) {
	d := time.Since(start)
	if m.observer != nil {
		m.observer(op, d, err)
	}
	if m.logger == nil || err == nil || errors.Is(err, domain.ErrCheckpointNotFound) {
		return
	}
	level := slog.LevelError
	if errors.Is(err, domain.ErrVersionConflict) {
		level = slog.LevelWarn
	}
	m.logger.Log(ctx, level, "Checkpoint store operation failed", "op", op, "key", key, "duration", d, "err", err)
}

func (m *instrumented) Get(ctx context.Context, key domain.CheckpointKey) (*domain.Checkpoint, error) {
	start := time.Now()
	cp, err := m.next.Get(ctx, key)
	m.done(ctx, "get", key.String(), start, err)
	return cp, err
}

func (m *instrumented) Put(ctx context.Context, key domain.CheckpointKey, messages []domain.Message, expectedVersion int64) (*domain.Checkpoint, error) {
	start := time.Now()
	cp, err := m.next.Put(ctx, key, messages, expectedVersion)
	m.done(ctx, "put", key.String(), start, err)
	return cp, err
}

func (m *instrumented) Delete(ctx context.Context, key domain.CheckpointKey) error {
	start := time.Now()
	err := m.next.Delete(ctx, key)
	m.done(ctx, "delete", key.String(), start, err)
	return err
}

func (m *instrumented) List(ctx context.Context, namespace string) ([]string, error) {
	start := time.Now()
	threads, err := m.next.List(ctx, namespace)
	m.done(ctx, "list", namespace, start, err)
	return threads, err
}
