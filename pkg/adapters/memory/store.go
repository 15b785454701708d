package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// Store implements ports.CheckpointStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.CheckpointKey]*domain.Checkpoint
	mu   sync.RWMutex
	now  func() time.Time
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.CheckpointKey]*domain.Checkpoint),
		now:  time.Now,
	}
}

// Get retrieves the checkpoint from memory.
func (s *Store) Get(ctx context.Context, key domain.CheckpointKey) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[key]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}

	// Copy on read so callers can't mutate the stored transcript through the pointer.
	ret := *cp
	ret.Messages = domain.CloneMessages(cp.Messages)
	return &ret, nil
}

// Put writes the checkpoint if the stored version still equals expectedVersion.
func (s *Store) Put(ctx context.Context, key domain.CheckpointKey, messages []domain.Message, expectedVersion int64) (*domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if cp, ok := s.data[key]; ok {
		current = cp.Version
	}
	if current != expectedVersion {
		return nil, domain.ErrVersionConflict
	}

	cp := &domain.Checkpoint{
		ThreadID:  key.ThreadID,
		Namespace: key.Namespace,
		Messages:  domain.CloneMessages(messages),
		Version:   current + 1,
		UpdatedAt: s.now(),
	}
	s.data[key] = cp

	ret := *cp
	ret.Messages = domain.CloneMessages(cp.Messages)
	return &ret, nil
}

// Delete removes the checkpoint.
func (s *Store) Delete(ctx context.Context, key domain.CheckpointKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List returns the threads checkpointed in namespace, sorted.
func (s *Store) List(ctx context.Context, namespace string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := make([]string, 0)
	for k := range s.data {
		if k.Namespace == namespace {
			threads = append(threads, k.ThreadID)
		}
	}
	sort.Strings(threads)
	return threads, nil
}
