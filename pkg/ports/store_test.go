package ports_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
)

// MockStore is a minimal map-backed CheckpointStore used to exercise the contract suite itself.
type MockStore struct {
	mu   sync.Mutex
	data map[domain.CheckpointKey]domain.Checkpoint
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[domain.CheckpointKey]domain.Checkpoint)}
}

func (m *MockStore) Get(ctx context.Context, key domain.CheckpointKey) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.data[key]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	cp.Messages = domain.CloneMessages(cp.Messages)
	return &cp, nil
}

func (m *MockStore) Put(ctx context.Context, key domain.CheckpointKey, msgs []domain.Message, expected int64) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key].Version != expected {
		return nil, domain.ErrVersionConflict
	}
	cp := domain.Checkpoint{
		ThreadID:  key.ThreadID,
		Namespace: key.Namespace,
		Messages:  domain.CloneMessages(msgs),
		Version:   expected + 1,
		UpdatedAt: time.Now(),
	}
	m.data[key] = cp
	return &cp, nil
}

func (m *MockStore) Delete(ctx context.Context, key domain.CheckpointKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MockStore) List(ctx context.Context, namespace string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		if k.Namespace == namespace {
			out = append(out, k.ThreadID)
		}
	}
	return out, nil
}

func TestCheckpointStore_Contract(t *testing.T) {
	// This verifies the contract suite against a trivially correct store.
	// Adapters run the same suite in their own packages.
	ports.RunCheckpointStoreContract(t, NewMockStore())
}
