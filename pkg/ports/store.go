package ports

import (
	"context"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// CheckpointStore defines the interface for persisting thread transcripts.
// This allows for durable conversations that resume across requests and restarts.
type CheckpointStore interface {
	// Get retrieves the checkpoint for a key.
	// Returns domain.ErrCheckpointNotFound if the thread has no checkpoint yet.
	Get(ctx context.Context, key domain.CheckpointKey) (*domain.Checkpoint, error)

	// Put atomically overwrites the checkpoint for a key with messages, provided the stored
	// version still equals expectedVersion (0 means "must not exist yet").
	// Returns the written checkpoint, or domain.ErrVersionConflict if another writer won.
	Put(ctx context.Context, key domain.CheckpointKey, messages []domain.Message, expectedVersion int64) (*domain.Checkpoint, error)

	// Delete removes the checkpoint for a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key domain.CheckpointKey) error

	// List returns the thread IDs that have a checkpoint in namespace.
	List(ctx context.Context, namespace string) ([]string, error)
}
