package ports

import (
	"context"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// Conversation is the engine surface used by inbound adapters (HTTP, MCP, CLI).
// Namespaces are resolved by the engine; adapters only deal with thread IDs.
type Conversation interface {
	// Run executes one turn for the thread and returns the assistant reply.
	Run(ctx context.Context, threadID, text string) (string, error)

	// History returns the committed transcript of a thread.
	History(ctx context.Context, threadID string) (*domain.Checkpoint, error)

	// Reset deletes the thread's checkpoint.
	Reset(ctx context.Context, threadID string) error

	// Threads lists the threads that have a checkpoint.
	Threads(ctx context.Context) ([]string, error)
}
