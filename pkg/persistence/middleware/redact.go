package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
)

// Mask replaces redacted spans in persisted transcripts.
const Mask = "***"

type redactMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewRedaction creates a middleware that masks every match of the patterns in message
// content before the transcript reaches the store. The caller's slice is not modified.
// Invalid patterns panic, like regexp.MustCompile.
func NewRedaction(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &redactMiddleware{next: next, patterns: patterns}
	}
}

func (m *redactMiddleware) Put(ctx context.Context, key domain.CheckpointKey, messages []domain.Message, expectedVersion int64) (*domain.Checkpoint, error) {
	masked := domain.CloneMessages(messages)
	for i := range masked {
		for _, p := range m.patterns {
			masked[i].Content = p.ReplaceAllString(masked[i].Content, Mask)
		}
	}
	return m.next.Put(ctx, key, masked, expectedVersion)
}

func (m *redactMiddleware) Get(ctx context.Context, key domain.CheckpointKey) (*domain.Checkpoint, error) {
	return m.next.Get(ctx, key)
}

func (m *redactMiddleware) Delete(ctx context.Context, key domain.CheckpointKey) error {
	return m.next.Delete(ctx, key)
}

func (m *redactMiddleware) List(ctx context.Context, namespace string) ([]string, error) {
	return m.next.List(ctx, namespace)
}
