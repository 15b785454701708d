package ports

import (
	"context"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// Completer is the language capability consumed by the responder node.
// Given an ordered, role-tagged prompt it returns a single assistant message.
type Completer interface {
	Complete(ctx context.Context, prompt []domain.Message) (domain.Message, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt []domain.Message) (domain.Message, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt []domain.Message) (domain.Message, error) {
	return f(ctx, prompt)
}
