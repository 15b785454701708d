// Package llm adapts eino chat models to the engine's Completer port.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/threadgraph/internal/logging"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Supported providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config selects and configures a chat model provider.
type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	// Timeout is the HTTP client timeout. The engine applies its own per-call deadline too.
	Timeout     time.Duration
	MaxTokens   int
	// Temperature is sent only when set, so zero stays expressible.
	Temperature *float64
}

// Completer implements ports.Completer on top of an eino chat model.
type Completer struct {
	model  model.BaseChatModel
	name   string
	logger *slog.Logger
}

// Option configures the Completer.
type Option func(*Completer)

// WithLogger sets the logger used for call diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Completer) { c.logger = logger }
}

// WithName labels the model in logs.
func WithName(name string) Option {
	return func(c *Completer) { c.name = name }
}

// New wraps an existing chat model.
func New(m model.BaseChatModel, opts ...Option) *Completer {
	c := &Completer{model: m, name: "chat-model", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds the chat model for cfg.Provider.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Completer, error) {
	var (
		m   model.BaseChatModel
		err error
	)
	switch cfg.Provider {
	case "", ProviderOllama:
		m, err = ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case ProviderOpenAI:
		m, err = openai.NewChatModel(ctx, openAIConfig(cfg))
	default:
		return nil, fmt.Errorf("unknown llm provider %q (expected %s or %s)", cfg.Provider, ProviderOllama, ProviderOpenAI)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating %s chat model: %w", cfg.Provider, err)
	}

	opts = append([]Option{WithName(cfg.Provider + "/" + cfg.Model)}, opts...)
	return New(m, opts...), nil
}

func openAIConfig(cfg Config) *openai.ChatModelConfig {
	oc := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		oc.MaxTokens = &maxTokens
	}
	if cfg.Temperature != nil {
		temperature := float32(*cfg.Temperature)
		oc.Temperature = &temperature
	}
	return oc
}

// Complete sends the prompt and returns the assistant reply.
func (c *Completer) Complete(ctx context.Context, prompt []domain.Message) (domain.Message, error) {
	in, err := toSchema(prompt)
	if err != nil {
		return domain.Message{}, err
	}

	start := time.Now()
	out, err := c.model.Generate(ctx, in)
	if err != nil {
		c.logger.Warn("chat model call failed", "model", c.name, "duration", time.Since(start), "err", err)
		return domain.Message{}, fmt.Errorf("%s: %w", c.name, err)
	}
	if out == nil {
		return domain.Message{}, errors.New(c.name + ": no message returned")
	}
	c.logger.Debug("chat model call", "model", c.name, "duration", time.Since(start), "prompt_messages", len(in))

	return domain.AssistantMessage(out.Content), nil
}

func toSchema(msgs []domain.Message) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case domain.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}
