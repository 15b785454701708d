// Package graph executes one conversation turn over the fixed node graph and commits
// the resulting transcript to the checkpoint store.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/aretw0/threadgraph/internal/arith"
	"github.com/aretw0/threadgraph/internal/logging"
	"github.com/aretw0/threadgraph/internal/router"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/aretw0/threadgraph/pkg/registry"
	"github.com/aretw0/threadgraph/pkg/session"
)

const (
	// DefaultSystemPrompt is the fixed instruction that opens every prompt.
	DefaultSystemPrompt = "You are a helpful assistant. If a tool result is provided, use it in your answer."

	// DefaultCompletionTimeout bounds a single model call.
	DefaultCompletionTimeout = 60 * time.Second

	// MaxThreadIDLength and MaxMessageLength bound request sizes.
	MaxThreadIDLength = 256
	MaxMessageLength  = 32 * 1024

	defaultMaxSteps = 16

	// lockMargin covers the store round trips around the model call.
	lockMargin = 15 * time.Second
)

// Engine drives a thread's state from entry to terminal and checkpoints it.
// It is safe for concurrent use; turns of the same thread are serialized.
type Engine struct {
	sessions  *session.Manager
	store     ports.CheckpointStore
	completer ports.Completer

	router       *router.Router
	tools        *registry.Registry
	toolName     string
	systemPrompt string
	timeout      time.Duration
	namespace    string

	topology  Topology
	nodes     map[domain.NodeID]nodeFunc
	maxSteps  int
	serialize bool

	locker  ports.DistributedLocker
	lockTTL time.Duration
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithRouter replaces the default keyword router.
func WithRouter(r *router.Router) Option {
	return func(e *Engine) { e.router = r }
}

// WithRegistry sets the tool registry. The arithmetic tool is registered by default.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) { e.tools = r }
}

// WithToolName selects which registered tool the tool node runs.
func WithToolName(name string) Option {
	return func(e *Engine) { e.toolName = name }
}

// WithSystemPrompt overrides the instruction sent ahead of the transcript.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) { e.systemPrompt = prompt }
}

// WithCompletionTimeout bounds each model call. Zero disables the bound.
func WithCompletionTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithNamespace sets the checkpoint namespace used by Run, History, Reset and Threads.
func WithNamespace(ns string) Option {
	return func(e *Engine) { e.namespace = ns }
}

// WithTopology replaces the transition table.
func WithTopology(t Topology) Option {
	return func(e *Engine) { e.topology = t }
}

// WithMaxSteps bounds the number of node executions per turn.
func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.maxSteps = n }
}

// WithSerialization toggles the per-thread lock around a turn. When disabled, concurrent
// turns of one thread race and all but one fail with domain.ErrVersionConflict.
func WithSerialization(enabled bool) Option {
	return func(e *Engine) { e.serialize = enabled }
}

// WithLocker adds a distributed lock so turns are serialized across replicas.
// A zero ttl leases the lock for the completion timeout plus a margin, never less
// than session.DefaultLockTTL.
func WithLocker(l ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		e.lockTTL = ttl
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = e.hooks.Merge(hooks) }
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an engine. store and completer are required.
func New(store ports.CheckpointStore, completer ports.Completer, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if completer == nil {
		return nil, errors.New("completer is required")
	}

	e := &Engine{
		store:        store,
		completer:    completer,
		toolName:     arith.ToolName,
		systemPrompt: DefaultSystemPrompt,
		timeout:      DefaultCompletionTimeout,
		namespace:    domain.DefaultNamespace,
		topology:     DefaultTopology(),
		maxSteps:     defaultMaxSteps,
		serialize:    true,
		logger:       logging.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.router == nil {
		e.router = router.New()
	}
	if e.tools == nil {
		e.tools = registry.NewRegistry()
		arith.Register(e.tools)
	}
	if e.namespace == "" {
		e.namespace = domain.DefaultNamespace
	}
	if err := domain.ValidateNamespace(e.namespace); err != nil {
		return nil, err
	}

	sessOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(e.locker), session.WithLockTTL(e.lease()))
	}
	e.sessions = session.NewManager(store, sessOpts...)
	e.nodes = e.nodeTable()

	return e, nil
}

// lease returns the distributed lock TTL. The lock is never renewed, so it must
// outlive the slowest turn.
func (e *Engine) lease() time.Duration {
	if e.lockTTL > 0 {
		return e.lockTTL
	}
	return max(e.timeout+lockMargin, session.DefaultLockTTL)
}

// Namespace returns the namespace the engine checkpoints into.
func (e *Engine) Namespace() string {
	return e.namespace
}

// Topology returns the transition table in use.
func (e *Engine) Topology() Topology {
	return e.topology
}

// Run executes one turn for threadID in the engine's namespace and returns the reply.
func (e *Engine) Run(ctx context.Context, threadID, text string) (string, error) {
	return e.Execute(ctx, domain.CheckpointKey{ThreadID: threadID, Namespace: e.namespace}, text)
}

// Execute runs one turn for an explicit checkpoint key.
//
// The prior checkpoint is loaded, the user message appended, the graph driven to
// terminal and the transcript committed exactly once, guarded by the loaded version.
// Any failure before the commit leaves the prior checkpoint untouched.
func (e *Engine) Execute(ctx context.Context, key domain.CheckpointKey, text string) (string, error) {
	if err := validate(key, text); err != nil {
		return "", err
	}

	var reply string
	turn := func(ctx context.Context) error {
		var err error
		reply, err = e.turn(ctx, key, text)
		return err
	}

	var err error
	if e.serialize {
		err = e.sessions.WithLock(ctx, key, turn)
	} else {
		err = turn(ctx)
	}
	if err != nil {
		e.logger.Warn("turn failed", "thread", key.ThreadID, "namespace", key.Namespace, "err", err)
		return "", err
	}
	return reply, nil
}

func (e *Engine) turn(ctx context.Context, key domain.CheckpointKey, text string) (string, error) {
	var (
		history []domain.Message
		version int64
	)
	cp, err := e.store.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrCheckpointNotFound):
	case err != nil:
		return "", &domain.StoreError{Op: "get", Key: key, Cause: err}
	default:
		history, version = cp.Messages, cp.Version
	}

	state := domain.NewState(key.ThreadID, history)
	state.Append(domain.UserMessage(text))

	if err := e.drive(ctx, state); err != nil {
		return "", err
	}

	written, err := e.store.Put(ctx, key, state.Messages, version)
	if err != nil {
		return "", &domain.StoreError{Op: "put", Key: key, Cause: err}
	}
	e.emitCommit(ctx, written)
	e.logger.Info("turn committed", "thread", key.ThreadID, "namespace", key.Namespace,
		"route", state.Route, "version", written.Version, "messages", len(written.Messages))

	last, _ := state.Last()
	return last.Content, nil
}

// drive walks the transition table from entry to terminal.
func (e *Engine) drive(ctx context.Context, state *domain.State) error {
	current := domain.NodeEntry
	for steps := 0; current != domain.NodeTerminal; steps++ {
		if steps >= e.maxSteps {
			return fmt.Errorf("%w: terminal not reached after %d steps (path %v)", ErrInvalidTopology, steps, state.Path)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		run, ok := e.nodes[current]
		if !ok {
			return fmt.Errorf("%w: unknown node %q", ErrInvalidTopology, current)
		}

		state.Path = append(state.Path, current)
		e.emitNodeEnter(ctx, state, current)
		start := e.now()
		err := run(ctx, state)
		e.emitNodeLeave(ctx, state, current, e.now().Sub(start), err)
		if err != nil {
			return err
		}

		next, err := e.topology.Next(current, state.Route)
		if err != nil {
			return err
		}
		current = next
	}

	state.Path = append(state.Path, domain.NodeTerminal)
	e.emitNodeEnter(ctx, state, domain.NodeTerminal)
	return nil
}

// History returns the committed transcript of a thread.
func (e *Engine) History(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	key := domain.CheckpointKey{ThreadID: threadID, Namespace: e.namespace}
	if err := validateThreadID(threadID); err != nil {
		return nil, err
	}
	cp, err := e.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrCheckpointNotFound) {
			return nil, err
		}
		return nil, &domain.StoreError{Op: "get", Key: key, Cause: err}
	}
	return cp, nil
}

// Reset deletes a thread's checkpoint once any in-flight turn has finished.
func (e *Engine) Reset(ctx context.Context, threadID string) error {
	key := domain.CheckpointKey{ThreadID: threadID, Namespace: e.namespace}
	if err := validateThreadID(threadID); err != nil {
		return err
	}
	if err := e.sessions.Delete(ctx, key); err != nil {
		var se *domain.StoreError
		if errors.As(err, &se) {
			return err
		}
		return &domain.StoreError{Op: "delete", Key: key, Cause: err}
	}
	e.logger.Info("thread reset", "thread", threadID, "namespace", e.namespace)
	return nil
}

// Threads lists the threads checkpointed in the engine's namespace.
func (e *Engine) Threads(ctx context.Context) ([]string, error) {
	threads, err := e.sessions.List(ctx, e.namespace)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Key: domain.CheckpointKey{Namespace: e.namespace}, Cause: err}
	}
	return threads, nil
}

func validate(key domain.CheckpointKey, text string) error {
	if err := validateThreadID(key.ThreadID); err != nil {
		return err
	}
	if err := domain.ValidateNamespace(key.Namespace); err != nil {
		return &domain.RequestError{Field: "namespace", Reason: err.Error()}
	}
	if strings.TrimSpace(text) == "" {
		return &domain.RequestError{Field: "message", Reason: "must not be empty"}
	}
	if len(text) > MaxMessageLength {
		return &domain.RequestError{Field: "message", Reason: fmt.Sprintf("exceeds %d bytes", MaxMessageLength)}
	}
	return nil
}

func validateThreadID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return &domain.RequestError{Field: "thread_id", Reason: "must not be empty"}
	case len(id) > MaxThreadIDLength:
		return &domain.RequestError{Field: "thread_id", Reason: fmt.Sprintf("exceeds %d bytes", MaxThreadIDLength)}
	case strings.IndexFunc(id, unicode.IsControl) >= 0:
		return &domain.RequestError{Field: "thread_id", Reason: "contains control characters"}
	}
	return nil
}

var _ ports.Conversation = (*Engine)(nil)
