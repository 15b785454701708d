package graph_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/threadgraph/internal/graph"
	"github.com/aretw0/threadgraph/pkg/adapters/memory"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/aretw0/threadgraph/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter answers "reply N" and records every prompt it receives.
type scriptedCompleter struct {
	mu      sync.Mutex
	prompts [][]domain.Message
	calls   atomic.Int32
}

func (c *scriptedCompleter) Complete(ctx context.Context, prompt []domain.Message) (domain.Message, error) {
	n := c.calls.Add(1)
	c.mu.Lock()
	c.prompts = append(c.prompts, domain.CloneMessages(prompt))
	c.mu.Unlock()

	content := fmt.Sprintf("reply %d", n)
	for _, m := range prompt {
		if m.Role == domain.RoleSystem && strings.HasPrefix(m.Content, "Tool result: ") {
			content += " (" + strings.TrimPrefix(m.Content, "Tool result: ") + ")"
		}
	}
	return domain.AssistantMessage(content), nil
}

func (c *scriptedCompleter) lastPrompt() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts[len(c.prompts)-1]
}

func newEngine(t *testing.T, store ports.CheckpointStore, c ports.Completer, opts ...graph.Option) *graph.Engine {
	t.Helper()
	eng, err := graph.New(store, c, opts...)
	require.NoError(t, err)
	return eng
}

func TestEngine_ThreadScenario(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	llm := &scriptedCompleter{}
	eng := newEngine(t, store, llm)
	key := domain.CheckpointKey{ThreadID: "t1", Namespace: domain.DefaultNamespace}

	// First turn goes straight to the responder.
	reply, err := eng.Run(ctx, "t1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "reply 1", reply)

	cp, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{
		domain.UserMessage("hello"),
		domain.AssistantMessage("reply 1"),
	}, cp.Messages)
	assert.Equal(t, int64(1), cp.Version)

	prompt := llm.lastPrompt()
	assert.Equal(t, domain.SystemMessage(graph.DefaultSystemPrompt), prompt[0])
	assert.Len(t, prompt, 2, "no tool result on the direct path")

	// Second turn routes through the tool.
	reply, err = eng.Run(ctx, "t1", "what is 2 plus 2")
	require.NoError(t, err)
	assert.Equal(t, "reply 2 (4)", reply)

	cp, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{
		domain.UserMessage("hello"),
		domain.AssistantMessage("reply 1"),
		domain.UserMessage("what is 2 plus 2"),
		domain.AssistantMessage("reply 2 (4)"),
	}, cp.Messages, "tool result must stay out of the persisted history")
	assert.Equal(t, int64(2), cp.Version)

	prompt = llm.lastPrompt()
	require.Len(t, prompt, 6)
	assert.Equal(t, domain.SystemMessage("Tool result: 4"), prompt[5], "tool result is the last prompt message")
	assert.Equal(t, domain.UserMessage("hello"), prompt[1], "full history is sent")
}

func TestEngine_ToolFailSoft(t *testing.T) {
	ctx := context.Background()
	llm := &scriptedCompleter{}
	eng := newEngine(t, memory.NewStore(), llm)

	reply, err := eng.Run(ctx, "t", "plus plus")
	require.NoError(t, err, "a tool failure must not fail the request")
	assert.Equal(t, "reply 1 (could not compute)", reply)
}

func TestEngine_ToolPanicAndUnknownTool(t *testing.T) {
	ctx := context.Background()

	reg := registry.NewRegistry()
	reg.Register("boom", func(context.Context, map[string]any) (any, error) { panic("kaboom") })

	llm := &scriptedCompleter{}
	eng := newEngine(t, memory.NewStore(), llm, graph.WithRegistry(reg), graph.WithToolName("boom"))
	reply, err := eng.Run(ctx, "t", "2 plus 2")
	require.NoError(t, err)
	assert.Contains(t, reply, domain.ToolFallback)

	eng = newEngine(t, memory.NewStore(), llm, graph.WithRegistry(registry.NewRegistry()))
	reply, err = eng.Run(ctx, "t", "2 plus 2")
	require.NoError(t, err)
	assert.Contains(t, reply, domain.ToolFallback)
}

func TestEngine_CompletionFailureDoesNotCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	key := domain.CheckpointKey{ThreadID: "t1", Namespace: domain.DefaultNamespace}

	ok := newEngine(t, store, &scriptedCompleter{})
	_, err := ok.Run(ctx, "t1", "hello")
	require.NoError(t, err)
	before, err := store.Get(ctx, key)
	require.NoError(t, err)

	failing := ports.CompleterFunc(func(context.Context, []domain.Message) (domain.Message, error) {
		return domain.Message{}, errors.New("model unreachable")
	})
	eng := newEngine(t, store, failing)

	_, err = eng.Run(ctx, "t1", "what is 2 plus 2")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCompletionFailed)
	assert.False(t, domain.Retryable(err))

	after, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, before, after, "prior checkpoint must remain unchanged")
}

func TestEngine_EmptyReply(t *testing.T) {
	empty := ports.CompleterFunc(func(context.Context, []domain.Message) (domain.Message, error) {
		return domain.AssistantMessage("  \n"), nil
	})
	store := memory.NewStore()
	eng := newEngine(t, store, empty)

	_, err := eng.Run(context.Background(), "t", "hello")
	assert.ErrorIs(t, err, domain.ErrCompletionFailed)
	assert.ErrorIs(t, err, graph.ErrEmptyReply)

	_, err = store.Get(context.Background(), domain.CheckpointKey{ThreadID: "t", Namespace: domain.DefaultNamespace})
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestEngine_CompletionTimeout(t *testing.T) {
	slow := ports.CompleterFunc(func(ctx context.Context, _ []domain.Message) (domain.Message, error) {
		<-ctx.Done()
		return domain.Message{}, errors.New("request aborted")
	})
	eng := newEngine(t, memory.NewStore(), slow, graph.WithCompletionTimeout(20*time.Millisecond))

	_, err := eng.Run(context.Background(), "t", "hello")
	assert.ErrorIs(t, err, domain.ErrCompletionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, domain.Retryable(err))
}

type brokenStore struct {
	ports.CheckpointStore
	getErr error
	putErr error
}

func (b *brokenStore) Get(ctx context.Context, key domain.CheckpointKey) (*domain.Checkpoint, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.CheckpointStore.Get(ctx, key)
}

func (b *brokenStore) Put(ctx context.Context, key domain.CheckpointKey, msgs []domain.Message, v int64) (*domain.Checkpoint, error) {
	if b.putErr != nil {
		return nil, b.putErr
	}
	return b.CheckpointStore.Put(ctx, key, msgs, v)
}

func TestEngine_StoreUnavailable(t *testing.T) {
	llm := &scriptedCompleter{}
	store := &brokenStore{CheckpointStore: memory.NewStore(), getErr: errors.New("dial tcp 127.0.0.1:6379: connection refused")}
	eng := newEngine(t, store, llm)

	_, err := eng.Run(context.Background(), "t", "hello")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.True(t, domain.Retryable(err))
	assert.Equal(t, int32(0), llm.calls.Load(), "no node may run when the checkpoint cannot be loaded")

	store.getErr = nil
	store.putErr = errors.New("write timeout")
	_, err = eng.Run(context.Background(), "t", "hello")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestEngine_MalformedRequest(t *testing.T) {
	llm := &scriptedCompleter{}
	eng := newEngine(t, memory.NewStore(), llm)
	ctx := context.Background()

	cases := map[string][2]string{
		"empty thread":  {"", "hello"},
		"blank thread":  {"   ", "hello"},
		"control chars": {"t\n1", "hello"},
		"long thread":   {strings.Repeat("x", graph.MaxThreadIDLength+1), "hello"},
		"empty message": {"t1", ""},
		"blank message": {"t1", " \t "},
		"huge message":  {"t1", strings.Repeat("a", graph.MaxMessageLength+1)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := eng.Run(ctx, tc[0], tc[1])
			assert.ErrorIs(t, err, domain.ErrMalformedRequest)
			assert.False(t, domain.Retryable(err))
		})
	}
	assert.Equal(t, int32(0), llm.calls.Load())
}

func TestEngine_ThreadIsolation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := newEngine(t, store, &scriptedCompleter{})

	_, err := eng.Run(ctx, "a", "hello from a")
	require.NoError(t, err)
	_, err = eng.Run(ctx, "b", "hello from b")
	require.NoError(t, err)
	_, err = eng.Run(ctx, "a", "again a")
	require.NoError(t, err)

	a, err := eng.History(ctx, "a")
	require.NoError(t, err)
	b, err := eng.History(ctx, "b")
	require.NoError(t, err)

	assert.Len(t, a.Messages, 4)
	assert.Len(t, b.Messages, 2)
	for _, m := range a.Messages {
		assert.NotContains(t, m.Content, "from b")
	}
}

func TestEngine_ConcurrentTurnsAreSerialized(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	slow := &scriptedCompleter{}
	llm := ports.CompleterFunc(func(ctx context.Context, p []domain.Message) (domain.Message, error) {
		time.Sleep(2 * time.Millisecond)
		return slow.Complete(ctx, p)
	})
	eng := newEngine(t, store, llm)

	const turns = 10
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := eng.Run(ctx, "shared", fmt.Sprintf("message %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	cp, err := eng.History(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, cp.Messages, 2*turns, "no turn may be lost")
	assert.Equal(t, int64(turns), cp.Version)
	for i := 0; i < len(cp.Messages); i += 2 {
		assert.Equal(t, domain.RoleUser, cp.Messages[i].Role)
		assert.Equal(t, domain.RoleAssistant, cp.Messages[i+1].Role)
	}
}

func TestEngine_UnserializedTurnsConflict(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	var started sync.WaitGroup
	llm := ports.CompleterFunc(func(ctx context.Context, p []domain.Message) (domain.Message, error) {
		started.Done()
		<-release
		return domain.AssistantMessage("ok"), nil
	})
	eng := newEngine(t, memory.NewStore(), llm, graph.WithSerialization(false))

	const turns = 4
	started.Add(turns)
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		go func() {
			_, err := eng.Run(ctx, "shared", "hello")
			errs <- err
		}()
	}
	started.Wait() // every turn has loaded the same version
	close(release)

	var wins, conflicts int
	for i := 0; i < turns; i++ {
		err := <-errs
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrVersionConflict):
			assert.True(t, domain.Retryable(err))
			assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, turns-1, conflicts)

	cp, err := eng.History(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, cp.Messages, 2)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	var (
		entered []domain.NodeID
		left    []domain.NodeID
		routes  []domain.Route
		tools   []*domain.ToolEvent
		commits []*domain.CommitEvent
	)
	hooks := domain.LifecycleHooks{
		OnNodeEnter:  func(_ context.Context, e *domain.NodeEvent) { entered = append(entered, e.NodeID) },
		OnNodeLeave:  func(_ context.Context, e *domain.NodeEvent) { left = append(left, e.NodeID) },
		OnRoute:      func(_ context.Context, e *domain.RouteEvent) { routes = append(routes, e.Route) },
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) { tools = append(tools, e) },
		OnCommit:     func(_ context.Context, e *domain.CommitEvent) { commits = append(commits, e) },
	}
	eng := newEngine(t, memory.NewStore(), &scriptedCompleter{}, graph.WithLifecycleHooks(hooks))

	_, err := eng.Run(context.Background(), "t1", "what is 2 plus 2")
	require.NoError(t, err)

	assert.Equal(t, []domain.NodeID{domain.NodeEntry, domain.NodeTool, domain.NodeRespond, domain.NodeTerminal}, entered)
	assert.Equal(t, []domain.NodeID{domain.NodeEntry, domain.NodeTool, domain.NodeRespond}, left)
	assert.Equal(t, []domain.Route{domain.RouteTool}, routes)
	require.Len(t, tools, 1)
	assert.Equal(t, "4", tools[0].Output)
	assert.False(t, tools[0].IsError)
	require.Len(t, commits, 1)
	assert.Equal(t, int64(1), commits[0].Version)
	assert.Equal(t, 2, commits[0].Messages)
	assert.Equal(t, "t1", commits[0].ThreadID)
}

func TestEngine_StepGuard(t *testing.T) {
	store := memory.NewStore()
	looping := graph.Topology{
		domain.NodeEntry:   {graph.Always: domain.NodeRespond},
		domain.NodeRespond: {graph.Always: domain.NodeEntry},
	}
	eng := newEngine(t, store, &scriptedCompleter{}, graph.WithTopology(looping), graph.WithMaxSteps(6))

	_, err := eng.Run(context.Background(), "t", "hello")
	assert.ErrorIs(t, err, graph.ErrInvalidTopology)

	_, err = store.Get(context.Background(), domain.CheckpointKey{ThreadID: "t", Namespace: domain.DefaultNamespace})
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "a failed execution must not commit")
}

func TestEngine_MissingEdge(t *testing.T) {
	broken := graph.Topology{
		domain.NodeEntry: {domain.RouteTool: domain.NodeTool},
	}
	eng := newEngine(t, memory.NewStore(), &scriptedCompleter{}, graph.WithTopology(broken))

	_, err := eng.Run(context.Background(), "t", "hello")
	assert.ErrorIs(t, err, graph.ErrInvalidTopology)
}

func TestEngine_HistoryResetThreads(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, memory.NewStore(), &scriptedCompleter{}, graph.WithNamespace("tenant"))
	assert.Equal(t, "tenant", eng.Namespace())

	_, err := eng.History(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)

	_, err = eng.Run(ctx, "t1", "hello")
	require.NoError(t, err)
	_, err = eng.Run(ctx, "t2", "hello")
	require.NoError(t, err)

	threads, err := eng.Threads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, threads)

	require.NoError(t, eng.Reset(ctx, "t1"))
	_, err = eng.History(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)

	// A reset thread starts over.
	_, err = eng.Run(ctx, "t1", "fresh start")
	require.NoError(t, err)
	cp, err := eng.History(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, cp.Messages, 2)
	assert.Equal(t, int64(1), cp.Version)

	assert.ErrorIs(t, eng.Reset(ctx, ""), domain.ErrMalformedRequest)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := graph.New(nil, &scriptedCompleter{})
	assert.Error(t, err)
	_, err = graph.New(memory.NewStore(), nil)
	assert.Error(t, err)
}

func TestEngine_ToolResultDoesNotLeakIntoNextTurn(t *testing.T) {
	ctx := context.Background()
	llm := &scriptedCompleter{}
	eng := newEngine(t, memory.NewStore(), llm)

	reply, err := eng.Run(ctx, "t1", "add 2 and 3")
	require.NoError(t, err)
	assert.Equal(t, "reply 1 (5)", reply)

	reply, err = eng.Run(ctx, "t1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "reply 2", reply)

	for _, m := range llm.lastPrompt() {
		assert.False(t, strings.HasPrefix(m.Content, "Tool result:"), "stale tool result in prompt: %q", m.Content)
	}
}

func TestNew_RejectsNamespaceWithKeySeparator(t *testing.T) {
	for _, ns := range []string{"a:b", "team/support"} {
		_, err := graph.New(memory.NewStore(), &scriptedCompleter{}, graph.WithNamespace(ns))
		assert.Error(t, err, ns)
	}

	eng := newEngine(t, memory.NewStore(), &scriptedCompleter{})
	_, err := eng.Execute(context.Background(), domain.CheckpointKey{ThreadID: "t1", Namespace: "a:b"}, "hello")
	assert.ErrorIs(t, err, domain.ErrMalformedRequest)
}
