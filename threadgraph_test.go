package threadgraph_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/threadgraph"
	"github.com/aretw0/threadgraph/internal/config"
	"github.com/aretw0/threadgraph/internal/logging"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoCompleter replies with the tool result when there is one, else with the user message.
func echoCompleter() ports.Completer {
	return ports.CompleterFunc(func(_ context.Context, prompt []domain.Message) (domain.Message, error) {
		last := prompt[len(prompt)-1]
		if last.Role == domain.RoleSystem {
			return domain.AssistantMessage("The answer is " + strings.TrimPrefix(last.Content, "Tool result: ")), nil
		}
		return domain.AssistantMessage("you said: " + last.Content), nil
	})
}

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *threadgraph.App {
	t.Helper()
	app, err := threadgraph.New(context.Background(), cfg,
		threadgraph.WithCompleter(echoCompleter()),
		threadgraph.WithLogger(logging.NewNop()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestApp_MemoryStore(t *testing.T) {
	app := newApp(t, loadConfig(t, nil))
	ctx := context.Background()

	reply, err := app.Engine.Run(ctx, "t1", "add 2 and 3")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 5", reply)

	reply, err = app.Engine.Run(ctx, "t1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "you said: hello", reply)

	cp, err := app.Engine.History(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp.Version)
	assert.Len(t, cp.Messages, 4)
}

func TestApp_RedisStoreWithEncryptionAndRedaction(t *testing.T) {
	mr := miniredis.RunT(t)
	app := newApp(t, loadConfig(t, map[string]string{
		"STORE":            "redis",
		"REDIS_ADDR":       mr.Addr(),
		"DISTRIBUTED_LOCK": "true",
		"CODEC":            "msgpack",
		"ENCRYPTION_KEY":   "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=",
		"REDACT_PATTERNS":  `secret-\w+`,
		"NAMESPACE":        "support",
	}))
	ctx := context.Background()

	_, err := app.Engine.Run(ctx, "t1", "my token is secret-abc")
	require.NoError(t, err)

	raw, err := mr.Get("threadgraph:thread:support:t1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "secret-abc")
	assert.NotContains(t, raw, "my token")

	cp, err := app.Engine.History(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "my token is ***", cp.Messages[0].Content)

	threads, err := app.Engine.Threads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, threads)
}

func TestApp_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := loadConfig(t, map[string]string{"STORE": "redis", "REDIS_ADDR": addr})
	_, err := threadgraph.New(context.Background(), cfg,
		threadgraph.WithCompleter(echoCompleter()),
		threadgraph.WithLogger(logging.NewNop()),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestApp_FileAndSQLiteStores(t *testing.T) {
	dir := t.TempDir()
	for _, env := range []map[string]string{
		{"STORE": "file", "FILE_DIR": dir + "/files"},
		{"STORE": "sqlite", "SQLITE_PATH": dir + "/cp.db"},
	} {
		t.Run(env["STORE"], func(t *testing.T) {
			app := newApp(t, loadConfig(t, env))
			reply, err := app.Engine.Run(context.Background(), "t1", "7 times 6")
			require.NoError(t, err)
			assert.Equal(t, "The answer is 42", reply)
		})
	}
}

func TestApp_HTTPHandlerServesMetrics(t *testing.T) {
	app := newApp(t, loadConfig(t, nil))
	h := app.HTTPHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"thread_id":"t9","message":"5 minus 7"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct{ Reply string }
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "The answer is -2", resp.Reply)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "threadgraph_commits_total 1")
	assert.Contains(t, w.Body.String(), `threadgraph_store_operations_total{op="put",result="ok"} 1`)
}
