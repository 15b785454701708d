package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/threadgraph/internal/graph"
	"github.com/aretw0/threadgraph/pkg/adapters/memory"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *graph.Engine {
	t.Helper()
	completer := ports.CompleterFunc(func(_ context.Context, prompt []domain.Message) (domain.Message, error) {
		return domain.AssistantMessage("reply to: " + prompt[len(prompt)-1].Content), nil
	})
	eng, err := graph.New(memory.NewStore(), completer)
	require.NoError(t, err)
	return eng
}

func TestRunREPL(t *testing.T) {
	eng := newTestEngine(t)
	out, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	defer out.Close()

	in := strings.NewReader("hello\n\n/history\n/reset\n/history\nexit\nignored\n")
	require.NoError(t, runREPL(context.Background(), eng, "t1", in, out))

	data, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "reply to: hello")
	assert.Contains(t, text, "user: hello")
	assert.Contains(t, text, "version 1")
	assert.Contains(t, text, "thread reset")
	assert.Contains(t, text, "no history yet")
	assert.NotContains(t, text, "ignored")
}

func TestVersionAndGraphCommands(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "threadgraph version")

	buf.Reset()
	rootCmd.SetArgs([]string{"graph"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "entry -- \"tool\" --> tool")
}

func TestThreadCommands_MemoryStore(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"thread", "ls", "--store", "memory", "--env-file", ""})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "No threads found")
}
