package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversation struct {
	replies map[string][]domain.Message
	err     error
}

func (f *fakeConversation) Run(_ context.Context, threadID, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	reply := "echo: " + text
	f.replies[threadID] = append(f.replies[threadID], domain.UserMessage(text), domain.AssistantMessage(reply))
	return reply, nil
}

func (f *fakeConversation) History(_ context.Context, threadID string) (*domain.Checkpoint, error) {
	msgs, ok := f.replies[threadID]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	return &domain.Checkpoint{ThreadID: threadID, Version: int64(len(msgs) / 2), Messages: msgs}, nil
}

func (f *fakeConversation) Reset(context.Context, string) error { return nil }

func (f *fakeConversation) Threads(context.Context) ([]string, error) {
	out := make([]string, 0, len(f.replies))
	for id := range f.replies {
		out = append(out, id)
	}
	return out, nil
}

func TestChatAndHistory(t *testing.T) {
	conv := &fakeConversation{replies: map[string][]domain.Message{}}
	s := NewServer(conv, "test", nil)
	ctx := context.Background()

	res, err := s.handleChat(ctx, mcp.CallToolRequest{}, ChatArgs{ThreadID: "t1", Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", res.Reply)

	hist, err := s.handleHistory(ctx, mcp.CallToolRequest{}, HistoryArgs{ThreadID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), hist.Version)
	assert.Equal(t, []domain.Message{domain.UserMessage("hello"), domain.AssistantMessage("echo: hello")}, hist.Messages)
}

func TestHistory_UnknownThreadIsEmpty(t *testing.T) {
	s := NewServer(&fakeConversation{replies: map[string][]domain.Message{}}, "test", nil)

	hist, err := s.handleHistory(context.Background(), mcp.CallToolRequest{}, HistoryArgs{ThreadID: "nope"})
	require.NoError(t, err)
	assert.Zero(t, hist.Version)
	assert.Empty(t, hist.Messages)
}

func TestChat_ErrorPropagates(t *testing.T) {
	s := NewServer(&fakeConversation{err: domain.ErrStoreUnavailable}, "test", nil)

	_, err := s.handleChat(context.Background(), mcp.CallToolRequest{}, ChatArgs{ThreadID: "t1", Message: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

func TestThreadsResource(t *testing.T) {
	conv := &fakeConversation{replies: map[string][]domain.Message{"t1": {domain.UserMessage("x")}}}
	s := NewServer(conv, "test", nil)

	contents, err := s.readThreads(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.JSONEq(t, `["t1"]`, text.Text)
}
