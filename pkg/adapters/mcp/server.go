package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ThreadsURI is the resource listing known threads.
const ThreadsURI = "threadgraph://threads"

// ChatArgs are the arguments of the chat tool.
type ChatArgs struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// ChatResult is the structured output of the chat tool.
type ChatResult struct {
	ThreadID string `json:"thread_id" jsonschema_description:"Thread the turn was appended to"`
	Reply    string `json:"reply" jsonschema_description:"Assistant reply for this turn"`
}

// HistoryArgs are the arguments of the get_history tool.
type HistoryArgs struct {
	ThreadID string `json:"thread_id"`
}

// HistoryResult is the structured output of the get_history tool.
type HistoryResult struct {
	ThreadID string           `json:"thread_id"`
	Version  int64            `json:"version" jsonschema_description:"Checkpoint version, 0 when the thread has no history"`
	Messages []domain.Message `json:"messages"`
}

// Server exposes a conversation engine as an MCP server.
type Server struct {
	engine    ports.Conversation
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(engine ports.Conversation, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("threadgraph-mcp", version, server.WithToolCapabilities(false)),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	chatTool := mcp.NewTool("chat",
		mcp.WithDescription("Send a message to a conversation thread and get the assistant reply. Arithmetic requests are computed by a tool."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Conversation thread identifier")),
		mcp.WithString("message", mcp.Required(), mcp.Description("User message")),
		mcp.WithOutputSchema[ChatResult](),
	)
	s.mcpServer.AddTool(chatTool, mcp.NewStructuredToolHandler(s.handleChat))

	historyTool := mcp.NewTool("get_history",
		mcp.WithDescription("Get the committed transcript of a conversation thread."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Conversation thread identifier")),
		mcp.WithOutputSchema[HistoryResult](),
	)
	s.mcpServer.AddTool(historyTool, mcp.NewStructuredToolHandler(s.handleHistory))
}

func (s *Server) handleChat(ctx context.Context, _ mcp.CallToolRequest, args ChatArgs) (ChatResult, error) {
	reply, err := s.engine.Run(ctx, args.ThreadID, args.Message)
	if err != nil {
		s.logger.Warn("MCP chat failed", "thread_id", args.ThreadID, "error", err)
		return ChatResult{}, fmt.Errorf("chat failed: %w", err)
	}
	return ChatResult{ThreadID: args.ThreadID, Reply: reply}, nil
}

func (s *Server) handleHistory(ctx context.Context, _ mcp.CallToolRequest, args HistoryArgs) (HistoryResult, error) {
	cp, err := s.engine.History(ctx, args.ThreadID)
	switch {
	case errors.Is(err, domain.ErrCheckpointNotFound):
		return HistoryResult{ThreadID: args.ThreadID, Messages: []domain.Message{}}, nil
	case err != nil:
		return HistoryResult{}, fmt.Errorf("history failed: %w", err)
	}
	return HistoryResult{ThreadID: cp.ThreadID, Version: cp.Version, Messages: cp.Messages}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ThreadsURI, "Conversation threads",
		mcp.WithMIMEType("application/json"),
	), s.readThreads)
}

func (s *Server) readThreads(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	threads, err := s.engine.Threads(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	b, err := json.Marshal(threads)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ThreadsURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
