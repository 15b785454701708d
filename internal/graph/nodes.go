package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// ErrEmptyReply is the cause recorded when the model answers with no content.
var ErrEmptyReply = errors.New("empty reply from model")

// nodeFunc runs one node against the execution state.
type nodeFunc func(ctx context.Context, s *domain.State) error

func (e *Engine) nodeTable() map[domain.NodeID]nodeFunc {
	return map[domain.NodeID]nodeFunc{
		domain.NodeEntry:   e.entry,
		domain.NodeTool:    e.tool,
		domain.NodeRespond: e.respond,
	}
}

// entry records the routing decision. It does not touch the transcript.
func (e *Engine) entry(ctx context.Context, s *domain.State) error {
	last, _ := s.LastUser()
	s.Route = e.router.Decide(last.Content)
	e.logger.Debug("route decided", "thread", s.ThreadID, "route", s.Route)
	e.emitRoute(ctx, s)
	return nil
}

// tool runs the registered tool on the latest user message and writes the result to
// scratch. It never fails: errors and panics turn into domain.ToolFallback.
func (e *Engine) tool(ctx context.Context, s *domain.State) error {
	last, _ := s.LastUser()
	e.emitToolCall(ctx, s, last.Content)

	start := e.now()
	result, err := e.invokeTool(ctx, last.Content)
	isErr := err != nil
	if isErr {
		e.logger.Debug("tool failed, using fallback", "thread", s.ThreadID, "tool", e.toolName, "err", err)
		result = domain.ToolFallback
	}
	s.Scratch[domain.ScratchToolResult] = result

	e.emitToolReturn(ctx, s, last.Content, result, isErr, e.now().Sub(start))
	return nil
}

func (e *Engine) invokeTool(ctx context.Context, text string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", e.toolName, r)
		}
	}()

	out, err := e.tools.Execute(ctx, e.toolName, map[string]any{"text": text})
	if err != nil {
		return "", err
	}
	str, ok := out.(string)
	if !ok || str == "" {
		return "", fmt.Errorf("tool %s returned %T, want non-empty string", e.toolName, out)
	}
	return str, nil
}

// prompt builds the model input: instruction, transcript, then the tool result if any.
func (e *Engine) prompt(s *domain.State) []domain.Message {
	prompt := make([]domain.Message, 0, len(s.Messages)+2)
	if e.systemPrompt != "" {
		prompt = append(prompt, domain.SystemMessage(e.systemPrompt))
	}
	prompt = append(prompt, s.Messages...)
	if result, ok := s.Scratch[domain.ScratchToolResult]; ok {
		prompt = append(prompt, domain.SystemMessage("Tool result: "+result))
	}
	return prompt
}

// respond asks the completer for a reply and appends it to the transcript.
func (e *Engine) respond(ctx context.Context, s *domain.State) error {
	if len(s.Messages) == 0 {
		return fmt.Errorf("%w: respond reached with an empty transcript", ErrInvalidTopology)
	}

	cctx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := e.completer.Complete(cctx, e.prompt(s))
	if err != nil {
		// Providers do not always wrap the context error; keep it visible to errors.Is.
		if ctxErr := cctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return &domain.CompletionError{ThreadID: s.ThreadID, Cause: err}
	}
	if strings.TrimSpace(reply.Content) == "" {
		return &domain.CompletionError{ThreadID: s.ThreadID, Cause: ErrEmptyReply}
	}

	e.logger.Debug("completion received", "thread", s.ThreadID, "duration", time.Since(start), "chars", len(reply.Content))
	s.Append(domain.AssistantMessage(reply.Content))
	return nil
}
