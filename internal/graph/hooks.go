package graph

import (
	"context"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
)

func (e *Engine) base(t domain.EventType, threadID string) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: t, ThreadID: threadID}
}

func (e *Engine) emitNodeEnter(ctx context.Context, s *domain.State, node domain.NodeID) {
	if e.hooks.OnNodeEnter != nil {
		e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{EventBase: e.base(domain.EventNodeEnter, s.ThreadID), NodeID: node})
	}
}

func (e *Engine) emitNodeLeave(ctx context.Context, s *domain.State, node domain.NodeID, d time.Duration, err error) {
	if e.hooks.OnNodeLeave != nil {
		e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{EventBase: e.base(domain.EventNodeLeave, s.ThreadID), NodeID: node, Duration: d, Err: err})
	}
}

func (e *Engine) emitRoute(ctx context.Context, s *domain.State) {
	if e.hooks.OnRoute != nil {
		e.hooks.OnRoute(ctx, &domain.RouteEvent{EventBase: e.base(domain.EventRoute, s.ThreadID), Route: s.Route})
	}
}

func (e *Engine) emitToolCall(ctx context.Context, s *domain.State, input string) {
	if e.hooks.OnToolCall != nil {
		e.hooks.OnToolCall(ctx, &domain.ToolEvent{EventBase: e.base(domain.EventToolCall, s.ThreadID), ToolName: e.toolName, Input: input})
	}
}

func (e *Engine) emitToolReturn(ctx context.Context, s *domain.State, input, output string, isErr bool, d time.Duration) {
	if e.hooks.OnToolReturn != nil {
		e.hooks.OnToolReturn(ctx, &domain.ToolEvent{
			EventBase: e.base(domain.EventToolReturn, s.ThreadID),
			ToolName:  e.toolName,
			Input:     input,
			Output:    output,
			IsError:   isErr,
			Duration:  d,
		})
	}
}

func (e *Engine) emitCommit(ctx context.Context, cp *domain.Checkpoint) {
	if e.hooks.OnCommit != nil {
		e.hooks.OnCommit(ctx, &domain.CommitEvent{
			EventBase: e.base(domain.EventCommit, cp.ThreadID),
			Namespace: cp.Namespace,
			Version:   cp.Version,
			Messages:  len(cp.Messages),
		})
	}
}
