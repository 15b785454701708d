package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter  EventType = "node_enter"
	EventNodeLeave  EventType = "node_leave"
	EventRoute      EventType = "route"
	EventToolCall   EventType = "tool_call"
	EventToolReturn EventType = "tool_return"
	EventCommit     EventType = "commit"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ThreadID  string    `json:"thread_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   NodeID        `json:"node_id"`
	Duration time.Duration `json:"duration,omitempty"` // set on leave
	Err      error         `json:"-"`
}

// RouteEvent records the router's decision.
type RouteEvent struct {
	EventBase
	Route Route `json:"route"`
}

// ToolEvent represents a tool execution.
type ToolEvent struct {
	EventBase
	ToolName string        `json:"tool_name"`
	Input    string        `json:"input,omitempty"`
	Output   string        `json:"output,omitempty"`
	IsError  bool          `json:"is_error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// CommitEvent is emitted after a checkpoint write succeeded.
type CommitEvent struct {
	EventBase
	Namespace string `json:"namespace"`
	Version   int64  `json:"version"`
	Messages  int    `json:"messages"`
}

// LifecycleHooks defines callbacks for engine observability.
// Every hook is optional.
type LifecycleHooks struct {
	OnNodeEnter  func(context.Context, *NodeEvent)
	OnNodeLeave  func(context.Context, *NodeEvent)
	OnRoute      func(context.Context, *RouteEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
	OnCommit     func(context.Context, *CommitEvent)
}

// Merge combines two hook sets; both callbacks run, h first.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter:  chain(h.OnNodeEnter, other.OnNodeEnter),
		OnNodeLeave:  chain(h.OnNodeLeave, other.OnNodeLeave),
		OnRoute:      chain(h.OnRoute, other.OnRoute),
		OnToolCall:   chain(h.OnToolCall, other.OnToolCall),
		OnToolReturn: chain(h.OnToolReturn, other.OnToolReturn),
		OnCommit:     chain(h.OnCommit, other.OnCommit),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
