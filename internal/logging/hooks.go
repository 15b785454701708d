package logging

import (
	"context"
	"log/slog"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// Hooks logs engine lifecycle events at debug level, and failed nodes at warn.
func Hooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "Node failed", "thread_id", e.ThreadID, "node", e.NodeID, "duration", e.Duration, "error", e.Err)
				return
			}
			logger.DebugContext(ctx, "Node finished", "thread_id", e.ThreadID, "node", e.NodeID, "duration", e.Duration)
		},
		OnRoute: func(ctx context.Context, e *domain.RouteEvent) {
			logger.DebugContext(ctx, "Route decided", "thread_id", e.ThreadID, "route", e.Route)
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			logger.DebugContext(ctx, "Tool returned", "thread_id", e.ThreadID, "tool", e.ToolName, "output", e.Output, "fallback", e.IsError)
		},
		OnCommit: func(ctx context.Context, e *domain.CommitEvent) {
			logger.InfoContext(ctx, "Turn committed", "thread_id", e.ThreadID, "namespace", e.Namespace, "version", e.Version, "messages", e.Messages)
		},
	}
}
