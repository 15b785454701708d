// Package metrics exposes Prometheus collectors fed by engine lifecycle hooks and
// checkpoint store instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/persistence/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "threadgraph"

// Metrics owns a private registry so several engines (or tests) never collide on
// the global default registerer.
type Metrics struct {
	registry *prometheus.Registry

	nodeDuration  *prometheus.HistogramVec
	nodeErrors    *prometheus.CounterVec
	routes        *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	toolDuration  prometheus.Histogram
	commits       prometheus.Counter
	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Time spent executing each graph node",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_errors_total",
			Help:      "Graph node executions that returned an error",
		}, []string{"node"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Router decisions by route",
		}, []string{"route"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution time",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Checkpoints committed at the end of a turn",
		}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Checkpoint store operations by operation and result",
		}, []string{"op", "result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Checkpoint store latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	m.registry.MustRegister(
		m.nodeDuration, m.nodeErrors, m.routes, m.toolCalls,
		m.toolDuration, m.commits, m.storeOps, m.storeDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns lifecycle hooks that record engine activity.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeDuration.WithLabelValues(string(e.NodeID)).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.nodeErrors.WithLabelValues(string(e.NodeID)).Inc()
			}
		},
		OnRoute: func(_ context.Context, e *domain.RouteEvent) {
			m.routes.WithLabelValues(string(e.Route)).Inc()
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			status := "ok"
			if e.IsError {
				status = "fallback"
			}
			m.toolCalls.WithLabelValues(e.ToolName, status).Inc()
			m.toolDuration.Observe(e.Duration.Seconds())
		},
		OnCommit: func(context.Context, *domain.CommitEvent) {
			m.commits.Inc()
		},
	}
}

// StoreObserver feeds store instrumentation into the store collectors.
func (m *Metrics) StoreObserver() middleware.Observer {
	return func(op string, d time.Duration, err error) {
		m.storeOps.WithLabelValues(op, result(err)).Inc()
		m.storeDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrCheckpointNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrVersionConflict):
		return "conflict"
	default:
		return "error"
	}
}
