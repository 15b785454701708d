package threadgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/aretw0/threadgraph/internal/config"
	"github.com/aretw0/threadgraph/internal/graph"
	"github.com/aretw0/threadgraph/internal/logging"
	"github.com/aretw0/threadgraph/internal/metrics"
	"github.com/aretw0/threadgraph/internal/router"
	httpAdapter "github.com/aretw0/threadgraph/pkg/adapters/http"
	"github.com/aretw0/threadgraph/pkg/adapters/file"
	"github.com/aretw0/threadgraph/pkg/adapters/llm"
	"github.com/aretw0/threadgraph/pkg/adapters/memory"
	"github.com/aretw0/threadgraph/pkg/adapters/postgres"
	"github.com/aretw0/threadgraph/pkg/adapters/redis"
	"github.com/aretw0/threadgraph/pkg/adapters/sqlite"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/persistence/middleware"
	"github.com/aretw0/threadgraph/pkg/ports"
)

// Version is overridden at build time with -ldflags "-X github.com/aretw0/threadgraph.Version=...".
var Version = "0.1.0-dev"

// App holds the long-lived service objects of a process: the store and model clients are
// built once here and passed explicitly to the engine and adapters.
type App struct {
	Config  *config.Config
	Engine  *graph.Engine
	Store   ports.CheckpointStore
	Metrics *metrics.Metrics
	Streams *httpAdapter.StreamManager
	Logger  *slog.Logger

	closers []io.Closer
}

// Option customizes New.
type Option func(*options)

type options struct {
	completer ports.Completer
	logger    *slog.Logger
}

// WithCompleter replaces the configured language model.
func WithCompleter(c ports.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithLogger replaces the logger derived from LOG_LEVEL and LOG_FORMAT.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New wires the store, model, metrics and engine described by cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.NewWithFormat(os.Stderr, cfg.SlogLevel(), cfg.LogFormat)
	}

	app := &App{
		Config:  cfg,
		Metrics: metrics.New(),
		Streams: httpAdapter.NewStreamManager(),
		Logger:  logger,
	}

	store, locker, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}
	app.Store = store

	completer := o.completer
	if completer == nil {
		completer, err = llm.NewFromConfig(ctx, llm.Config{
			Provider:    cfg.LLMProvider,
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			APIKey:      cfg.LLMAPIKey,
			Timeout:     cfg.CompletionTimeout,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
		}, llm.WithLogger(logger))
		if err != nil {
			app.Close()
			return nil, err
		}
	}

	engineOpts := []graph.Option{
		graph.WithRouter(router.New(cfg.RouterKeywords...)),
		graph.WithNamespace(cfg.Namespace),
		graph.WithCompletionTimeout(cfg.CompletionTimeout),
		graph.WithSerialization(cfg.SerializeTurns),
		graph.WithLifecycleHooks(app.Metrics.Hooks()),
		graph.WithLifecycleHooks(app.Streams.Hooks()),
		graph.WithLifecycleHooks(logging.Hooks(logger)),
		graph.WithLogger(logger),
	}
	if cfg.SystemPrompt != "" {
		engineOpts = append(engineOpts, graph.WithSystemPrompt(cfg.SystemPrompt))
	}
	if locker != nil {
		engineOpts = append(engineOpts, graph.WithLocker(locker, 0))
	}

	app.Engine, err = graph.New(store, completer, engineOpts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) openStore(ctx context.Context) (ports.CheckpointStore, ports.DistributedLocker, error) {
	cfg := a.Config
	payload, err := cfg.PayloadCodec()
	if err != nil {
		return nil, nil, err
	}

	var (
		base   ports.CheckpointStore
		locker ports.DistributedLocker
	)
	switch cfg.Store {
	case config.StoreMemory:
		base = memory.NewStore()
	case config.StoreRedis:
		rs := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			redis.WithPrefix(cfg.RedisPrefix),
			redis.WithTTL(cfg.CheckpointTTL),
			redis.WithCodec(payload),
		)
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, &domain.StoreError{Op: "ping", Cause: fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)}
		}
		a.closers = append(a.closers, rs)
		base = rs
		if cfg.DistributedLock {
			locker = redis.NewLocker(rs.Client(), cfg.RedisPrefix)
		}
	case config.StoreFile:
		base = file.New(cfg.FileDir, file.WithCodec(payload))
	case config.StoreSQLite:
		ss, err := sqlite.Open(cfg.SQLitePath, sqlite.WithCodec(payload))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, ss)
		base = ss
	case config.StorePostgres:
		ps, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.WithCodec(payload))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, ps)
		base = ps
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	mws := []middleware.Middleware{
		middleware.NewInstrumentation(a.Logger, a.Metrics.StoreObserver()),
	}
	if len(cfg.RedactPatterns) > 0 {
		mws = append(mws, middleware.NewRedaction(cfg.RedactPatterns))
	}
	a.Logger.Debug("Checkpoint store ready", "backend", cfg.Store, "codec", payload.Name(), "distributed_lock", locker != nil)
	return middleware.Chain(base, mws...), locker, nil
}

// HTTPHandler builds the HTTP API for the engine, including /metrics.
func (a *App) HTTPHandler() http.Handler {
	return httpAdapter.NewHandler(a.Engine,
		httpAdapter.WithStreams(a.Streams),
		httpAdapter.WithMetricsHandler(a.Metrics.Handler()),
		httpAdapter.WithNamespace(a.Engine.Namespace()),
		httpAdapter.WithLogger(a.Logger),
	)
}

// Close releases store connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
