// Package app wires the suggestion engine into a running HTTP server.
//
// The App struct owns the full lifecycle: New builds the orchestrator and its
// collaborators from config, Run serves HTTP until the context ends, and
// Shutdown releases everything registered with [WithCloser] in order.
//
// For testing, inject a prebuilt orchestrator or metrics via functional
// options. When an option is not provided, New builds real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ezhuthu/internal/config"
	"github.com/MrWong99/ezhuthu/internal/entitlement"
	"github.com/MrWong99/ezhuthu/internal/health"
	"github.com/MrWong99/ezhuthu/internal/mcptool"
	"github.com/MrWong99/ezhuthu/internal/observe"
	"github.com/MrWong99/ezhuthu/internal/suggest"
	"github.com/MrWong99/ezhuthu/internal/suggest/augment"
	"github.com/MrWong99/ezhuthu/internal/suggest/cache"
	"github.com/MrWong99/ezhuthu/internal/suggest/validate"
	"github.com/MrWong99/ezhuthu/pkg/provider/llm"
)

const (
	// shutdownGrace bounds how long in-flight requests may run after the
	// run context ends.
	shutdownGrace = 10 * time.Second

	readHeaderTimeout = 10 * time.Second
)

// Providers holds the collaborators built by main.go. Nil fields are
// optional: without an LLM suggestions are local-only, without an
// entitlement checker every caller is allowed, and without a database no
// readiness check is registered for it.
type Providers struct {
	LLM         llm.Provider
	Entitlement entitlement.Checker
	Database    health.Pinger
}

// App owns the orchestrator and the HTTP surface in front of it.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	orch     *suggest.Orchestrator
	metrics  *observe.Metrics
	registry *prometheus.Registry
	health   *health.Handler
	mcp      *mcp.Server

	// base is cancelled when the server shuts down. Hijacked WebSocket
	// connections are not tracked by http.Server, so they watch it.
	base       context.Context
	baseCancel context.CancelFunc

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithOrchestrator injects an orchestrator instead of building one from config.
func WithOrchestrator(o *suggest.Orchestrator) Option {
	return func(a *App) { a.orch = o }
}

// WithMetrics sets the metrics instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRegistry sets the Prometheus registry served at /metrics. Default: the
// global Prometheus gatherer.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithCloser registers fn to run during Shutdown, after the server stops.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App. providers may be nil.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers, version: "dev"}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.orch == nil {
		a.orch = a.buildOrchestrator()
	}
	a.base, a.baseCancel = context.WithCancel(context.Background())

	a.health = health.New(a.checkers()...)
	if cfg.MCP.Enabled {
		a.mcp = mcptool.NewServer(a.orch, a.version)
	}

	slog.Info("suggestion engine ready",
		"augmented", a.orch.Augmented(),
		"cache_ttl", cfg.Suggest.CacheTTL,
		"augment_timeout", cfg.Suggest.AugmentTimeout,
		"mcp", cfg.MCP.Enabled,
	)
	return a, nil
}

func (a *App) buildOrchestrator() *suggest.Orchestrator {
	s := a.cfg.Suggest

	extra := make([]validate.Pattern, 0, len(s.DenyExtra))
	for _, d := range s.DenyExtra {
		extra = append(extra, validate.Exact(d))
	}

	opts := []suggest.Option{
		suggest.WithCache(cache.New[[]suggest.Candidate](cache.WithTTL(s.CacheTTL))),
		suggest.WithValidator(validate.New(validate.WithDenyList(validate.NewDenyList(extra...)))),
		suggest.WithMetrics(a.metrics),
		suggest.WithSampling(augment.Sampling{
			Temperature: s.Temperature,
			TopP:        s.TopP,
			MaxTokens:   s.MaxTokens,
		}),
		suggest.WithAugmentTimeout(s.AugmentTimeout),
		suggest.WithEntitlementTimeout(a.cfg.Entitlement.CheckTimeout),
		suggest.WithMaxInputRunes(s.MaxInputRunes),
		suggest.WithLocalFill(s.LocalFill),
	}
	if a.providers.LLM != nil {
		opts = append(opts, suggest.WithAugmenter(augment.NewLLM(a.providers.LLM)))
	}
	if a.providers.Entitlement != nil {
		opts = append(opts, suggest.WithEntitlement(a.providers.Entitlement))
	}
	return suggest.New(opts...)
}

func (a *App) checkers() []health.Checker {
	var cs []health.Checker
	if a.providers.Database != nil {
		cs = append(cs, health.Database(a.providers.Database))
	}
	if br, ok := a.providers.LLM.(health.BreakerReporter); ok {
		cs = append(cs, health.Augmenter(br))
	}
	return cs
}

// Orchestrator returns the suggestion orchestrator.
func (a *App) Orchestrator() *suggest.Orchestrator { return a.orch }

// Handler returns the full HTTP surface wrapped in the observability
// middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/suggest", a.handleSuggest)
	mux.HandleFunc("GET /v1/transliterate", a.handleTransliterate)
	mux.HandleFunc("GET /v1/suggest/stream", a.handleStream)
	mux.Handle("GET /metrics", observe.MetricsHandler(a.registry))
	a.health.Register(mux)
	if a.mcp != nil {
		mux.Handle("/mcp", mcptool.Handler(a.mcp))
	}
	return observe.Middleware(a.metrics, observe.WithQuietPaths("/healthz", "/readyz", "/metrics"))(mux)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then drains in-flight requests
// for up to shutdownGrace. It returns nil after a clean shutdown.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	srv.RegisterOnShutdown(a.baseCancel)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("app: shutdown server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Shutdown runs the registered closers in order. It respects the context
// deadline: if ctx expires first, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.baseCancel()
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
