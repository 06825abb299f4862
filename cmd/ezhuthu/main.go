// Command ezhuthu is the entry point for the Tamil suggestion server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/ezhuthu/internal/app"
	"github.com/MrWong99/ezhuthu/internal/config"
	"github.com/MrWong99/ezhuthu/internal/entitlement/postgres"
	"github.com/MrWong99/ezhuthu/internal/observe"
	"github.com/MrWong99/ezhuthu/internal/resilience"
	"github.com/MrWong99/ezhuthu/internal/suggest"
	"github.com/MrWong99/ezhuthu/pkg/provider/llm"
	"github.com/MrWong99/ezhuthu/pkg/provider/llm/anyllm"
	"github.com/MrWong99/ezhuthu/pkg/provider/llm/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	once := flag.String("once", "", "resolve a single fragment, print the options and exit")
	mode := flag.String("mode", "", "register for -once: standard or news")
	setQuota := flag.String("set-quota", "", "set an account quota as ACCOUNT=N in the entitlement database and exit")
	usage := flag.String("usage", "", "print an account's usage in the current period and exit")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	// ── Configuration (watched for log level changes) ─────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(r config.Reload) {
		applyReload(&level, r.Diff, r.New)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ezhuthu: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ezhuthu: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()
	level.Set(cfg.Server.LogLevel.Slog())

	slog.Info("ezhuthu starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registry:       promReg,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers := &app.Providers{}
	if providers.LLM, err = buildLLM(cfg, reg, metrics); err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}

	opts := []app.Option{
		app.WithMetrics(metrics),
		app.WithRegistry(promReg),
		app.WithVersion(version),
		app.WithCloser(func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdownTelemetry(sctx)
		}),
	}

	if dsn := cfg.Entitlement.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to open entitlement database", "err", err)
			return 1
		}
		store := postgres.New(pool,
			postgres.WithDefaultQuota(cfg.Entitlement.DefaultQuota),
			postgres.WithPeriod(cfg.Entitlement.Period),
		)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			slog.Error("failed to migrate entitlement schema", "err", err)
			return 1
		}
		if *setQuota != "" || *usage != "" {
			code := runAdmin(ctx, os.Stdout, store, *setQuota, *usage)
			pool.Close()
			_ = shutdownTelemetry(context.Background())
			return code
		}
		providers.Entitlement = store
		providers.Database = pool
		opts = append(opts, app.WithCloser(func() error { pool.Close(); return nil }))
		slog.Info("entitlement store ready", "default_quota", cfg.Entitlement.DefaultQuota, "period", cfg.Entitlement.Period)
	} else if *setQuota != "" || *usage != "" {
		fmt.Fprintln(os.Stderr, "ezhuthu: -set-quota and -usage need entitlement.postgres_dsn")
		return 2
	}

	application, err := app.New(cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *once != "" {
		code := resolveOnce(ctx, application, *once, *mode)
		if err := application.Shutdown(context.Background()); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
		return code
	}

	printStartupSummary(cfg)

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyReload applies what can change at runtime and reports the rest.
func applyReload(level *slog.LevelVar, diff config.ConfigDiff, cur *config.Config) {
	if diff.LogLevelChanged {
		level.Set(diff.NewLogLevel.Slog())
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if len(diff.RestartRequired) > 0 {
		slog.Warn("config sections changed; restart to apply",
			"sections", diff.RestartRequired,
			"listen_addr", cur.Server.ListenAddr,
		)
	}
}

func resolveOnce(ctx context.Context, a *app.App, text, mode string) int {
	res, err := a.Orchestrator().ResolveDetailed(ctx, suggest.Request{Text: text, Mode: suggest.Mode(mode)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ezhuthu: %v\n", err)
		return 2
	}
	for _, c := range res.Candidates {
		fmt.Printf("%d. %s\t(%s, %.2f)\n", c.Rank, c.Text, c.Source, c.Confidence)
	}
	slog.Debug("resolved", "state", res.State(), "augment", res.Augment)
	if len(res.Candidates) == 0 {
		return 3
	}
	return 0
}

// quotaAdmin is the part of the entitlement store the admin flags use.
type quotaAdmin interface {
	SetQuota(ctx context.Context, account string, quota int) error
	Usage(ctx context.Context, account string) ([]postgres.UsageEvent, error)
}

// runAdmin applies -set-quota and prints -usage.
func runAdmin(ctx context.Context, out io.Writer, store quotaAdmin, setQuota, usage string) int {
	if setQuota != "" {
		account, n, ok := strings.Cut(setQuota, "=")
		quota, err := strconv.Atoi(strings.TrimSpace(n))
		if !ok || err != nil || strings.TrimSpace(account) == "" {
			fmt.Fprintf(os.Stderr, "ezhuthu: -set-quota %q: want ACCOUNT=N\n", setQuota)
			return 2
		}
		if err := store.SetQuota(ctx, strings.TrimSpace(account), quota); err != nil {
			fmt.Fprintf(os.Stderr, "ezhuthu: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "quota for %s set to %d\n", strings.TrimSpace(account), quota)
	}
	if usage != "" {
		events, err := store.Usage(ctx, usage)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ezhuthu: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "%s: %d events in the current period\n", usage, len(events))
		for _, ev := range events {
			fmt.Fprintf(out, "  %s  %s\n", ev.CreatedAt.Format(time.RFC3339), ev.Kind)
		}
	}
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in LLM factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d, err := time.ParseDuration(optString(entry.Options, "timeout")); err == nil {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining backends share one shape: optional APIKey + optional
	// BaseURL. Local servers (ollama, llamacpp, llamafile) ignore the key.
	for _, providerName := range anyllm.ProviderNames {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	slog.Debug("registered llm providers", "names", reg.LLMNames())
}

// buildLLM instantiates the primary LLM and its fallbacks, each instrumented
// and behind its own circuit breaker. It returns nil when no LLM is
// configured.
func buildLLM(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (llm.Provider, error) {
	primary := cfg.Providers.LLM
	if primary.Name == "" {
		return nil, nil
	}
	p, err := reg.CreateLLM(primary)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", primary.Name, err)
	}
	group := resilience.NewLLMFallback(observe.InstrumentLLM(primary.Name, p, m), primary.Name, resilience.FallbackConfig{})
	slog.Info("provider created", "kind", "llm", "name", primary.Name, "model", primary.Model)

	for i, fb := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %d %q: %w", i, fb.Name, err)
		}
		label := fmt.Sprintf("%s#%d", fb.Name, i+1)
		group.AddFallback(label, observe.InstrumentLLM(label, p, m))
		slog.Info("provider created", "kind", "llm-fallback", "name", fb.Name, "model", fb.Model)
	}
	return group, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Ezhuthu: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("LLM", providerLabel(cfg.Providers.LLM))
	printRow("Fallbacks", fmt.Sprint(len(cfg.Providers.LLMFallbacks)))
	printRow("Cache TTL", cfg.Suggest.CacheTTL.String())
	printRow("Augment timeout", cfg.Suggest.AugmentTimeout.String())
	if cfg.Entitlement.PostgresDSN != "" {
		printRow("Entitlement", "postgres")
	} else {
		printRow("Entitlement", "(unlimited)")
	}
	if cfg.MCP.Enabled {
		printRow("MCP", "/mcp")
	} else {
		printRow("MCP", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(local only)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	default:
		return e.Name
	}
}

func printRow(label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map. It returns
// "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return strings.TrimSpace(s)
}
