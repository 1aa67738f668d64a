// Command fluxgate is the main entry point for the fluxgate tool-dispatch
// gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/bananabit/fluxgate/internal/catalog"
	"github.com/bananabit/fluxgate/internal/config"
	"github.com/bananabit/fluxgate/internal/dispatch"
	"github.com/bananabit/fluxgate/internal/events"
	"github.com/bananabit/fluxgate/internal/gateway"
	"github.com/bananabit/fluxgate/internal/generate"
	"github.com/bananabit/fluxgate/internal/health"
	"github.com/bananabit/fluxgate/internal/model"
	"github.com/bananabit/fluxgate/internal/observe"
	"github.com/bananabit/fluxgate/internal/resilience"
	"github.com/bananabit/fluxgate/internal/store"
	"github.com/bananabit/fluxgate/internal/upstream"
	"github.com/bananabit/fluxgate/internal/upstream/flux"
	"github.com/bananabit/fluxgate/internal/upstream/scrapegraph"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fluxgate: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fluxgate: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("fluxgate starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"max_concurrent", cfg.Dispatch.MaxConcurrent,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "fluxgate",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Generation store ──────────────────────────────────────────────────────
	var (
		gens     store.Store
		checkers []health.Checker
	)
	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pool.Close()

		pgStore := store.NewPostgresStore(pool)
		if err := pgStore.Migrate(ctx); err != nil {
			slog.Error("failed to migrate generation store", "err", err)
			return 1
		}
		gens = pgStore
		checkers = append(checkers, health.Checker{Name: "store", Check: pool.Ping})
		slog.Info("using postgres generation store")
	} else {
		gens = store.NewMemoryStore()
		slog.Info("using in-memory generation store")
	}

	// ── Invocation event stream (optional) ────────────────────────────────────
	var publisher events.Publisher = events.NoopPublisher{}
	if url := cfg.Events.NATSURL; url != "" {
		nc, err := nats.Connect(url, nats.Name("fluxgate"))
		if err != nil {
			slog.Error("failed to connect to NATS", "err", err, "url", url)
			return 1
		}
		defer nc.Drain() //nolint:errcheck

		publisher = events.NewNATSPublisher(nc, cfg.Events.SubjectPrefix)
		checkers = append(checkers, health.Checker{
			Name: "events",
			Check: func(context.Context) error {
				if !nc.IsConnected() {
					return errors.New("nats connection down")
				}
				return nil
			},
		})
		slog.Info("publishing invocation events to NATS", "url", url)
	}

	// ── Upstream clients ──────────────────────────────────────────────────────
	fluxClient := flux.New(cfg.Upstreams.Flux.BaseURL, cfg.Upstreams.Flux.APIKey,
		upstream.WithMetrics(metrics),
		upstream.WithBreaker(resilience.New(resilience.Config{Name: "flux"})),
	)
	scraper := scrapegraph.New(cfg.Upstreams.ScrapeGraph.BaseURL, cfg.Upstreams.ScrapeGraph.APIKey,
		upstream.WithMetrics(metrics),
		upstream.WithBreaker(resilience.New(resilience.Config{Name: "scrapegraph"})),
	)

	// ── Tool registry and dispatcher ──────────────────────────────────────────
	registry, err := catalog.New(catalog.Deps{
		Flux:        fluxClient,
		Scraper:     scraper,
		Generations: gens,
	})
	if err != nil {
		slog.Error("failed to build tool catalogue", "err", err)
		return 1
	}

	dispatcher := dispatch.New(registry, dispatch.Config{
		MaxConcurrent:  cfg.Dispatch.MaxConcurrent,
		RequestTimeout: cfg.Dispatch.RequestTimeout.Std(),
		QueueWait:      cfg.Dispatch.QueueWait.Std(),
	},
		dispatch.WithMetrics(metrics),
		dispatch.WithPublisher(publisher),
	)

	models := model.NewCatalog()
	generator := generate.New(models, gens, dispatcher)

	// ── HTTP server ───────────────────────────────────────────────────────────
	healthHandler := health.New(checkers...).WithServices("images", "scraping", "channel")
	srv := gateway.New(dispatcher, generator, models,
		gateway.WithHealth(healthHandler),
		gateway.WithMetrics(metrics),
		gateway.WithLogger(logger),
		gateway.WithChannelBacklog(cfg.Dispatch.ChannelBacklog),
	)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready", "addr", cfg.Server.ListenAddr, "tools", registry.Len())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
