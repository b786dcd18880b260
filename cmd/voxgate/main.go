// Command voxgate is the TTS streaming gateway server.
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

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxgate/internal/config"
	"github.com/MrWong99/voxgate/internal/gateway"
	"github.com/MrWong99/voxgate/internal/health"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/ratelimit"
	"github.com/MrWong99/voxgate/internal/resilience"
	"github.com/MrWong99/voxgate/internal/session"
	"github.com/MrWong99/voxgate/internal/stream"
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/provider/tts/coqui"
	"github.com/MrWong99/voxgate/pkg/provider/tts/mocktone"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	fromFile := err == nil
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxgate: %v\n", err)
			return 1
		}
		// No config file: run on defaults plus environment overrides.
		cfg = config.Defaults()
		config.FromEnv(cfg)
		if err := config.Validate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "voxgate: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so the config watcher can adjust it
	// without restarting.
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Server.LogLevel.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("voxgate starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"providers", cfg.EnabledProviders(),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxgate",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Synthesis providers ───────────────────────────────────────────────────
	factories := config.NewRegistry()
	registerBuiltinProviders(factories)

	providers := tts.NewRegistry()
	for _, name := range cfg.EnabledProviders() {
		p, err := factories.Create(name, cfg)
		if err != nil {
			slog.Error("failed to build provider", "provider", name, "err", err)
			return 1
		}
		providers.Register(p)
		slog.Info("provider registered", "provider", name)
	}

	// ── Streaming core ────────────────────────────────────────────────────────
	store := session.NewStore(cfg.Session.Retention)
	breakers := resilience.NewRegistry(resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Breaker.MaxFailures,
		ResetTimeout: cfg.Breaker.ResetTimeout,
		HalfOpenMax:  cfg.Breaker.HalfOpenMax,
	})
	svc := stream.NewService(store, providers, breakers, metrics, stream.Config{
		PullTimeout:          cfg.Stream.PullTimeout,
		MaxAttempts:          cfg.Stream.MaxAttempts,
		BackoffBase:          cfg.Stream.BackoffBase,
		StrictVoiceOwnership: cfg.Session.StrictVoiceOwnership,
		FFmpegPath:           cfg.Transcode.FFmpegPath,
	})
	queue := stream.NewQueue(cfg.Queue.Maxsize, metrics)
	pool := stream.NewWorkerPool(queue, cfg.Queue.WorkerCount, svc.Stream, metrics)

	// ── HTTP surface ──────────────────────────────────────────────────────────
	limiter := ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.RateLimit.MaxRequestsPerWindow,
		Window:      cfg.RateLimit.Window(),
	})
	checks := health.New(
		health.ProvidersChecker(providers),
		health.QueueChecker(queue.Depth, queue.Capacity()),
	)
	srv := gateway.NewServer(svc, queue, limiter, metrics, checks)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if fromFile {
		watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
			d := config.Diff(old, updated)
			if d.LogLevelChanged {
				levelVar.Set(d.NewLogLevel.SlogLevel())
				slog.Info("log level updated", "level", d.NewLogLevel)
			}
			if d.RestartRequired {
				slog.Warn("configuration change requires a restart to take effect")
			}
		})
		if err != nil {
			slog.Warn("config watcher unavailable", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pool.Run(gctx)
	})
	g.Go(func() error {
		store.Sweep(gctx)
		return nil
	})
	g.Go(func() error {
		var serveErr error
		if tls := cfg.Server.TLS; tls != nil {
			slog.Info("https server listening", "addr", cfg.Server.ListenAddr)
			serveErr = httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
			serveErr = httpServer.ListenAndServe()
		}
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}
		return serveErr
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	slog.Info("server ready")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the provider factories that ship with
// voxgate into reg. Each factory reads its own section of the config.
func registerBuiltinProviders(reg *config.Registry) {
	reg.Register("mock_tone", func(cfg *config.Config) (tts.Provider, error) {
		return mocktone.New(cfg.Providers.MockTone.SampleRateHz), nil
	})

	reg.Register("coqui", func(cfg *config.Config) (tts.Provider, error) {
		c := cfg.Providers.Coqui
		var opts []coqui.Option
		if c.ModelName != "" {
			opts = append(opts, coqui.WithModelName(c.ModelName))
		}
		if c.Language != "" {
			opts = append(opts, coqui.WithLanguage(c.Language))
		}
		if c.Timeout > 0 {
			opts = append(opts, coqui.WithTimeout(c.Timeout))
		}
		return coqui.New(c.BaseURL, opts...), nil
	})
}
