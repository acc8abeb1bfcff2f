package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/practicum-hub/practicum/cmd/practicum/cli"
	"github.com/practicum-hub/practicum/internal/app"
	"github.com/practicum-hub/practicum/internal/observability"
	"github.com/practicum-hub/practicum/internal/platform/cache"
	"github.com/practicum-hub/practicum/internal/registration"
	registrationhttp "github.com/practicum-hub/practicum/internal/registration/http"
	"github.com/practicum-hub/practicum/internal/registration/remote"
	"github.com/practicum-hub/practicum/internal/shared"
)

const usage = `usage: practicum [serve]
       practicum taxid [-json] ID...
       practicum ping [-timeout 5s]`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "taxid":
		fs := flag.NewFlagSet("taxid", flag.ContinueOnError)
		fs.SetOutput(stderr)
		jsonOutput := fs.Bool("json", false, "print results as JSON")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		return cli.TaxIDCommand(cli.TaxIDOptions{IDs: fs.Args(), JSONOutput: *jsonOutput, Stdout: stdout, Stderr: stderr})
	case "ping":
		fs := flag.NewFlagSet("ping", flag.ContinueOnError)
		fs.SetOutput(stderr)
		timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		cfg, err := app.LoadConfig()
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
			return 1
		}
		backend, err := remote.NewClient(cfg.BackendBaseURL, *timeout, app.NewLogger(cfg))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "backend client: %v\n", err)
			return 1
		}
		return cli.PingCommand(ctx, backend, cli.PingOptions{Timeout: *timeout, Stdout: stdout, Stderr: stderr})
	case "serve":
		if app.InTestMode() {
			slog.Default().Info("test mode detected, skipping runtime startup")
			return 0
		}
		if err := serve(ctx); err != nil {
			slog.Default().Error("serve", slog.Any("error", err))
			return 1
		}
		return 0
	default:
		_, _ = fmt.Fprintln(stderr, usage)
		return 2
	}
}

func serve(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	metrics := observability.NewMetrics()
	if err := registration.SetupMetrics(metrics.Registerer()); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	drafts, err := openDraftStorage(ctx, cfg, redisClient)
	if err != nil {
		return fmt.Errorf("open draft storage: %w", err)
	}
	defer drafts.close()

	backend, err := remote.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, logger)
	if err != nil {
		return err
	}
	if err := backend.Ping(ctx); err != nil {
		logger.Warn("registration backend not reachable", slog.Any("error", err))
	}

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	registry := newRegistry(cfg, drafts.storage, backend, logger)
	defer registry.Close()
	go registry.Run(ctx, cfg.WorkspaceSweep, cfg.WorkspaceIdle)

	readiness := map[string]app.HealthChecker{
		"backend": backend.Ping,
		"redis":   cache.Ping(redisClient),
	}
	if drafts.check != nil {
		readiness["drafts"] = drafts.check
	}

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		CSRFManager:         csrfManager,
		RegistrationHandler: registrationhttp.NewHandler(logger, registry, backend, csrfManager),
		Metrics:             metrics,
		Readiness:           readiness,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return app.Serve(ctx, server, 10*time.Second, logger)
}
