package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rickgao/livesync/internal/config"
	"github.com/rickgao/livesync/internal/credentials"
	"github.com/rickgao/livesync/internal/database"
	"github.com/rickgao/livesync/internal/engine"
	"github.com/rickgao/livesync/internal/metrics"
	"github.com/rickgao/livesync/internal/version"
	"github.com/rickgao/livesync/internal/writer"
)

const shutdownTimeout = 30 * time.Second

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect and keep the local cache in sync until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAndValidate(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := newLogger(os.Stdout, cfg.Log)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting livesync",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"ws_url", cfg.Server.WSURL,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	creds, err := newCredentialStore(cfg.Credentials)
	if err != nil {
		return err
	}

	deps := engine.Deps{
		Credentials: creds,
		Predicate:   credentials.PrefixPredicate(cfg.Credentials.CookiePrefix),
		Metrics:     m,
		Logger:      logger,
	}

	pool, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()

		w := writer.NewEntityWriter(writer.WriterConfig{
			BatchSize:     cfg.Writer.BatchSize,
			FlushInterval: cfg.Writer.FlushInterval,
			BufferSize:    cfg.Writer.BufferSize,
		}, pool, m, logger)
		if err := w.EnsureSchema(ctx); err != nil {
			return err
		}
		deps.Mirror = w
	}

	e := engine.New(engine.FromConfig(cfg), deps)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newStatusRouter(e, reg, cfg.Metrics.Path, cfg.Instance.ID, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", "error", err)
		}
	}()

	initErr := e.Initialize(ctx)
	if initErr == nil {
		registerSubscriptions(e, cfg.Subscriptions, logger)
		<-ctx.Done()
		logger.Info("received shutdown signal")
	} else {
		logger.Error("failed to initialize live-sync session", "error", initErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server shutdown error", "error", err)
	}
	if err := e.Stop(shutdownCtx); err != nil {
		logger.Error("engine shutdown error", "error", err)
	}

	logger.Info("livesync stopped")
	return initErr
}

// newCredentialStore seeds the cookie store from the cookies map and the
// raw cookie header. Header values win on conflict.
func newCredentialStore(cfg config.CredentialsConfig) (*credentials.MemoryStore, error) {
	cookies := make(map[string]string, len(cfg.Cookies))
	maps.Copy(cookies, cfg.Cookies)

	if cfg.CookieHeader != "" {
		parsed, err := credentials.ParseCookieHeader(cfg.CookieHeader)
		if err != nil {
			return nil, fmt.Errorf("credentials.cookie_header: %w", err)
		}
		maps.Copy(cookies, parsed)
	}
	return credentials.NewMemoryStore(cookies), nil
}

func registerSubscriptions(e *engine.Engine, subs []config.SubscriptionConfig, logger *slog.Logger) {
	for i, sub := range subs {
		d, err := sub.Descriptor()
		if err != nil {
			logger.Warn("skipping subscription", "index", i, "schema", sub.Schema, "error", err)
			continue
		}
		if !e.Register(d) {
			logger.Warn("registry closed, subscription not queued", "schema", sub.Schema)
			return
		}
		logger.Debug("subscription queued", "schema", d.Schema, "direction", d.Direction)
	}
}
