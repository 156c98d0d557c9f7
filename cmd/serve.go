package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weeknotes.app/server/internal/config"
	"weeknotes.app/server/internal/granola"
	"weeknotes.app/server/internal/instrumentation"
	"weeknotes.app/server/internal/logging"
	"weeknotes.app/server/internal/server"
	"weeknotes.app/server/internal/store"
	"weeknotes.app/server/internal/summarize"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the weeknotes HTTP API",
		Long: `Starts the weeknotes HTTP API: planner endpoints, the Granola
OAuth/sync endpoints, health probes and Prometheus metrics.

Configuration comes from the environment (a local .env file is honored).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.Debug)
	logger.Info("starting weeknotes", slog.String("version", version), slog.String("addr", cfg.Addr))

	instrCfg := instrumentation.DefaultConfig()
	instrCfg.ServiceVersion = version
	provider, err := instrumentation.NewProvider(ctx, instrCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	db, err := store.New(ctx, store.Config{DSN: cfg.DatabaseURL})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Bootstrap(ctx); err != nil {
		return err
	}

	oauthMgr := granola.NewOAuthManager(db.Credentials(), cfg.GranolaMCPURL, logger, metrics)
	sessions := granola.NewFactory(cfg.GranolaMCPURL, version, logger, metrics)
	summarizer := summarize.New(summarize.Config{
		APIKey:  cfg.Summary.APIKey,
		BaseURL: cfg.Summary.BaseURL,
		Model:   cfg.Summary.Model,
	})
	fetcher := granola.NewFetcher(summarizer, logger)
	syncer := granola.NewSyncer(oauthMgr, sessions, fetcher, db.Meetings(), logger, metrics)

	srv := server.New(cfg, logger, metrics,
		oauthMgr, syncer, sessions, db.Meetings(), server.NewHealthChecker(db))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
