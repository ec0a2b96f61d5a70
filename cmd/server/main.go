package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	h "github.com/ykarpov/dlqueue/internal/api/http"
	cfgpkg "github.com/ykarpov/dlqueue/internal/config"
	"github.com/ykarpov/dlqueue/internal/fetcher"
	repo "github.com/ykarpov/dlqueue/internal/repository"
	"github.com/ykarpov/dlqueue/internal/scheduler"
)

func main() {
	// Local overrides; absence of a .env file is not an error.
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded environment from .env")
	}

	cfg, err := cfgpkg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfgpkg.SetupLogger(cfg)
	slog.Info("configuration loaded successfully")

	store := repo.NewFileStore(cfg.StateFile)
	tasks, dropped, err := store.Load()
	if err != nil {
		// Unrecoverable storage at first startup: report and start empty.
		slog.Error("failed to load queue state, starting empty", "error", err)
		tasks = nil
	}
	if dropped > 0 {
		slog.Warn("recovered queue state with corrupt records dropped", "dropped", dropped)
	}

	sched := scheduler.New(cfg, store, fetcher.NewYTDLPFetcher(cfg.DownloadDir), slog.Default())
	sched.Restore(tasks)

	router := h.NewRouter(sched, slog.Default())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped gracefully")
}
