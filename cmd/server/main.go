package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/meshcall/internal/config"
	"github.com/BioHazard786/meshcall/internal/hub"
	"github.com/BioHazard786/meshcall/internal/logging"
	"github.com/BioHazard786/meshcall/internal/server"
	"github.com/BioHazard786/meshcall/internal/version"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := config.LoadServer()
	logger := logging.Init(logging.ParseLevel(cfg.LogLevel, slog.LevelInfo))

	if err := run(cfg, logger); err != nil {
		logger.Error("signaling server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.New(logger)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewRouter(h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		h.Run(ctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("starting signaling server", "addr", srv.Addr, "version", version.Version)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
