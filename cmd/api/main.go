package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coursedocs-backend/internal/bootstrap"
	"coursedocs-backend/internal/shared/config"
	"coursedocs-backend/internal/shared/server"
	"coursedocs-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	closeLog := telemetry.Setup(cfg.LogLevel, cfg.LogFile)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.RoleAPI)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	// The in-memory queue lives in this process, so its consumers must too.
	var workersDone chan error
	if cfg.QueueBackend == "memory" {
		workersDone = make(chan error, 1)
		go func() { workersDone <- app.Pool().Run(ctx) }()
		go func() { _ = app.Reconciler.Run(ctx) }()
	}

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		telemetry.Info("api.listening", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Error("api.shutdown_failed", map[string]any{"error": err.Error()})
	}
	if workersDone != nil {
		if err := <-workersDone; err != nil {
			telemetry.Error("api.workers_stopped", map[string]any{"error": err.Error()})
		}
	}
	telemetry.Info("api.stopped", nil)
}
