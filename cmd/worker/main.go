package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"coursedocs-backend/internal/bootstrap"
	"coursedocs-backend/internal/queue"
	"coursedocs-backend/internal/shared/config"
	"coursedocs-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	closeLog := telemetry.Setup(cfg.LogLevel, cfg.LogFile)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.RoleWorker)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	if err := run(ctx, app); err != nil {
		telemetry.Error("worker.exit", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

// run hands back jobs parked by a previous crash, then runs the pool and the
// reconciler until ctx is cancelled.
func run(ctx context.Context, app *bootstrap.App) error {
	if r, ok := app.Queue.(queue.Recoverer); ok {
		n, err := r.Recover(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			telemetry.Info("worker.recovered", map[string]any{"jobs": n})
		}
	}

	telemetry.Info("worker.boot", map[string]any{
		"queue":       app.Config.QueueBackend,
		"concurrency": app.Config.WorkerConcurrency,
		"job_timeout": app.Config.JobTimeout.String(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Pool().Run(gctx)
	})
	g.Go(func() error {
		return app.Reconciler.Run(gctx)
	})
	err := g.Wait()
	telemetry.Info("worker.stopped", nil)
	return err
}
