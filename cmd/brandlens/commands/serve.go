package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brandlens/brandlens/errors"
	"github.com/brandlens/brandlens/logger"
	"github.com/brandlens/brandlens/queue"
	"github.com/brandlens/brandlens/server"
)

// ServeCmd starts the API server with an embedded worker pool
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the BrandLens API server",
	Long: `Start the HTTP API server with an embedded monitoring worker pool.

The server exposes the execute/executions/jobs API plus a WebSocket job
stream, while the worker pool drains the monitoring job queue in the
background.

Examples:
  brandlens serve
  brandlens serve --no-workers      # API only, run workers separately`,
	RunE: runServe,
}

var noWorkersFlag bool

func init() {
	ServeCmd.Flags().BoolVar(&noWorkersFlag, "no-workers", false, "Serve the API without an embedded worker pool")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pool *queue.WorkerPool
	jobQueue := app.queue
	if !noWorkersFlag {
		pool = queue.NewWorkerPoolWithContext(ctx, app.db, app.cfg.Worker, queue.NewRunnerExecutor(app.runner, app.store), logger.Logger)
		pool.SetPruner(app.cache)
		// Share the pool's queue so WebSocket subscribers see worker-side
		// status transitions, not just enqueues
		jobQueue = pool.GetQueue()
		pool.Start()
	}

	srv := server.NewServer(app.runner, app.store, jobQueue, app.cfg.Server, logger.Logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if pool != nil {
			pool.Stop()
		}
		return errors.Wrap(err, "server failed")
	case sig := <-sigChan:
		logger.Infow("Shutting down", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("HTTP shutdown did not complete cleanly", "error", err)
		}
		if pool != nil {
			pool.Stop()
		}
		return nil
	}
}
