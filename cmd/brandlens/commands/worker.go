package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brandlens/brandlens/logger"
	"github.com/brandlens/brandlens/queue"
)

// WorkerCmd starts a standalone worker pool without the HTTP API
var WorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a standalone monitoring worker pool",
	Long: `Start a worker pool that drains the monitoring job queue without
serving the HTTP API. Useful for scaling workers separately from the
API process; both share the same SQLite database.

Examples:
  brandlens worker
  brandlens worker --workers 4`,
	RunE: runWorker,
}

var workersFlag int

func init() {
	WorkerCmd.Flags().IntVar(&workersFlag, "workers", 0, "Override the configured worker count")
}

func runWorker(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	workerCfg := app.cfg.Worker
	if workersFlag > 0 {
		workerCfg.Workers = workersFlag
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := queue.NewWorkerPoolWithContext(ctx, app.db, workerCfg, queue.NewRunnerExecutor(app.runner, app.store), logger.Logger)
	pool.SetPruner(app.cache)
	pool.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	logger.Infow("Shutting down worker pool", "signal", sig.String())
	pool.Stop()
	return nil
}
