package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brandlens/brandlens/cmd/brandlens/commands"
	"github.com/brandlens/brandlens/logger"
)

var rootCmd = &cobra.Command{
	Use:   "brandlens",
	Short: "BrandLens - LLM brand mention monitoring",
	Long: `BrandLens - Monitor how LLM providers talk about your brand.

BrandLens runs tracked queries against LLM providers, detects brand and
competitor mentions in the responses, scores their sentiment, and stores
the executions for analysis.

Available commands:
  serve   - Start the API server with an embedded worker pool
  worker  - Start a standalone worker pool (no HTTP API)
  enqueue - Submit a monitoring job from the CLI
  jobs    - Inspect the monitoring job queue
  db      - Manage database operations

Examples:
  brandlens serve                        # API + workers
  brandlens enqueue --tenant t1 --project p1 --query "best CRM?"
  brandlens jobs ls --status failed      # Inspect failed jobs
  brandlens db stats                     # Show database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")
	rootCmd.PersistentFlags().String("config", "", "Path to a brandlens.toml configuration file")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.WorkerCmd)
	rootCmd.AddCommand(commands.EnqueueCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.DbCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
