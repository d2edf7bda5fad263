package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brandlens/brandlens/db"
	"github.com/brandlens/brandlens/errors"
	"github.com/brandlens/brandlens/logger"
)

// DbCmd groups database management commands
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the BrandLens database",
	Long: `Manage database operations.

Examples:
  brandlens db migrate    # Apply pending migrations
  brandlens db stats      # Show database statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "migration failed")
	}
	defer database.Close()

	var version string
	if err := database.QueryRow(`SELECT COALESCE(MAX(version), '000') FROM schema_migrations`).Scan(&version); err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}

	fmt.Printf("Database %s migrated to schema version %s\n", cfg.Database.Path, version)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	counts := map[string]int{}
	for _, table := range []string{"tenants", "projects", "tracked_queries", "query_executions", "brand_mentions", "monitoring_jobs", "result_cache", "rate_limit_events"} {
		var n int
		if err := app.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			return errors.Wrapf(err, "failed to count %s", table)
		}
		counts[table] = n
	}

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Database Path:     %s\n", app.cfg.Database.Path)
	fmt.Printf("Tenants:           %d\n", counts["tenants"])
	fmt.Printf("Projects:          %d\n", counts["projects"])
	fmt.Printf("Tracked Queries:   %d\n", counts["tracked_queries"])
	fmt.Printf("Executions:        %d\n", counts["query_executions"])
	fmt.Printf("Brand Mentions:    %d\n", counts["brand_mentions"])
	fmt.Printf("Monitoring Jobs:   %d\n", counts["monitoring_jobs"])
	fmt.Printf("Cached Results:    %d\n", counts["result_cache"])
	fmt.Printf("Rate Limit Events: %d\n", counts["rate_limit_events"])

	stats, err := app.queue.GetStats()
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Printf("Job Queue:         %d queued, %d running, %d failed\n",
		stats.Queued, stats.Running, stats.Failed)
	return nil
}
