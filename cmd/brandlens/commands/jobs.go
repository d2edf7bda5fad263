package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brandlens/brandlens/queue"
)

// JobsCmd groups job queue inspection commands
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the monitoring job queue",
	Long: `Inspect monitoring jobs and queue statistics.

Examples:
  brandlens jobs ls                    # Recent jobs
  brandlens jobs ls --status failed    # Failed jobs only
  brandlens jobs get <job-id>          # One job in detail`,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent jobs",
	RunE:  runJobsLs,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

var (
	jobsStatusFlag string
	jobsLimitFlag  int
)

func init() {
	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsGetCmd)
	jobsLsCmd.Flags().StringVar(&jobsStatusFlag, "status", "", "Filter by status (queued, running, completed, failed, cancelled)")
	jobsLsCmd.Flags().IntVar(&jobsLimitFlag, "limit", 20, "Maximum number of jobs to show")
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	var statusFilter *queue.JobStatus
	if jobsStatusFlag != "" {
		if !queue.IsValidStatus(jobsStatusFlag) {
			return fmt.Errorf("unknown job status: %s", jobsStatusFlag)
		}
		status := queue.JobStatus(jobsStatusFlag)
		statusFilter = &status
	}

	jobs, err := app.queue.ListJobs(statusFilter, jobsLimitFlag)
	if err != nil {
		return err
	}

	stats, err := app.queue.GetStats()
	if err != nil {
		return err
	}
	fmt.Printf("Queue: %d queued, %d running, %d completed, %d failed, %d cancelled\n\n",
		stats.Queued, stats.Running, stats.Completed, stats.Failed, stats.Cancelled)

	if len(jobs) == 0 {
		fmt.Println("No jobs.")
		return nil
	}

	for _, job := range jobs {
		fmt.Printf("%s  %-9s  attempt %d/%d  progress %d/%d  tenant=%s project=%s\n",
			job.ID, job.Status, job.Attempts, job.MaxAttempts,
			job.Progress.Current, job.Progress.Total, job.TenantID, job.ProjectID)
		if job.Error != "" {
			fmt.Printf("  error: %s\n", job.Error)
		}
	}
	return nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	job, err := app.queue.GetJob(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Job %s\n", job.ID)
	fmt.Printf("  status:       %s\n", job.Status)
	fmt.Printf("  tenant:       %s\n", job.TenantID)
	fmt.Printf("  project:      %s\n", job.ProjectID)
	if len(job.QueryIDs) > 0 {
		fmt.Printf("  queries:      %s\n", strings.Join(job.QueryIDs, ", "))
	} else {
		fmt.Printf("  queries:      all active\n")
	}
	if len(job.Providers) > 0 {
		fmt.Printf("  providers:    %s\n", strings.Join(job.Providers, ", "))
	}
	fmt.Printf("  progress:     %d/%d\n", job.Progress.Current, job.Progress.Total)
	fmt.Printf("  attempts:     %d/%d\n", job.Attempts, job.MaxAttempts)
	for _, executionID := range job.ExecutionIDs {
		fmt.Printf("  execution:    %s\n", executionID)
	}
	if job.Error != "" {
		fmt.Printf("  error:        %s\n", job.Error)
	}
	fmt.Printf("  created:      %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Printf("  started:      %s\n", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Printf("  completed:    %s\n", job.CompletedAt.Format(time.RFC3339))
	}
	return nil
}
