package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brandlens/brandlens/queue"
)

// EnqueueCmd submits a monitoring job from the CLI
var EnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Submit a monitoring job",
	Long: `Submit a monitoring job to the queue. A running worker pool (serve
or worker command) picks it up.

Without --query-id the job runs every active query of the project;
without --provider each query runs on the default provider. Both flags
repeat to build a list.

Examples:
  brandlens enqueue --tenant t1 --project p1
  brandlens enqueue --tenant t1 --project p1 --query-id q42 --query-id q43
  brandlens enqueue --tenant t1 --project p1 --provider openai --provider anthropic`,
	RunE: runEnqueue,
}

var (
	enqueueTenantFlag    string
	enqueueProjectFlag   string
	enqueueQueryIDsFlag  []string
	enqueueProvidersFlag []string
)

func init() {
	EnqueueCmd.Flags().StringVar(&enqueueTenantFlag, "tenant", "", "Tenant id the job runs under (required)")
	EnqueueCmd.Flags().StringVar(&enqueueProjectFlag, "project", "", "Project id to monitor (required)")
	EnqueueCmd.Flags().StringSliceVar(&enqueueQueryIDsFlag, "query-id", nil, "Tracked query id to execute (repeatable; default all active)")
	EnqueueCmd.Flags().StringSliceVar(&enqueueProvidersFlag, "provider", nil, "Provider to run each query against (repeatable; default provider if omitted)")
	EnqueueCmd.MarkFlagRequired("tenant")
	EnqueueCmd.MarkFlagRequired("project")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	job, err := queue.NewJob(enqueueTenantFlag, enqueueProjectFlag, enqueueQueryIDsFlag, enqueueProvidersFlag)
	if err != nil {
		return err
	}

	if err := app.queue.Enqueue(job); err != nil {
		return err
	}

	fmt.Printf("Enqueued job %s\n", job.ID)
	fmt.Printf("  tenant:    %s\n", job.TenantID)
	fmt.Printf("  project:   %s\n", job.ProjectID)
	if len(job.QueryIDs) > 0 {
		fmt.Printf("  queries:   %s\n", strings.Join(job.QueryIDs, ", "))
	} else {
		fmt.Printf("  queries:   all active\n")
	}
	if len(job.Providers) > 0 {
		fmt.Printf("  providers: %s\n", strings.Join(job.Providers, ", "))
	}
	return nil
}
