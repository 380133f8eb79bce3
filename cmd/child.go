// cmd/child.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/resqd/resq/internal/store"
	"github.com/resqd/resq/internal/worker"
)

var (
	childQueues         string
	childInterval       time.Duration
	childJobsPerFork    int
	childParentIdentity string
)

// childCmd is the processor a supervisor re-execs for each child slot. Not
// meant to be invoked by hand. Trailing arguments carry the process title so
// it shows up in ps output; they are ignored here.
var childCmd = &cobra.Command{
	Use:    "child",
	Short:  "Run a single child processor (internal)",
	Hidden: true,
	Args:   cobra.ArbitraryArgs,
	Run:    runChild,
}

func runChild(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	s := store.NewClient(store.Config{
		URL:       rootRedisURL,
		Password:  getEnvOrDefault("REDIS_PASSWORD", ""),
		Namespace: rootNamespace,
		LogFn:     logLine,
	})

	p, err := worker.NewProcessor(s, Registry(), worker.ProcessorConfig{
		ParentIdentity: childParentIdentity,
		Queues:         splitList(childQueues),
		JobsPerFork:    childJobsPerFork,
		Interval:       childInterval,
		LogFn:          logLine,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := p.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(childCmd)

	childCmd.Flags().StringVar(&childQueues, "queues", "", "Comma-separated queue list in priority order")
	childCmd.Flags().DurationVar(&childInterval, "interval", worker.DefaultInterval, "Poll interval; 0 drains once and exits")
	childCmd.Flags().IntVar(&childJobsPerFork, "jobs-per-fork", worker.DefaultJobsPerFork, "Jobs to execute before exiting")
	childCmd.Flags().StringVar(&childParentIdentity, "parent-identity", "", "Worker identity of the supervising process")
}
