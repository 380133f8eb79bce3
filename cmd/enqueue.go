// cmd/enqueue.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/resqd/resq/internal/job"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue QUEUE CLASS [JSON_ARGS]",
	Short: "Push a job onto a queue",
	Long: `Enqueues a job for the given class. JSON_ARGS, when given, must be a
JSON array; each element becomes one argument of the job.

Examples:
  # No arguments
  resq enqueue mail SendWelcomeEmail

  # Two arguments
  resq enqueue mail SendEmail '["user@example.com", 42]'`,
	Args: cobra.RangeArgs(2, 3),
	Run:  runEnqueue,
}

func runEnqueue(cmd *cobra.Command, cmdArgs []string) {
	queue, class := cmdArgs[0], cmdArgs[1]

	var jobArgs []any
	if len(cmdArgs) == 3 {
		if err := json.Unmarshal([]byte(cmdArgs[2]), &jobArgs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: JSON_ARGS must be a JSON array: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	s, err := connectStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	payload, err := job.NewClient(s, jobRegistry).Create(ctx, queue, class, jobArgs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	infoColor.Printf("Enqueued %s on %s (id %s)\n", class, queue, payload.ID)
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}
