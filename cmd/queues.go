// cmd/queues.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/resqd/resq/internal/job"
)

var destroyClass string

var queuesCmd = &cobra.Command{
	Use:   "queues [QUEUE [JSON_ARGS]]",
	Short: "List queues, or destroy matching jobs from one",
	Long: `Without arguments, lists every known queue with its current size.

With --destroy, removes jobs of the given class from QUEUE. When JSON_ARGS
is given, only jobs whose arguments match exactly are removed; otherwise
every job of the class goes.

Examples:
  # Show all queues and their sizes
  resq queues

  # Drop every SendEmail job from the mail queue
  resq queues mail --destroy=SendEmail

  # Drop only the jobs with these exact arguments
  resq queues mail --destroy=SendEmail '["user@example.com", 42]'`,
	Args: cobra.MaximumNArgs(2),
	Run:  runQueues,
}

func runQueues(cmd *cobra.Command, args []string) {
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

	if destroyClass != "" {
		if len(args) == 0 {
			fmt.Fprintf(os.Stderr, "Error: --destroy requires a QUEUE argument\n")
			os.Exit(1)
		}
		var jobArgs []any
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &jobArgs); err != nil {
				fmt.Fprintf(os.Stderr, "Error: JSON_ARGS must be a JSON array: %v\n", err)
				os.Exit(1)
			}
		}
		removed, err := job.NewClient(s, jobRegistry).Destroy(ctx, args[0], destroyClass, jobArgs...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		infoColor.Printf("Destroyed %d job(s) of class %s from %s\n", removed, destroyClass, args[0])
		return
	}

	names, err := s.Queues(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(names) == 0 {
		fmt.Println("No queues.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	bold := color.New(color.Bold)
	bold.Fprintln(w, "QUEUE\tSIZE")
	for _, name := range names {
		size, err := s.Size(ctx, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(w, "%s\t%d\n", name, size)
	}
}

func init() {
	rootCmd.AddCommand(queuesCmd)

	queuesCmd.Flags().StringVar(&destroyClass, "destroy", "", "Remove jobs of this class from QUEUE")
}
