// cmd/workers.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/resqd/resq/internal/job"
	"github.com/resqd/resq/internal/stats"
	"github.com/resqd/resq/internal/worker"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List registered workers and what they are doing",
	Long: `Shows every worker in the registry with its state, start time, last
heartbeat, and the job it is currently processing, plus fleet-wide
processed and failed counters.`,
	Args: cobra.NoArgs,
	Run:  runWorkers,
}

func runWorkers(cmd *cobra.Command, args []string) {
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

	infos, err := worker.All(ctx, s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	now, err := s.ServerTime(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(infos) == 0 {
		fmt.Println("No workers registered.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		bold := color.New(color.Bold)
		bold.Fprintln(w, "WORKER\tSTATE\tSTARTED\tHEARTBEAT\tCURRENT JOB")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				info.Identity.String(),
				stateCell(info.State),
				timeCell(info.Started),
				heartbeatCell(now, info.Heartbeat),
				jobCell(info.Working),
			)
		}
		w.Flush()
	}

	st := stats.NewClient(s)
	processed, err := st.Processed(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	failed, err := st.Failed(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\n%d processed, %d failed\n", processed, failed)
}

func stateCell(s worker.State) string {
	if s == worker.StateWorking {
		return infoColor.Sprint("working")
	}
	return string(s)
}

func timeCell(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func heartbeatCell(now, hb time.Time) string {
	if hb.IsZero() {
		return warnColor.Sprint("none")
	}
	age := now.Sub(hb).Round(time.Second)
	if age < 0 {
		age = 0
	}
	if age > 5*time.Minute {
		return errColor.Sprintf("%s ago", age)
	}
	return fmt.Sprintf("%s ago", age)
}

func jobCell(w *worker.WorkingPayload) string {
	if w == nil {
		return "-"
	}
	class := "?"
	if p, err := job.Decode(w.Payload); err == nil {
		class = p.Class
	}
	return fmt.Sprintf("%s on %s", class, w.Queue)
}

func init() {
	rootCmd.AddCommand(workersCmd)
}
