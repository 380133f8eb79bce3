// cmd/work.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/resqd/resq/internal/prune"
	"github.com/resqd/resq/internal/worker"
)

var (
	workQueues         string
	workWorkerCount    int
	workJobsPerFork    int
	workInterval       time.Duration
	workTermTimeout    time.Duration
	workBackground     bool
	workPIDFile        string
	workProclinePrefix string
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run a worker supervisor processing jobs from Redis queues",
	Long: `Starts a supervisor that registers a worker identity, heartbeats under
it, and keeps a pool of child processors pulling jobs from the configured
queues in priority order.

Queues are comma-separated and checked left to right; '*' watches every
queue. Each child exits after --jobs-per-fork jobs and is respawned with a
fresh address space.

Signals:
  TERM, INT  stop: children get TERM, then KILL after the grace period
  QUIT       graceful stop: children finish their current job
  USR1       abort the jobs in flight, keep working
  USR2       pause: stop reserving new jobs
  CONT       resume after USR2

Examples:
  # Work the critical queue, then mail
  resq work --queues=critical,mail

  # Four children, 10 jobs per fork, against a remote Redis
  resq work --queues='*' --workers=4 --jobs-per-fork=10 --redis-url=redis://redis:6379

  # Classic env-driven invocation
  QUEUES=critical,mail WORKER_COUNT=2 resq work`,
	Run: runWork,
}

func runWork(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cmd.Flags().Changed("queues") {
		cfg.Queues = splitList(workQueues)
	}
	if cmd.Flags().Changed("workers") {
		cfg.WorkerCount = workWorkerCount
	}
	if cmd.Flags().Changed("jobs-per-fork") {
		cfg.JobsPerFork = workJobsPerFork
	}
	if cmd.Flags().Changed("interval") {
		cfg.Interval = workInterval
	}
	if cmd.Flags().Changed("term-timeout") {
		cfg.TermTimeout = workTermTimeout
	}
	if workBackground {
		cfg.Background = true
	}
	if workPIDFile != "" {
		cfg.PIDFile = workPIDFile
	}
	if workProclinePrefix != "" {
		cfg.ProclinePrefix = workProclinePrefix
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Verbose {
		verboseMode = true
	}
	if cfg.VeryVerbose {
		debugMode = true
	}

	if cfg.Background {
		if err := daemonize(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to daemonize: %v\n", err)
			os.Exit(1)
		}
	}

	if cfg.PIDFile != "" {
		pid := fmt.Sprintf("%d\n", os.Getpid())
		if err := os.WriteFile(cfg.PIDFile, []byte(pid), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to write pidfile %s: %v\n", cfg.PIDFile, err)
			os.Exit(1)
		}
		defer os.Remove(cfg.PIDFile)
	}

	ctx := context.Background()
	s, err := connectStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	host, err := os.Hostname()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read hostname: %v\n", err)
		os.Exit(1)
	}
	pruner := prune.New(s, prune.Config{
		Self:              worker.NewIdentity(host, os.Getpid(), cfg.Queues),
		HeartbeatInterval: cfg.HeartbeatInterval,
		LogFn:             logLine,
	})

	sv, err := worker.NewSupervisor(s, worker.SupervisorConfig{
		Queues:            cfg.Queues,
		WorkerCount:       cfg.WorkerCount,
		JobsPerFork:       cfg.JobsPerFork,
		Interval:          cfg.Interval,
		TermTimeout:       cfg.TermTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ThreadCount:       cfg.ThreadCount,
		ProclinePrefix:    cfg.ProclinePrefix,
		RedisURL:          cfg.RedisURL,
		Namespace:         cfg.Namespace,
		PruneFn:           pruner.Run,
		LogFn:             logLine,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := sv.Work(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(workCmd)

	workCmd.Flags().StringVar(&workQueues, "queues", "", "Comma-separated queue list in priority order (or set QUEUES env)")
	workCmd.Flags().IntVar(&workWorkerCount, "workers", worker.DefaultWorkerCount, "Number of child processors to keep running")
	workCmd.Flags().IntVar(&workJobsPerFork, "jobs-per-fork", worker.DefaultJobsPerFork, "Jobs a child executes before it is respawned")
	workCmd.Flags().DurationVar(&workInterval, "interval", worker.DefaultInterval, "Poll interval; 0 drains the queues once and exits")
	workCmd.Flags().DurationVar(&workTermTimeout, "term-timeout", worker.DefaultTermTimeout, "Grace period between TERM and KILL for children")
	workCmd.Flags().BoolVar(&workBackground, "background", false, "Detach and run in the background")
	workCmd.Flags().StringVar(&workPIDFile, "pidfile", "", "Write the supervisor PID to this file")
	workCmd.Flags().StringVar(&workProclinePrefix, "procline-prefix", "", "Prefix for the reported process title")
}
