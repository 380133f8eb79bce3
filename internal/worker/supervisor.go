package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/resqd/resq/internal/queues"
	"github.com/resqd/resq/internal/stats"
	"github.com/resqd/resq/internal/store"
)

// Default worker settings. NewSupervisor applies the worker count and
// jobs-per-fork defaults; the interval and term timeout defaults are the CLI
// flag defaults, since zero is a meaningful value for both.
const (
	DefaultWorkerCount = 1
	DefaultJobsPerFork = 1
	DefaultInterval    = 5 * time.Second
	DefaultTermTimeout = 30 * time.Second
)

// SupervisorConfig holds configuration for a supervisor.
type SupervisorConfig struct {
	// Queues is the configured queue list; patterns allowed.
	Queues []string

	// WorkerCount is how many child processors to keep running (default: 1)
	WorkerCount int

	// JobsPerFork is how many jobs a child executes before exiting so the
	// refork produces a clean address space (default: 1, min 1)
	JobsPerFork int

	// Interval is the poll interval between reservation attempts and child
	// reap checks. Zero means single-shot: drain and exit.
	Interval time.Duration

	// TermTimeout is how long a child gets to wind down after TERM before
	// it is hard-killed. Zero kills immediately.
	TermTimeout time.Duration

	// HeartbeatInterval is the heartbeat cadence (default: 60s)
	HeartbeatInterval time.Duration

	// ThreadCount is reserved; values above 1 are rejected.
	ThreadCount int

	// ProclinePrefix is prepended to the process title.
	ProclinePrefix string

	// RedisURL and Namespace are passed to children so they can open their
	// own connection.
	RedisURL  string
	Namespace string

	// PruneFn, when set, is invoked at startup to evict dead peers.
	PruneFn func(ctx context.Context) error

	// LogFn is an optional callback for logging (if nil, prints to stdout/stderr)
	LogFn func(level, msg string)
}

// Supervisor owns a worker identity: it registers it, heartbeats under it,
// keeps N child processors alive, and fans signals out to them.
type Supervisor struct {
	config   SupervisorConfig
	store    *store.Client
	stats    *stats.Client
	identity Identity

	mu       sync.Mutex
	children map[int]*exec.Cmd
	procline string

	shutdown bool
	paused   bool
}

// NewSupervisor validates the configuration and builds a supervisor. The
// identity is fixed here and never changes.
func NewSupervisor(s *store.Client, cfg SupervisorConfig) (*Supervisor, error) {
	if _, err := queues.NewResolver(cfg.Queues, s); err != nil {
		return nil, err
	}
	if cfg.ThreadCount > 1 {
		return nil, fmt.Errorf("thread_count %d is not supported: must be 1", cfg.ThreadCount)
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.JobsPerFork < 1 {
		cfg.JobsPerFork = DefaultJobsPerFork
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}

	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to read hostname: %w", err)
	}

	return &Supervisor{
		config:   cfg,
		store:    s,
		stats:    stats.NewClient(s),
		identity: NewIdentity(host, os.Getpid(), cfg.Queues),
		children: make(map[int]*exec.Cmd),
	}, nil
}

// Identity returns the identity this supervisor registers under.
func (sv *Supervisor) Identity() Identity {
	return sv.identity
}

func (sv *Supervisor) log(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if sv.config.LogFn != nil {
		sv.config.LogFn(level, msg)
		return
	}
	if level == "error" || level == "warning" {
		fmt.Fprintf(os.Stderr, "%s\n", msg)
	} else {
		fmt.Printf("%s\n", msg)
	}
}

func (sv *Supervisor) setProcline(state string) {
	sv.mu.Lock()
	sv.procline = Procline(sv.config.ProclinePrefix, state)
	sv.mu.Unlock()
	sv.log("debug", "procline: %s", Procline(sv.config.ProclinePrefix, state))
}

// CurrentProcline returns the supervisor's current process title line.
func (sv *Supervisor) CurrentProcline() string {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.procline
}

// Work runs the supervisor until shutdown: register, heartbeat, fan out
// children, keep the pool at WorkerCount, tear down. With Interval == 0 the
// pool runs once until the queues drain, then exits.
func (sv *Supervisor) Work(ctx context.Context) error {
	sv.setProcline(StateStarting())
	if !signalsSupported() {
		sv.log("warning", "QUIT/USR1/USR2/CONT are unavailable on this platform")
	}

	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, lifecycleSignals()...)
	defer signal.Stop(sigCh)

	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		runHeartbeat(hbCtx, sv.store, sv.identity.String(), sv.config.HeartbeatInterval, sv.log)
	}()

	if sv.config.PruneFn != nil {
		if err := sv.config.PruneFn(ctx); err != nil {
			sv.log("warning", "prune failed: %v", err)
		}
	}

	if err := Register(ctx, sv.store, sv.identity); err != nil {
		stopHeartbeat()
		<-hbDone
		return fmt.Errorf("failed to register %s: %w", sv.identity, err)
	}
	sv.log("info", "registered %s", sv.identity)

	reaped := make(chan int, sv.config.WorkerCount)
	var pids []int
	for i := 0; i < sv.config.WorkerCount; i++ {
		pid, err := sv.spawnChild(reaped)
		if err != nil {
			sv.log("error", "failed to spawn child: %v", err)
			continue
		}
		pids = append(pids, pid)
	}
	sv.setProcline(StateForked(pids, time.Now().Unix()))

	loopErr := sv.supervise(ctx, sigCh, reaped)

	stopHeartbeat()
	<-hbDone

	teardownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Unregister(teardownCtx, sv.store, sv.stats, sv.identity, nil); err != nil {
		return errors.Join(loopErr, fmt.Errorf("teardown failed for %s: %w", sv.identity, err))
	}
	sv.log("info", "unregistered %s", sv.identity)
	return loopErr
}

// supervise reaps exited children and replaces them until shutdown. The
// select doubles as the signal handler: it only flips flags and forwards.
func (sv *Supervisor) supervise(ctx context.Context, sigCh <-chan os.Signal, reaped chan int) error {
	for {
		if sv.childCount() == 0 && (sv.isShutdown() || sv.config.Interval == 0) {
			return nil
		}
		select {
		case <-ctx.Done():
			sv.beginShutdown(sv.config.TermTimeout)
		case sig := <-sigCh:
			sv.handleSignal(sig)
		case pid := <-reaped:
			sv.mu.Lock()
			delete(sv.children, pid)
			sv.mu.Unlock()
			sv.log("info", "child %d exited", pid)
			if !sv.isShutdown() && sv.config.Interval > 0 {
				if newPid, err := sv.spawnChild(reaped); err != nil {
					sv.log("error", "failed to respawn child: %v", err)
				} else {
					sv.log("info", "respawned child %d", newPid)
				}
			}
		}
	}
}

func (sv *Supervisor) handleSignal(sig os.Signal) {
	switch classifySignal(sig) {
	case actStop:
		sv.log("info", "received %v, shutting down", sig)
		sv.beginShutdown(sv.config.TermTimeout)
	case actStopGraceful:
		sv.log("info", "received %v, finishing current jobs", sig)
		sv.setShutdown()
		sv.forward(forwardSignal(sig))
	case actAbortJob:
		sv.setPaused(false)
		sv.forward(forwardSignal(sig))
	case actPause:
		sv.setPaused(true)
		sv.forward(forwardSignal(sig))
		sv.setProcline(StatePaused())
	case actResume:
		sv.setPaused(false)
		sv.forward(forwardSignal(sig))
	}
}

// beginShutdown forwards TERM to every child and hard-kills any child still
// alive after the grace period. A zero grace kills immediately.
func (sv *Supervisor) beginShutdown(grace time.Duration) {
	if !sv.setShutdown() {
		return
	}
	sv.forward(syscall.SIGTERM)
	if grace <= 0 {
		sv.killRemaining()
		return
	}
	go func() {
		time.Sleep(grace)
		sv.killRemaining()
	}()
}

func (sv *Supervisor) forward(sig os.Signal) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for pid, cmd := range sv.children {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Signal(sig); err != nil {
			sv.log("warning", "failed to signal child %d: %v", pid, err)
		}
	}
}

func (sv *Supervisor) killRemaining() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for pid, cmd := range sv.children {
		if cmd.Process == nil {
			continue
		}
		if err := cmd.Process.Kill(); err == nil {
			sv.log("warning", "hard-killed child %d", pid)
		}
	}
}

func (sv *Supervisor) childCount() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return len(sv.children)
}

func (sv *Supervisor) isShutdown() bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.shutdown
}

// setShutdown flips the shutdown flag, reporting whether this call flipped it.
func (sv *Supervisor) setShutdown() bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.shutdown {
		return false
	}
	sv.shutdown = true
	return true
}

func (sv *Supervisor) setPaused(p bool) {
	sv.mu.Lock()
	sv.paused = p
	sv.mu.Unlock()
}

// Paused reports whether reservation is paused.
func (sv *Supervisor) Paused() bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.paused
}

// spawnChild re-execs the current binary as a child processor. The procline
// rides along as a trailing argument so process listings can identify resq
// children.
func (sv *Supervisor) spawnChild(reaped chan int) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to locate executable: %w", err)
	}

	cmd := exec.Command(exe, sv.childArgs()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start child: %w", err)
	}

	pid := cmd.Process.Pid
	sv.mu.Lock()
	sv.children[pid] = cmd
	sv.mu.Unlock()

	go func() {
		cmd.Wait()
		reaped <- pid
	}()
	return pid, nil
}

// childArgs builds the argv for a child processor re-exec.
func (sv *Supervisor) childArgs() []string {
	args := []string{
		"child",
		"--redis-url", sv.config.RedisURL,
		"--namespace", sv.config.Namespace,
		"--queues", strings.Join(sv.config.Queues, ","),
		"--interval", sv.config.Interval.String(),
		"--jobs-per-fork", strconv.Itoa(sv.config.JobsPerFork),
		"--parent-identity", sv.identity.String(),
		"--", Procline(sv.config.ProclinePrefix, StateWaiting(sv.config.Queues)),
	}
	return args
}
