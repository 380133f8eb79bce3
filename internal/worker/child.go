package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/resqd/resq/internal/failure"
	"github.com/resqd/resq/internal/job"
	"github.com/resqd/resq/internal/queues"
	"github.com/resqd/resq/internal/stats"
	"github.com/resqd/resq/internal/store"
)

// pausedSleep is how long a paused child waits before re-checking its flags.
const pausedSleep = time.Second

// ErrAbort is injected into a running job when USR1 asks the child to drop
// the current job and keep reserving.
var ErrAbort = errors.New("job aborted by USR1")

// ProcessorConfig holds configuration for a child processor.
type ProcessorConfig struct {
	// ParentIdentity is the registry identity the child reports under; the
	// supervisor owns it, the child only writes the working payload.
	ParentIdentity string

	// Queues is the configured queue list; patterns allowed.
	Queues []string

	// JobsPerFork is how many jobs to execute before exiting (min 1).
	JobsPerFork int

	// Interval is the sleep between empty reservation attempts. Zero means
	// exit as soon as every queue is empty.
	Interval time.Duration

	// LogFn is an optional callback for logging (if nil, prints to stdout/stderr)
	LogFn func(level, msg string)
}

// Processor is the loop run inside a child: reserve, execute, report, up to
// JobsPerFork times, then exit so the supervisor reforks a clean process.
type Processor struct {
	config   ProcessorConfig
	store    *store.Client
	jobs     *job.Client
	stats    *stats.Client
	resolver *queues.Resolver

	mu        sync.Mutex
	cancelJob context.CancelCauseFunc
	paused    bool
	quit      bool
}

// NewProcessor validates the configuration and builds a child processor.
func NewProcessor(s *store.Client, reg *job.Registry, cfg ProcessorConfig) (*Processor, error) {
	resolver, err := queues.NewResolver(cfg.Queues, s)
	if err != nil {
		return nil, err
	}
	if cfg.ParentIdentity == "" {
		return nil, fmt.Errorf("child processor needs a parent identity")
	}
	if cfg.JobsPerFork < 1 {
		cfg.JobsPerFork = 1
	}
	return &Processor{
		config:   cfg,
		store:    s,
		jobs:     job.NewClient(s, reg),
		stats:    stats.NewClient(s),
		resolver: resolver,
	}, nil
}

func (p *Processor) log(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.config.LogFn != nil {
		p.config.LogFn(level, msg)
		return
	}
	if level == "error" || level == "warning" {
		fmt.Fprintf(os.Stderr, "%s\n", msg)
	} else {
		fmt.Printf("%s\n", msg)
	}
}

// Run executes the child loop. It opens its own store connection first so
// nothing is shared with the parent across the exec boundary.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.store.Reconnect(ctx); err != nil {
		return fmt.Errorf("child failed to connect: %w", err)
	}

	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, lifecycleSignals()...)
	defer signal.Stop(sigCh)

	sigDone := make(chan struct{})
	defer close(sigDone)
	go p.watchSignals(sigCh, sigDone)

	executed := 0
	for executed < p.config.JobsPerFork {
		if p.isQuit() {
			p.log("info", "exiting.")
			return nil
		}
		if p.isPaused() {
			time.Sleep(pausedSleep)
			continue
		}

		j, err := p.reserve(ctx)
		if err != nil {
			return err
		}
		if j == nil {
			if p.config.Interval == 0 {
				return nil
			}
			p.log("debug", "sleeping for %s", p.config.Interval)
			time.Sleep(p.config.Interval)
			continue
		}

		if p.process(ctx, j) {
			executed++
		}
	}
	p.log("info", "executed %d jobs, exiting.", executed)
	return nil
}

// reserve polls the resolved queues in strict priority order and returns the
// first job found, or nil when every queue is empty.
func (p *Processor) reserve(ctx context.Context) (*job.Job, error) {
	resolved, err := p.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	for _, q := range resolved {
		j, err := p.jobs.Reserve(ctx, q)
		if err != nil {
			return nil, err
		}
		if j != nil {
			return j, nil
		}
	}
	return nil, nil
}

// process runs one job through the hook pipeline, keeping the working
// payload in the registry for exactly the duration of execution. It reports
// whether the job counts against the fork budget: a job that ran, whether it
// succeeded or failed, counts; a DontPerform veto does not.
func (p *Processor) process(ctx context.Context, j *job.Job) bool {
	j.Worker = p.config.ParentIdentity

	encoded, err := job.Encode(j.Payload)
	if err != nil {
		p.log("error", "failed to re-encode reserved job: %v", err)
		return false
	}
	p.log("info", "got %s on %s", j.Payload.Class, j.Queue)

	if err := setWorking(ctx, p.store, p.config.ParentIdentity, j.Queue, encoded); err != nil {
		p.log("warning", "failed to set working payload: %v", err)
	}
	defer func() {
		if err := p.store.ClearPayload(ctx, p.config.ParentIdentity); err != nil {
			p.log("warning", "failed to clear working payload: %v", err)
		}
	}()

	jobCtx, cancel := context.WithCancelCause(ctx)
	p.setCancel(cancel)
	defer p.setCancel(nil)
	defer cancel(nil)

	performed, err := j.Perform(jobCtx)
	if err != nil {
		if cause := context.Cause(jobCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			p.log("warning", "caught %v while running %s", cause, j.Payload.Class)
		}
		p.log("error", "%s failed: %v", j.Payload.Class, err)
		if !j.SkipFailedQueue {
			if saveErr := failure.New(j.Queue, p.config.ParentIdentity, encoded, err).Save(ctx, p.store); saveErr != nil {
				p.log("error", "failed to record failure: %v", saveErr)
			}
		}
		if statErr := p.stats.IncrFailed(ctx, p.config.ParentIdentity); statErr != nil {
			p.log("warning", "failed to bump failed counter: %v", statErr)
		}
		return true
	}
	if !performed {
		p.log("debug", "%s chose not to perform", j.Payload.Class)
		return false
	}
	if statErr := p.stats.IncrProcessed(ctx, p.config.ParentIdentity); statErr != nil {
		p.log("warning", "failed to bump processed counter: %v", statErr)
	}
	p.log("info", "done with %s", j.Payload.Class)
	return true
}

// watchSignals flips flags and interrupts the running job; it never touches
// the store.
func (p *Processor) watchSignals(sigCh <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case sig := <-sigCh:
			switch classifySignal(sig) {
			case actStop:
				p.setQuit()
				p.interrupt(job.ErrTerm)
			case actStopGraceful:
				p.setQuit()
			case actAbortJob:
				p.setPaused(false)
				p.interrupt(ErrAbort)
			case actPause:
				p.setPaused(true)
			case actResume:
				p.setPaused(false)
			}
		}
	}
}

func (p *Processor) setCancel(cancel context.CancelCauseFunc) {
	p.mu.Lock()
	p.cancelJob = cancel
	p.mu.Unlock()
}

func (p *Processor) interrupt(cause error) {
	p.mu.Lock()
	cancel := p.cancelJob
	p.mu.Unlock()
	if cancel != nil {
		cancel(cause)
	}
}

func (p *Processor) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Processor) setPaused(v bool) {
	p.mu.Lock()
	p.paused = v
	p.mu.Unlock()
}

func (p *Processor) isQuit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quit
}

func (p *Processor) setQuit() {
	p.mu.Lock()
	p.quit = true
	p.mu.Unlock()
}
