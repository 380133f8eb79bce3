// Package prune garbage-collects registry entries left behind by workers
// that crashed or were killed without unregistering.
package prune

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/resqd/resq/internal/failure"
	"github.com/resqd/resq/internal/stats"
	"github.com/resqd/resq/internal/store"
	"github.com/resqd/resq/internal/worker"
)

// DefaultProcessPattern is the cmdline substring used to recognize worker
// processes on this host.
const DefaultProcessPattern = "resq"

// Config holds configuration for a pruner.
type Config struct {
	// Self is the identity of the supervisor running the prune. The host,
	// queue and liveness checks are made from its point of view.
	Self worker.Identity

	// HeartbeatInterval doubles as the prune lock TTL (default: 60s)
	HeartbeatInterval time.Duration

	// PruneInterval is how stale a heartbeat must be before its worker is
	// considered dead (default: 5x HeartbeatInterval)
	PruneInterval time.Duration

	// ProcessPattern filters the local process listing (default: "resq")
	ProcessPattern string

	// LocalPIDs overrides the process listing; used in tests.
	LocalPIDs func(ctx context.Context) (map[int]bool, error)

	// LogFn is an optional callback for logging (if nil, prints to stderr)
	LogFn func(level, msg string)
}

// Pruner evicts dead peers from the worker registry. At most one pruner in
// the fleet runs at a time, guarded by the expiring lock in the store.
type Pruner struct {
	config Config
	store  *store.Client
	stats  *stats.Client
}

// New builds a pruner, applying defaults.
func New(s *store.Client, cfg Config) *Pruner {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = worker.DefaultHeartbeatInterval
	}
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = 5 * cfg.HeartbeatInterval
	}
	if cfg.ProcessPattern == "" {
		cfg.ProcessPattern = DefaultProcessPattern
	}
	return &Pruner{config: cfg, store: s, stats: stats.NewClient(s)}
}

func (p *Pruner) log(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.config.LogFn != nil {
		p.config.LogFn(level, msg)
		return
	}
	fmt.Fprintf(os.Stderr, "%s\n", msg)
}

// Run performs one prune pass. If another pruner holds the lock, it returns
// immediately without touching anything. Running it again on an already
// clean registry is a no-op.
func (p *Pruner) Run(ctx context.Context) error {
	acquired, err := p.store.AcquirePruneLock(ctx, p.config.Self.String(), p.config.HeartbeatInterval)
	if err != nil {
		return fmt.Errorf("failed to acquire prune lock: %w", err)
	}
	if !acquired {
		p.log("debug", "prune already in progress elsewhere, skipping")
		return nil
	}

	ids, err := p.store.WorkerIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	heartbeats, err := p.store.AllHeartbeats(ctx)
	if err != nil {
		return err
	}
	now, err := p.store.ServerTime(ctx)
	if err != nil {
		return err
	}

	var localPIDs map[int]bool
	for _, idStr := range ids {
		id, err := worker.ParseIdentity(idStr)
		if err != nil {
			p.log("warning", "skipping malformed registry entry %q", idStr)
			continue
		}

		if hb, ok := heartbeats[idStr]; ok {
			if now.Sub(hb) > p.config.PruneInterval {
				p.log("info", "pruning dead worker %s (heartbeat %s old)", idStr, now.Sub(hb))
				cause := &failure.PruneDeadWorkerDirtyExit{Worker: idStr}
				if err := worker.Unregister(ctx, p.store, p.stats, id, cause); err != nil {
					return err
				}
			}
			// A live or merely aging heartbeat keeps the worker; expiry is
			// the only heartbeat-based eviction.
			continue
		}

		// No heartbeat at all: the worker may predate the heartbeat
		// protocol, so only a local PID check has authority to remove it.
		if id.Host != p.config.Self.Host {
			continue
		}
		if !id.SameQueues(p.config.Self) && !p.config.Self.WatchesAll() {
			continue
		}
		if localPIDs == nil {
			localPIDs, err = p.localPIDs(ctx)
			if err != nil {
				return err
			}
		}
		if localPIDs[id.PID] {
			continue
		}
		p.log("info", "pruning stale worker %s (pid %d not running here)", idStr, id.PID)
		if err := worker.Unregister(ctx, p.store, p.stats, id, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pruner) localPIDs(ctx context.Context) (map[int]bool, error) {
	if p.config.LocalPIDs != nil {
		return p.config.LocalPIDs(ctx)
	}
	return listWorkerPIDs(ctx, p.config.ProcessPattern)
}

// listWorkerPIDs scans the local process table for worker processes whose
// command line contains pattern.
func listWorkerPIDs(ctx context.Context, pattern string) (map[int]bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	out := make(map[int]bool)
	for _, proc := range procs {
		cmdline, err := proc.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, pattern) {
			out[int(proc.Pid)] = true
		}
	}
	return out, nil
}
