package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/resqd/resq/internal/failure"
	"github.com/resqd/resq/internal/stats"
	"github.com/resqd/resq/internal/store"
)

// State of a registered worker, derived from the working payload (a worker
// is working iff its payload key is present).
type State string

const (
	StateWorking State = "working"
	StateIdle    State = "idle"
)

// Register adds the identity to the membership set with its start time.
func Register(ctx context.Context, s *store.Client, id Identity) error {
	return s.Register(ctx, id.String())
}

// Unregister removes every key referencing the identity. If the worker still
// has a working payload, a failure is recorded against that orphaned job
// first, attributed to cause (or a DirtyExit when cause is nil).
func Unregister(ctx context.Context, s *store.Client, st *stats.Client, id Identity, cause error) error {
	idStr := id.String()

	raw, err := s.GetPayload(ctx, idStr)
	if err != nil {
		return err
	}
	if raw != nil {
		if err := recordOrphan(ctx, s, st, idStr, raw, cause); err != nil {
			return err
		}
	}
	return s.Unregister(ctx, idStr)
}

func recordOrphan(ctx context.Context, s *store.Client, st *stats.Client, id string, raw []byte, cause error) error {
	if cause == nil {
		cause = &failure.DirtyExit{Worker: id}
	}
	w, err := DecodeWorking(raw)
	if err != nil {
		return fmt.Errorf("orphaned payload for %s is malformed: %w", id, err)
	}
	if err := failure.New(w.Queue, id, w.Payload, cause).Save(ctx, s); err != nil {
		return err
	}
	return st.IncrFailed(ctx, id)
}

// Info is the registry view of one live worker.
type Info struct {
	Identity  Identity
	State     State
	Started   time.Time
	Heartbeat time.Time
	Working   *WorkingPayload
}

// All returns the registry view of every registered worker. Entries with a
// malformed identity are skipped.
func All(ctx context.Context, s *store.Client) ([]*Info, error) {
	ids, err := s.WorkerIDs(ctx)
	if err != nil {
		return nil, err
	}
	heartbeats, err := s.AllHeartbeats(ctx)
	if err != nil {
		return nil, err
	}
	payloads, err := s.WorkersMap(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*Info, 0, len(ids))
	for _, idStr := range ids {
		id, err := ParseIdentity(idStr)
		if err != nil {
			continue
		}
		info := &Info{Identity: id, State: StateIdle, Heartbeat: heartbeats[idStr]}
		if started, err := s.Started(ctx, idStr); err == nil {
			info.Started = started
		}
		if raw, ok := payloads[idStr]; ok {
			if w, err := DecodeWorking(raw); err == nil {
				info.State = StateWorking
				info.Working = w
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// Find returns the registry view of one worker, or nil when the identity is
// not registered.
func Find(ctx context.Context, s *store.Client, id string) (*Info, error) {
	exists, err := s.WorkerExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	parsed, err := ParseIdentity(id)
	if err != nil {
		return nil, err
	}
	info := &Info{Identity: parsed, State: StateIdle}

	if started, err := s.Started(ctx, id); err == nil {
		info.Started = started
	}
	heartbeats, err := s.AllHeartbeats(ctx)
	if err != nil {
		return nil, err
	}
	info.Heartbeat = heartbeats[id]

	raw, err := s.GetPayload(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		if w, err := DecodeWorking(raw); err == nil {
			info.State = StateWorking
			info.Working = w
		}
	}
	return info, nil
}

// Working returns the subset of All that is currently executing a job.
func Working(ctx context.Context, s *store.Client) ([]*Info, error) {
	all, err := All(ctx, s)
	if err != nil {
		return nil, err
	}
	out := make([]*Info, 0, len(all))
	for _, info := range all {
		if info.State == StateWorking {
			out = append(out, info)
		}
	}
	return out, nil
}
