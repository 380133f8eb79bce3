// Package failure records job failures on the shared failed list and defines
// the dirty-exit causes synthesized when a worker disappears mid-job.
package failure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/resqd/resq/internal/store"
)

// Record is one entry on the failed list.
type Record struct {
	FailedAt  time.Time       `json:"failed_at"`
	Payload   json.RawMessage `json:"payload"`
	Exception string          `json:"exception"`
	Error     string          `json:"error"`
	Backtrace []string        `json:"backtrace"`
	Worker    string          `json:"worker"`
	Queue     string          `json:"queue"`
}

// New builds a failure record for a job that raised err. payload is the wire
// form of the job that failed; worker is the identity it was running under.
func New(queue, worker string, payload []byte, err error) *Record {
	return &Record{
		FailedAt:  time.Now().UTC(),
		Payload:   json.RawMessage(payload),
		Exception: exceptionName(err),
		Error:     err.Error(),
		Backtrace: []string{},
		Worker:    worker,
		Queue:     queue,
	}
}

// Save appends the record to the failed list.
func (r *Record) Save(ctx context.Context, s *store.Client) error {
	encoded, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode failure record: %w", err)
	}
	return s.PushFailure(ctx, encoded)
}

// Count returns the length of the failed list.
func Count(ctx context.Context, s *store.Client) (int64, error) {
	return s.FailureCount(ctx)
}

// All returns the decoded records in the given range of the failed list.
// Entries that no longer decode are skipped.
func All(ctx context.Context, s *store.Client, lo, hi int64) ([]*Record, error) {
	raws, err := s.FailureRange(ctx, lo, hi)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(raws))
	for _, raw := range raws {
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

// exceptionName renders an error's dynamic type as the record's exception
// field. Named error types keep their type name; anonymous errors from
// errors.New and fmt.Errorf collapse to "Error".
func exceptionName(err error) string {
	name := fmt.Sprintf("%T", err)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || unicode.IsLower(rune(name[0])) {
		return "Error"
	}
	return name
}

// DirtyExit is the cause recorded when a worker is unregistered while it
// still had a working payload.
type DirtyExit struct {
	Worker string
}

func (e *DirtyExit) Error() string {
	return fmt.Sprintf("worker %s did not exit cleanly", e.Worker)
}

// PruneDeadWorkerDirtyExit is the cause recorded when the pruner evicts a
// worker whose heartbeat expired.
type PruneDeadWorkerDirtyExit struct {
	Worker string
}

func (e *PruneDeadWorkerDirtyExit) Error() string {
	return fmt.Sprintf("worker %s pruned after heartbeat expiry", e.Worker)
}
