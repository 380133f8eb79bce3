package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/resqd/resq/internal/store"
)

// WorkingPayload is the registry entry describing the job a worker is
// currently executing. Its presence under the worker key defines the
// "working" state; it is cleared when success or failure is recorded.
type WorkingPayload struct {
	Queue   string          `json:"queue"`
	RunAt   time.Time       `json:"run_at"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeWorking renders the working payload for storage.
func EncodeWorking(w *WorkingPayload) ([]byte, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode working payload: %w", err)
	}
	return b, nil
}

// DecodeWorking parses a stored working payload.
func DecodeWorking(b []byte) (*WorkingPayload, error) {
	var w WorkingPayload
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("failed to decode working payload: %w", err)
	}
	return &w, nil
}

// setWorking marks the worker as executing the given job.
func setWorking(ctx context.Context, s *store.Client, id string, queue string, encoded []byte) error {
	w := &WorkingPayload{Queue: queue, RunAt: time.Now().UTC(), Payload: json.RawMessage(encoded)}
	b, err := EncodeWorking(w)
	if err != nil {
		return err
	}
	return s.SetPayload(ctx, id, b)
}
