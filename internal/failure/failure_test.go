package failure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/resqd/resq/internal/store"
)

func setupStore(t *testing.T) *store.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })

	client := store.NewClient(store.Config{
		URL:       "redis://" + mr.Addr(),
		Namespace: "resq",
	})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

func TestNewRecordFields(t *testing.T) {
	payload := []byte(`{"class":"SendEmail","args":["x"],"id":"ff","generation":1}`)
	r := New("mail", "host:1:mail", payload, errors.New("boom"))

	if r.Queue != "mail" || r.Worker != "host:1:mail" {
		t.Errorf("Record queue/worker = %q/%q, want mail/host:1:mail", r.Queue, r.Worker)
	}
	if r.Error != "boom" {
		t.Errorf("Record.Error = %q, want boom", r.Error)
	}
	if r.Exception != "Error" {
		t.Errorf("Record.Exception = %q, want Error for an anonymous error", r.Exception)
	}
	if r.FailedAt.IsZero() {
		t.Error("Record.FailedAt is zero")
	}
	if r.Backtrace == nil {
		t.Error("Record.Backtrace is nil, want empty list")
	}
	if string(r.Payload) != string(payload) {
		t.Errorf("Record.Payload = %s, want the original payload", r.Payload)
	}
}

func TestExceptionNameUsesTypeName(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"anonymous", errors.New("x"), "Error"},
		{"dirty exit", &DirtyExit{Worker: "w"}, "DirtyExit"},
		{"pruned", &PruneDeadWorkerDirtyExit{Worker: "w"}, "PruneDeadWorkerDirtyExit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exceptionName(tt.err); got != tt.want {
				t.Errorf("exceptionName(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestSaveCountAll(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	payload := []byte(`{"class":"X","args":[],"id":"aa","generation":1}`)
	for _, msg := range []string{"first", "second"} {
		r := New("q", "host:1:q", payload, errors.New(msg))
		if err := r.Save(ctx, s); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	n, err := Count(ctx, s)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	records, err := All(ctx, s, 0, -1)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("All() returned %d records, want 2", len(records))
	}
	if records[0].Error != "first" || records[1].Error != "second" {
		t.Errorf("All() order = %q, %q, want first, second", records[0].Error, records[1].Error)
	}
}

func TestAllSkipsUndecodableEntries(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.PushFailure(ctx, []byte("not json")); err != nil {
		t.Fatalf("PushFailure() error = %v", err)
	}
	r := New("q", "w", []byte(`{"class":"X","args":[],"id":"aa","generation":1}`), errors.New("real"))
	if err := r.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	records, err := All(ctx, s, 0, -1)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(records) != 1 || records[0].Error != "real" {
		t.Errorf("All() = %d records, want just the decodable one", len(records))
	}
}

func TestRecordWireKeys(t *testing.T) {
	r := New("q", "w", []byte(`{"class":"X","args":[],"id":"aa","generation":1}`), errors.New("x"))
	encoded, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &m); err != nil {
		t.Fatalf("record is not a JSON object: %v", err)
	}
	for _, key := range []string{"failed_at", "payload", "exception", "error", "backtrace", "worker", "queue"} {
		if _, ok := m[key]; !ok {
			t.Errorf("record is missing key %q", key)
		}
	}
}
