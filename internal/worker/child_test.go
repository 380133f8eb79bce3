package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resqd/resq/internal/failure"
	"github.com/resqd/resq/internal/job"
	"github.com/resqd/resq/internal/stats"
	"github.com/resqd/resq/internal/store"
)

func newProcessor(t *testing.T, s *store.Client, reg *job.Registry, queueList []string, jobsPerFork int) *Processor {
	t.Helper()
	p, err := NewProcessor(s, reg, ProcessorConfig{
		ParentIdentity: "box:1:" + queueList[0],
		Queues:         queueList,
		JobsPerFork:    jobsPerFork,
		LogFn:          func(level, msg string) {},
	})
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	return p
}

func TestNewProcessorValidation(t *testing.T) {
	_, s := setupStore(t)
	reg := job.NewRegistry()

	if _, err := NewProcessor(s, reg, ProcessorConfig{ParentIdentity: "x:1:q"}); err == nil {
		t.Error("NewProcessor() with no queues should fail")
	}
	if _, err := NewProcessor(s, reg, ProcessorConfig{Queues: []string{"q"}}); err == nil {
		t.Error("NewProcessor() without a parent identity should fail")
	}
}

func TestReserveStrictPriority(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()
	reg := job.NewRegistry()
	jc := job.NewClient(s, reg)

	if _, err := jc.Create(ctx, "low", "FromLow"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := jc.Create(ctx, "high", "FromHigh"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	p := newProcessor(t, s, reg, []string{"high", "low"}, 1)

	j, err := p.reserve(ctx)
	if err != nil || j == nil {
		t.Fatalf("reserve() = %v, %v", j, err)
	}
	if j.Payload.Class != "FromHigh" {
		t.Errorf("reserve() took %s first, want FromHigh", j.Payload.Class)
	}

	j, err = p.reserve(ctx)
	if err != nil || j == nil {
		t.Fatalf("reserve() = %v, %v", j, err)
	}
	if j.Payload.Class != "FromLow" {
		t.Errorf("reserve() took %s second, want FromLow", j.Payload.Class)
	}

	j, err = p.reserve(ctx)
	if err != nil || j != nil {
		t.Errorf("reserve() on drained queues = %v, %v, want nil, nil", j, err)
	}
}

func TestProcessSuccessCountsAndClearsPayload(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()
	reg := job.NewRegistry()
	st := stats.NewClient(s)
	jc := job.NewClient(s, reg)

	var sawPayload bool
	p := newProcessor(t, s, reg, []string{"q"}, 1)
	reg.RegisterFunc("Check", func(ctx context.Context, args []any) error {
		raw, err := s.GetPayload(ctx, p.config.ParentIdentity)
		if err == nil && raw != nil {
			if w, err := DecodeWorking(raw); err == nil && w.Queue == "q" {
				sawPayload = true
			}
		}
		return nil
	})

	if _, err := jc.Create(ctx, "q", "Check"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	j, err := p.reserve(ctx)
	if err != nil || j == nil {
		t.Fatalf("reserve() = %v, %v", j, err)
	}
	p.process(ctx, j)

	if !sawPayload {
		t.Error("working payload was not visible during execution")
	}
	raw, err := s.GetPayload(ctx, p.config.ParentIdentity)
	if err != nil || raw != nil {
		t.Errorf("payload after process = %v, %v, want nil", raw, err)
	}
	if n, _ := st.Processed(ctx); n != 1 {
		t.Errorf("processed = %d, want 1", n)
	}
	if n, _ := st.ProcessedFor(ctx, p.config.ParentIdentity); n != 1 {
		t.Errorf("processed:<id> = %d, want 1", n)
	}
	if n, _ := st.Failed(ctx); n != 0 {
		t.Errorf("failed = %d, want 0", n)
	}
}

func TestProcessFailureRecordsAndCounts(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()
	reg := job.NewRegistry()
	st := stats.NewClient(s)
	jc := job.NewClient(s, reg)

	reg.RegisterFunc("Boom", func(ctx context.Context, args []any) error {
		return errors.New("kaput")
	})
	if _, err := jc.Create(ctx, "q", "Boom", "x"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	p := newProcessor(t, s, reg, []string{"q"}, 1)
	j, err := p.reserve(ctx)
	if err != nil || j == nil {
		t.Fatalf("reserve() = %v, %v", j, err)
	}
	p.process(ctx, j)

	records, err := failure.All(ctx, s, 0, -1)
	if err != nil || len(records) != 1 {
		t.Fatalf("failure All() = %d records, %v, want 1", len(records), err)
	}
	if records[0].Error != "kaput" || records[0].Queue != "q" {
		t.Errorf("record = %+v", records[0])
	}
	if n, _ := st.Failed(ctx); n != 1 {
		t.Errorf("failed = %d, want 1", n)
	}
	if n, _ := st.FailedFor(ctx, p.config.ParentIdentity); n != 1 {
		t.Errorf("failed:<id> = %d, want 1", n)
	}
	if n, _ := st.Processed(ctx); n != 0 {
		t.Errorf("processed = %d, want 0", n)
	}
	raw, err := s.GetPayload(ctx, p.config.ParentIdentity)
	if err != nil || raw != nil {
		t.Errorf("payload after failure = %v, %v, want nil", raw, err)
	}
}

func TestProcessDontPerformCountsNothing(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()
	reg := job.NewRegistry()
	st := stats.NewClient(s)
	jc := job.NewClient(s, reg)

	registerNoop(reg, "Skipped")
	reg.BeforePerform("Skipped", "gate", func(ctx context.Context, j *job.Job) error {
		return job.ErrDontPerform
	})
	if _, err := jc.Create(ctx, "q", "Skipped"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	p := newProcessor(t, s, reg, []string{"q"}, 1)
	j, err := p.reserve(ctx)
	if err != nil || j == nil {
		t.Fatalf("reserve() = %v, %v", j, err)
	}
	p.process(ctx, j)

	if n, _ := st.Processed(ctx); n != 0 {
		t.Errorf("processed = %d, want 0", n)
	}
	if n, _ := st.Failed(ctx); n != 0 {
		t.Errorf("failed = %d, want 0", n)
	}
	if n, _ := failure.Count(ctx, s); n != 0 {
		t.Errorf("failure count = %d, want 0", n)
	}
}

func TestProcessSkipFailedQueueSuppressesRecord(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()
	reg := job.NewRegistry()
	st := stats.NewClient(s)
	jc := job.NewClient(s, reg)

	reg.RegisterFunc("Quiet", func(ctx context.Context, args []any) error {
		return errors.New("expected")
	})
	reg.OnFailure("Quiet", "suppress", func(ctx context.Context, err error, j *job.Job) error {
		j.SkipFailedQueue = true
		return nil
	})
	if _, err := jc.Create(ctx, "q", "Quiet"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	p := newProcessor(t, s, reg, []string{"q"}, 1)
	j, err := p.reserve(ctx)
	if err != nil || j == nil {
		t.Fatalf("reserve() = %v, %v", j, err)
	}
	p.process(ctx, j)

	if n, _ := failure.Count(ctx, s); n != 0 {
		t.Errorf("failure count = %d, want 0 when suppressed", n)
	}
	if n, _ := st.Failed(ctx); n != 1 {
		t.Errorf("failed = %d, want 1 (counter still bumps)", n)
	}
}

func TestRunExecutesJobsPerForkThenExits(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()
	reg := job.NewRegistry()
	jc := job.NewClient(s, reg)

	var ran int
	reg.RegisterFunc("Tick", func(ctx context.Context, args []any) error {
		ran++
		return nil
	})
	for i := 0; i < 5; i++ {
		if _, err := jc.Create(ctx, "q", "Tick"); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	p := newProcessor(t, s, reg, []string{"q"}, 3)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not exit after its job allotment")
	}
	if ran != 3 {
		t.Errorf("ran %d jobs, want 3", ran)
	}
	if n, _ := s.Size(ctx, "q"); n != 2 {
		t.Errorf("queue size after run = %d, want 2", n)
	}
}

func TestRunSingleShotExitsWhenEmpty(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()
	reg := job.NewRegistry()
	jc := job.NewClient(s, reg)

	var ran int
	reg.RegisterFunc("Once", func(ctx context.Context, args []any) error {
		ran++
		return nil
	})
	if _, err := jc.Create(ctx, "q", "Once"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Interval zero: drain the queue, then exit without sleeping.
	p := newProcessor(t, s, reg, []string{"q"}, 10)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not exit on an empty queue with zero interval")
	}
	if ran != 1 {
		t.Errorf("ran %d jobs, want 1", ran)
	}
}

func registerNoop(reg *job.Registry, class string) {
	reg.RegisterFunc(class, func(ctx context.Context, args []any) error { return nil })
}
