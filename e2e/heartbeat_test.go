package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/resqd/resq/e2e/harness"
)

// TestWorkerHeartbeat verifies a worker registers itself, keeps a fresh
// heartbeat while running, and leaves no trace after a clean TERM.
func TestWorkerHeartbeat(t *testing.T) {
	binary := os.Getenv("RESQ_BINARY")
	if binary == "" {
		t.Skip("RESQ_BINARY not set")
	}

	redisURL := getEnvOrDefault("REDIS_URL", "redis://localhost:6379")
	namespace := getEnvOrDefault("RESQ_E2E_NAMESPACE", "resq-e2e")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	redis, err := harness.NewRedisHarness(redisURL, namespace)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer redis.Close()

	if err := redis.Cleanup(ctx); err != nil {
		t.Fatalf("Failed to clean namespace: %v", err)
	}
	defer redis.Cleanup(context.Background())

	worker := harness.NewWorkerHarness(binary)
	defer worker.Cleanup()

	cmd, err := worker.StartWorker(ctx, redisURL, namespace, "e2e-idle", "--interval=200ms")
	if err != nil {
		t.Fatalf("Failed to start worker: %v", err)
	}

	var workerID string
	deadline := time.Now().Add(30 * time.Second)
	for workerID == "" {
		ids, err := redis.WorkerIDs(ctx)
		if err != nil {
			t.Fatalf("Failed to list workers: %v", err)
		}
		if len(ids) > 0 {
			workerID = ids[0]
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Worker never registered")
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Logf("Worker registered as %s", workerID)

	heartbeats, err := redis.Heartbeats(ctx)
	if err != nil {
		t.Fatalf("Failed to read heartbeats: %v", err)
	}
	hb, ok := heartbeats[workerID]
	if !ok {
		t.Fatal("Worker has no heartbeat entry")
	}
	if age := time.Since(hb); age > time.Minute || age < -time.Minute {
		t.Errorf("Heartbeat is %s away from local clock", age)
	}

	if err := worker.StopWorker(cmd, 15*time.Second); err != nil {
		t.Fatalf("Worker shutdown: %v", err)
	}

	ids, err := redis.WorkerIDs(ctx)
	if err != nil {
		t.Fatalf("Failed to list workers: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Workers still registered after TERM: %v", ids)
	}
	heartbeats, err = redis.Heartbeats(ctx)
	if err != nil {
		t.Fatalf("Failed to read heartbeats: %v", err)
	}
	if _, ok := heartbeats[workerID]; ok {
		t.Error("Heartbeat entry survived a clean shutdown")
	}
}
