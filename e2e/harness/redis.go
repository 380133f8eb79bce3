// Package harness provides test harness utilities for E2E testing
package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisHarness provides namespaced Redis test utilities
type RedisHarness struct {
	client    *redis.Client
	namespace string
}

// NewRedisHarness creates a new Redis harness
func NewRedisHarness(url, namespace string) (*RedisHarness, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisHarness{client: client, namespace: namespace}, nil
}

// Key builds a namespaced key
func (h *RedisHarness) Key(parts ...string) string {
	return h.namespace + ":" + strings.Join(parts, ":")
}

// Job represents an entry on a queue
type Job struct {
	Class      string `json:"class"`
	Args       []any  `json:"args"`
	ID         string `json:"id"`
	Generation int    `json:"generation"`
}

// EnqueueJob pushes a job onto a queue the way a producer would
func (h *RedisHarness) EnqueueJob(ctx context.Context, queue string, job *Job) (string, error) {
	if job.ID == "" {
		job.ID = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	if job.Generation == 0 {
		job.Generation = 1
	}
	if job.Args == nil {
		job.Args = []any{}
	}

	encoded, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := h.client.SAdd(ctx, h.Key("queues"), queue).Err(); err != nil {
		return "", fmt.Errorf("failed to record queue: %w", err)
	}
	if err := h.client.RPush(ctx, h.Key("queue", queue), encoded).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job.ID, nil
}

// QueueSize returns the number of jobs waiting on a queue
func (h *RedisHarness) QueueSize(ctx context.Context, queue string) (int64, error) {
	return h.client.LLen(ctx, h.Key("queue", queue)).Result()
}

// WorkerIDs lists the registered worker identities
func (h *RedisHarness) WorkerIDs(ctx context.Context) ([]string, error) {
	return h.client.SMembers(ctx, h.Key("workers")).Result()
}

// Heartbeats returns the heartbeat timestamp for each worker
func (h *RedisHarness) Heartbeats(ctx context.Context) (map[string]time.Time, error) {
	raw, err := h.client.HGetAll(ctx, h.Key("workers", "heartbeat")).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(raw))
	for id, v := range raw {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			continue
		}
		out[id] = t
	}
	return out, nil
}

// Counter reads a stat counter, returning 0 when unset
func (h *RedisHarness) Counter(ctx context.Context, name string) (int64, error) {
	v, err := h.client.Get(ctx, h.Key("stat", name)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// FailureCount returns the number of recorded failures
func (h *RedisHarness) FailureCount(ctx context.Context) (int64, error) {
	return h.client.LLen(ctx, h.Key("failed")).Result()
}

// Cleanup removes every key under the harness namespace
func (h *RedisHarness) Cleanup(ctx context.Context) error {
	keys, err := h.client.Keys(ctx, h.namespace+":*").Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := h.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the Redis connection
func (h *RedisHarness) Close() error {
	return h.client.Close()
}

// Client returns the underlying Redis client
func (h *RedisHarness) Client() *redis.Client {
	return h.client
}
