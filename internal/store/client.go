// Package store provides typed Redis operations for the resq job system.
//
// Every piece of shared state lives under a single namespace prefix:
//
//	resq:queues                             SET of queue names
//	resq:queue:<name>                       LIST of encoded payloads
//	resq:workers                            SET of worker identities
//	resq:worker:<id>                        STRING encoded working payload
//	resq:worker:<id>:started                STRING registration time
//	resq:workers:heartbeat                  HASH identity -> RFC3339 server time
//	resq:stat:processed[:<id>]              STRING counter
//	resq:stat:failed[:<id>]                 STRING counter
//	resq:failed                             LIST of failure records
//	resq:pruning_dead_worker_in_progress    STRING prune lock (TTL)
//
// All operations are safe against concurrent access from other supervisors.
// The prune lock uses SET NX PX so a crashed holder releases automatically.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace is the key prefix used when none is configured.
const DefaultNamespace = "resq"

// reconnectAttempts is how many times Reconnect retries before giving up.
const reconnectAttempts = 3

// Config holds configuration for the store client.
type Config struct {
	// URL is the Redis connection URL (redis://...)
	URL string

	// Password is the Redis password (optional, overrides URL)
	Password string

	// Namespace is the key prefix (default: "resq")
	Namespace string

	// ReconnectBackoff is the base of the linear backoff used by Reconnect
	// (default: 500ms; attempt n sleeps n*ReconnectBackoff)
	ReconnectBackoff time.Duration

	// LogFn is an optional callback for logging (if nil, nothing is logged)
	LogFn func(level, msg string)
}

// Client wraps Redis operations for queues, the worker registry, heartbeats
// and counters.
type Client struct {
	rdb    *redis.Client
	config Config
}

// NewClient creates a new store client. Call Connect before use.
func NewClient(cfg Config) *Client {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 500 * time.Millisecond
	}
	return &Client{config: cfg}
}

func (c *Client) log(level, format string, args ...any) {
	if c.config.LogFn != nil {
		c.config.LogFn(level, fmt.Sprintf(format, args...))
	}
}

// key joins parts under the configured namespace.
func (c *Client) key(parts ...string) string {
	return c.config.Namespace + ":" + strings.Join(parts, ":")
}

// Connect establishes the connection to Redis and verifies it with a ping.
func (c *Client) Connect(ctx context.Context) error {
	opts, err := redis.ParseURL(c.config.URL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if c.config.Password != "" {
		opts.Password = c.config.Password
	}

	c.rdb = redis.NewClient(opts)
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Reconnect re-opens the underlying connection. A forked child must call this
// on entry so it does not share the parent's connection. Retries up to three
// times with linear backoff, then fails.
func (c *Client) Reconnect(ctx context.Context) error {
	if c.rdb != nil {
		c.rdb.Close()
		c.rdb = nil
	}

	var lastErr error
	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		if lastErr = c.Connect(ctx); lastErr == nil {
			return nil
		}
		c.log("warning", "reconnect attempt %d/%d failed: %v", attempt, reconnectAttempts, lastErr)
		if attempt < reconnectAttempts {
			select {
			case <-time.After(time.Duration(attempt) * c.config.ReconnectBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("failed to reconnect after %d attempts: %w", reconnectAttempts, lastErr)
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Namespace returns the configured key prefix.
func (c *Client) Namespace() string {
	return c.config.Namespace
}

// --- Queue operations ---

// Push appends an encoded payload to a queue and records the queue name in
// the queue set.
func (c *Client) Push(ctx context.Context, queue string, payload []byte) error {
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, c.key("queues"), queue)
	pipe.RPush(ctx, c.key("queue", queue), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", queue, err)
	}
	return nil
}

// Pop removes and returns the head of a queue. Returns nil when the queue is
// empty.
func (c *Client) Pop(ctx context.Context, queue string) ([]byte, error) {
	val, err := c.rdb.LPop(ctx, c.key("queue", queue)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from queue %s: %w", queue, err)
	}
	return val, nil
}

// Range returns the entries of a queue between lo and hi (inclusive, LRANGE
// semantics).
func (c *Client) Range(ctx context.Context, queue string, lo, hi int64) ([][]byte, error) {
	vals, err := c.rdb.LRange(ctx, c.key("queue", queue), lo, hi).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range queue %s: %w", queue, err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// Size returns the number of entries in a queue.
func (c *Client) Size(ctx context.Context, queue string) (int64, error) {
	n, err := c.rdb.LLen(ctx, c.key("queue", queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to size queue %s: %w", queue, err)
	}
	return n, nil
}

// Remove deletes all queue entries equal to payload and returns the count
// removed.
func (c *Client) Remove(ctx context.Context, queue string, payload []byte) (int64, error) {
	n, err := c.rdb.LRem(ctx, c.key("queue", queue), 0, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to remove from queue %s: %w", queue, err)
	}
	return n, nil
}

// Queues returns the set of known queue names.
func (c *Client) Queues(ctx context.Context) ([]string, error) {
	names, err := c.rdb.SMembers(ctx, c.key("queues")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}
	return names, nil
}

// RemoveQueue deletes a queue and its entry in the queue set.
func (c *Client) RemoveQueue(ctx context.Context, queue string) error {
	pipe := c.rdb.TxPipeline()
	pipe.SRem(ctx, c.key("queues"), queue)
	pipe.Del(ctx, c.key("queue", queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove queue %s: %w", queue, err)
	}
	return nil
}

// --- Worker registry ---

// Register adds a worker identity to the membership set and stamps its
// started-at time with the server clock.
func (c *Client) Register(ctx context.Context, id string) error {
	now, err := c.ServerTime(ctx)
	if err != nil {
		return err
	}
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, c.key("workers"), id)
	pipe.Set(ctx, c.key("worker", id, "started"), now.Format(time.RFC3339), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register worker %s: %w", id, err)
	}
	return nil
}

// Unregister removes a worker identity and every key referencing it:
// membership, working payload, started-at, heartbeat, and private counters.
func (c *Client) Unregister(ctx context.Context, id string) error {
	pipe := c.rdb.TxPipeline()
	pipe.SRem(ctx, c.key("workers"), id)
	pipe.Del(ctx, c.key("worker", id))
	pipe.Del(ctx, c.key("worker", id, "started"))
	pipe.HDel(ctx, c.key("workers", "heartbeat"), id)
	pipe.Del(ctx, c.key("stat", "processed", id))
	pipe.Del(ctx, c.key("stat", "failed", id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to unregister worker %s: %w", id, err)
	}
	return nil
}

// WorkerIDs returns the set of registered worker identities.
func (c *Client) WorkerIDs(ctx context.Context) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, c.key("workers")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	return ids, nil
}

// WorkerExists reports whether an identity is in the membership set.
func (c *Client) WorkerExists(ctx context.Context, id string) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, c.key("workers"), id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check worker %s: %w", id, err)
	}
	return ok, nil
}

// Started returns the registration time of a worker, or the zero time when
// unknown.
func (c *Client) Started(ctx context.Context, id string) (time.Time, error) {
	val, err := c.rdb.Get(ctx, c.key("worker", id, "started")).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get started time for %s: %w", id, err)
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse started time for %s: %w", id, err)
	}
	return t, nil
}

// SetPayload stores the encoded working payload for a worker.
func (c *Client) SetPayload(ctx context.Context, id string, encoded []byte) error {
	if err := c.rdb.Set(ctx, c.key("worker", id), encoded, 0).Err(); err != nil {
		return fmt.Errorf("failed to set working payload for %s: %w", id, err)
	}
	return nil
}

// GetPayload returns the encoded working payload for a worker, or nil when
// the worker is idle.
func (c *Client) GetPayload(ctx context.Context, id string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, c.key("worker", id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get working payload for %s: %w", id, err)
	}
	return val, nil
}

// ClearPayload removes the working payload for a worker.
func (c *Client) ClearPayload(ctx context.Context, id string) error {
	if err := c.rdb.Del(ctx, c.key("worker", id)).Err(); err != nil {
		return fmt.Errorf("failed to clear working payload for %s: %w", id, err)
	}
	return nil
}

// WorkersMap bulk-fetches the working payloads for the given identities.
// Idle workers are omitted from the result.
func (c *Client) WorkersMap(ctx context.Context, ids []string) (map[string][]byte, error) {
	if len(ids) == 0 {
		return map[string][]byte{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key("worker", id)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to bulk-get working payloads: %w", err)
	}
	out := make(map[string][]byte, len(ids))
	for i, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			out[ids[i]] = []byte(s)
		}
	}
	return out, nil
}

// --- Heartbeats ---

// Heartbeat stamps the heartbeat map for a worker with the given time.
func (c *Client) Heartbeat(ctx context.Context, id string, t time.Time) error {
	if err := c.rdb.HSet(ctx, c.key("workers", "heartbeat"), id, t.Format(time.RFC3339)).Err(); err != nil {
		return fmt.Errorf("failed to write heartbeat for %s: %w", id, err)
	}
	return nil
}

// AllHeartbeats returns every heartbeat entry. Workers that never sent one
// are absent from the map.
func (c *Client) AllHeartbeats(ctx context.Context) (map[string]time.Time, error) {
	raw, err := c.rdb.HGetAll(ctx, c.key("workers", "heartbeat")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read heartbeats: %w", err)
	}
	out := make(map[string]time.Time, len(raw))
	for id, val := range raw {
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			c.log("warning", "skipping unparseable heartbeat for %s: %q", id, val)
			continue
		}
		out[id] = t
	}
	return out, nil
}

// RemoveHeartbeat deletes the heartbeat entry for a worker.
func (c *Client) RemoveHeartbeat(ctx context.Context, id string) error {
	if err := c.rdb.HDel(ctx, c.key("workers", "heartbeat"), id).Err(); err != nil {
		return fmt.Errorf("failed to remove heartbeat for %s: %w", id, err)
	}
	return nil
}

// ServerTime returns the Redis server clock. Using the server clock keeps
// heartbeat comparisons meaningful across hosts with skewed clocks.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	t, err := c.rdb.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read server time: %w", err)
	}
	return t, nil
}

// --- Prune lock ---

// AcquirePruneLock attempts to take the fleet-wide pruning lock. Returns true
// when this caller now holds it. The lock expires after ttl so a crashed
// holder cannot deadlock the fleet.
func (c *Client) AcquirePruneLock(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.key("pruning_dead_worker_in_progress"), id, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire prune lock: %w", err)
	}
	return ok, nil
}

// --- Counters ---

// CounterIncr atomically increments a counter and returns the new value.
func (c *Client) CounterIncr(ctx context.Context, name string) (int64, error) {
	n, err := c.rdb.Incr(ctx, c.key("stat", name)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
	}
	return n, nil
}

// CounterGet returns the current value of a counter (0 when absent).
func (c *Client) CounterGet(ctx context.Context, name string) (int64, error) {
	n, err := c.rdb.Get(ctx, c.key("stat", name)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", name, err)
	}
	return n, nil
}

// CounterClear deletes a counter.
func (c *Client) CounterClear(ctx context.Context, name string) error {
	if err := c.rdb.Del(ctx, c.key("stat", name)).Err(); err != nil {
		return fmt.Errorf("failed to clear counter %s: %w", name, err)
	}
	return nil
}

// --- Failure list ---

// PushFailure appends an encoded failure record to the failed list.
func (c *Client) PushFailure(ctx context.Context, encoded []byte) error {
	if err := c.rdb.RPush(ctx, c.key("failed"), encoded).Err(); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// FailureCount returns the length of the failed list.
func (c *Client) FailureCount(ctx context.Context) (int64, error) {
	n, err := c.rdb.LLen(ctx, c.key("failed")).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count failures: %w", err)
	}
	return n, nil
}

// FailureRange returns failure records between lo and hi (LRANGE semantics).
func (c *Client) FailureRange(ctx context.Context, lo, hi int64) ([][]byte, error) {
	vals, err := c.rdb.LRange(ctx, c.key("failed"), lo, hi).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range failures: %w", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}
