package job

import (
	"context"
	"fmt"

	"github.com/resqd/resq/internal/store"
)

// Job is an in-memory job record: a reserved payload bound to the queue it
// came from and, once a worker picks it up, the worker's identity.
type Job struct {
	Queue   string
	Payload *Payload

	// Worker is the identity of the worker executing this job. Relation
	// only; the job does not own the worker.
	Worker string

	// SkipFailedQueue suppresses the failure record for this job. The core
	// never sets it; hooks may flip it through the job pointer they receive.
	SkipFailedQueue bool

	registry   *Registry
	failureRan bool
}

// Client performs job operations against the data store.
type Client struct {
	store    *store.Client
	registry *Registry
	inline   bool
}

// Option configures a Client.
type Option func(*Client)

// WithInline makes Create execute jobs immediately in the caller instead of
// enqueueing them. Inline mode exists to support synchronous testing; args
// are still round-tripped through encode/decode so the performed payload
// matches what would have been delivered.
func WithInline(inline bool) Option {
	return func(c *Client) { c.inline = inline }
}

// NewClient creates a job client over a store and a class registry.
func NewClient(s *store.Client, reg *Registry, opts ...Option) *Client {
	c := &Client{store: s, registry: reg}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the class registry this client resolves against.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Inline reports whether the client is in inline mode.
func (c *Client) Inline() bool {
	return c.inline
}

// Create builds a payload with a fresh id and generation 1, then enqueues it.
// In inline mode the job is executed immediately in the caller.
func (c *Client) Create(ctx context.Context, queue, class string, args ...any) (*Payload, error) {
	if queue == "" {
		return nil, fmt.Errorf("cannot create a job without a queue")
	}
	if class == "" {
		return nil, fmt.Errorf("cannot create a job without a class")
	}
	if args == nil {
		args = []any{}
	}

	p := &Payload{Class: class, Args: args, ID: newID(), Generation: 1}
	encoded, err := Encode(p)
	if err != nil {
		return nil, err
	}

	if c.inline {
		decoded, err := Decode(encoded)
		if err != nil {
			return nil, err
		}
		j := &Job{Queue: queue, Payload: decoded, registry: c.registry}
		if _, err := j.Perform(ctx); err != nil {
			return decoded, err
		}
		return decoded, nil
	}

	if err := c.store.Push(ctx, queue, encoded); err != nil {
		return nil, err
	}
	return p, nil
}

// Reserve pops the head of a queue and returns it as a Job, or nil when the
// queue is empty.
func (c *Client) Reserve(ctx context.Context, queue string) (*Job, error) {
	raw, err := c.store.Pop(ctx, queue)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	p, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("bad entry on queue %s: %w", queue, err)
	}
	return &Job{Queue: queue, Payload: p, registry: c.registry}, nil
}

// Recreate re-enqueues a job's payload with the same id and the generation
// incremented. Returns the requeued payload.
func (c *Client) Recreate(ctx context.Context, j *Job) (*Payload, error) {
	p := &Payload{
		Class:      j.Payload.Class,
		Args:       j.Payload.Args,
		ID:         j.Payload.ID,
		Generation: j.Payload.Generation + 1,
	}
	encoded, err := Encode(p)
	if err != nil {
		return nil, err
	}
	if err := c.store.Push(ctx, j.Queue, encoded); err != nil {
		return nil, err
	}
	return p, nil
}

// Destroy scans a queue and removes every entry whose class matches, and,
// when args are given, whose args match too. Returns the number removed.
// The scan is linear in queue length and may be slow on large queues.
func (c *Client) Destroy(ctx context.Context, queue, class string, args ...any) (int64, error) {
	entries, err := c.store.Range(ctx, queue, 0, -1)
	if err != nil {
		return 0, err
	}

	var removed int64
	seen := make(map[string]bool)
	for _, raw := range entries {
		if seen[string(raw)] {
			continue
		}
		seen[string(raw)] = true

		p, err := Decode(raw)
		if err != nil {
			continue
		}
		if p.Class != class {
			continue
		}
		if len(args) > 0 && !argsEqual(p.Args, args) {
			continue
		}
		n, err := c.store.Remove(ctx, queue, raw)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}
