// Package stats maintains the processed and failed counters, globally and
// per worker identity.
package stats

import (
	"context"

	"github.com/resqd/resq/internal/store"
)

const (
	processed = "processed"
	failed    = "failed"
)

// Client increments and reads the job counters.
type Client struct {
	store *store.Client
}

// NewClient creates a stats client over a store.
func NewClient(s *store.Client) *Client {
	return &Client{store: s}
}

// IncrProcessed bumps the global processed counter and the worker's own.
func (c *Client) IncrProcessed(ctx context.Context, workerID string) error {
	return c.incr(ctx, processed, workerID)
}

// IncrFailed bumps the global failed counter and the worker's own.
func (c *Client) IncrFailed(ctx context.Context, workerID string) error {
	return c.incr(ctx, failed, workerID)
}

func (c *Client) incr(ctx context.Context, name, workerID string) error {
	if _, err := c.store.CounterIncr(ctx, name); err != nil {
		return err
	}
	if workerID == "" {
		return nil
	}
	_, err := c.store.CounterIncr(ctx, name+":"+workerID)
	return err
}

// Processed returns the global processed count.
func (c *Client) Processed(ctx context.Context) (int64, error) {
	return c.store.CounterGet(ctx, processed)
}

// Failed returns the global failed count.
func (c *Client) Failed(ctx context.Context) (int64, error) {
	return c.store.CounterGet(ctx, failed)
}

// ProcessedFor returns one worker's processed count.
func (c *Client) ProcessedFor(ctx context.Context, workerID string) (int64, error) {
	return c.store.CounterGet(ctx, processed+":"+workerID)
}

// FailedFor returns one worker's failed count.
func (c *Client) FailedFor(ctx context.Context, workerID string) (int64, error) {
	return c.store.CounterGet(ctx, failed+":"+workerID)
}

// Clear removes one worker's private counters. The global counters are
// never cleared here.
func (c *Client) Clear(ctx context.Context, workerID string) error {
	if err := c.store.CounterClear(ctx, processed+":"+workerID); err != nil {
		return err
	}
	return c.store.CounterClear(ctx, failed+":"+workerID)
}
