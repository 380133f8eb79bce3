// cmd/handlers.go
// Job class registrations shared by the enqueue and child commands.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/resqd/resq/internal/job"
)

// jobRegistry holds every job class this binary can perform. Embedders
// register their own classes here before calling Execute.
var jobRegistry = job.NewRegistry()

// Registry returns the process-wide job registry.
func Registry() *job.Registry {
	return jobRegistry
}

func init() {
	// Built-in diagnostic classes, handy for smoke-testing a deployment.
	jobRegistry.RegisterFunc("Echo", func(ctx context.Context, args []any) error {
		fmt.Println(args...)
		return nil
	})
	jobRegistry.RegisterFunc("Sleep", func(ctx context.Context, args []any) error {
		if len(args) != 1 {
			return fmt.Errorf("Sleep expects one numeric argument, got %d", len(args))
		}
		secs, ok := args[0].(float64)
		if !ok {
			return fmt.Errorf("Sleep expects a numeric argument, got %T", args[0])
		}
		select {
		case <-time.After(time.Duration(secs * float64(time.Second))):
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	})
}
