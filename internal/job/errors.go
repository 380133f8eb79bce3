package job

import (
	"errors"
	"fmt"
)

// ErrDontPerform is returned by a before-hook to abort a job cleanly. The
// job completes without perform, after-hooks, or failure hooks running, and
// is counted neither as processed nor as failed.
var ErrDontPerform = errors.New("don't perform")

// ErrTerm is injected into a running job's context when the worker receives
// TERM or INT. Handlers that watch their context observe it via
// context.Cause.
var ErrTerm = errors.New("worker received TERM")

// UnknownClassError reports a payload whose class has no registered
// performer.
type UnknownClassError struct {
	Class string
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("no performer registered for class %q", e.Class)
}

// HookError reports a failure hook that itself failed. It names both the
// hook's error and the original job error.
type HookError struct {
	Hook     string
	Err      error
	Original error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("failure hook %q failed: %v (while handling: %v)", e.Hook, e.Err, e.Original)
}

func (e *HookError) Unwrap() []error {
	return []error{e.Err, e.Original}
}
