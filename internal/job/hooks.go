package job

import (
	"context"
	"errors"
	"fmt"
)

// Perform runs the job through its hook pipeline:
//
//	before hooks (discovery order) -> around hooks (outermost first,
//	innermost invokes the performer) -> after hooks (discovery order)
//
// A before-hook returning ErrDontPerform aborts the job cleanly: perform,
// after-hooks and failure hooks are skipped and (false, nil) is returned.
// Any other error anywhere in the pipeline runs the failure hooks exactly
// once and is returned to the caller.
//
// performed reports whether the job counts as processed.
func (j *Job) Perform(ctx context.Context) (performed bool, err error) {
	performer, ok := j.registry.Lookup(j.Payload.Class)
	if !ok {
		return false, j.fail(ctx, &UnknownClassError{Class: j.Payload.Class})
	}

	for _, h := range j.registry.beforeHooks(j.Payload.Class) {
		if err := h.fn(ctx, j); err != nil {
			if errors.Is(err, ErrDontPerform) {
				return false, nil
			}
			return false, j.fail(ctx, err)
		}
	}

	core := func() error {
		return callRecovering(func() error {
			return performer.Perform(ctx, j.Payload.Args)
		})
	}
	arounds := j.registry.aroundHooks(j.Payload.Class)
	for i := len(arounds) - 1; i >= 0; i-- {
		h, next := arounds[i], core
		core = func() error {
			return callRecovering(func() error {
				return h.fn(ctx, j, next)
			})
		}
	}

	if err := core(); err != nil {
		return false, j.fail(ctx, err)
	}

	for _, h := range j.registry.afterHooks(j.Payload.Class) {
		if err := h.fn(ctx, j); err != nil {
			return false, j.fail(ctx, err)
		}
	}

	return true, nil
}

// fail runs the failure hooks for this job at most once, then returns the
// original error. An error inside a failure hook is wrapped into a HookError
// naming both failures; the one-shot flag is marked regardless.
func (j *Job) fail(ctx context.Context, original error) error {
	if j.failureRan {
		return original
	}
	j.failureRan = true

	for _, h := range j.registry.failureHooks(j.Payload.Class) {
		hookErr := callRecovering(func() error {
			return h.fn(ctx, original, j)
		})
		if hookErr != nil {
			return &HookError{Hook: h.name, Err: hookErr, Original: original}
		}
	}
	return original
}

// FailureHooksRan reports whether the one-shot failure flag is set.
func (j *Job) FailureHooksRan() bool {
	return j.failureRan
}

// callRecovering converts a panic in user code into an error so a bad job
// cannot take down the child processor.
func callRecovering(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job: %v", r)
		}
	}()
	return fn()
}
