package job

import (
	"context"
	"sort"
	"sync"
)

// Performer executes a job's work. The wire payload carries a class name
// resolved through a Registry at execution time; registration happens at
// process init.
type Performer interface {
	Perform(ctx context.Context, args []any) error
}

// PerformerFunc adapts a plain function to the Performer interface.
type PerformerFunc func(ctx context.Context, args []any) error

func (f PerformerFunc) Perform(ctx context.Context, args []any) error {
	return f(ctx, args)
}

// Hook signatures. Before-hooks may abort the job by returning ErrDontPerform.
// Around-hooks wrap the next stage and must call next() to let it run.
type (
	BeforeHook  func(ctx context.Context, j *Job) error
	AroundHook  func(ctx context.Context, j *Job, next func() error) error
	AfterHook   func(ctx context.Context, j *Job) error
	FailureHook func(ctx context.Context, err error, j *Job) error
)

type named[T any] struct {
	name string
	fn   T
}

// sortedByName returns hook functions ordered lexicographically by hook name,
// ties broken by registration order. This is the pipeline's discovery order.
func sortedByName[T any](hooks []named[T]) []named[T] {
	out := make([]named[T], len(hooks))
	copy(out, hooks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Registry maps class names to performers and their hooks. Safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	performers map[string]Performer
	before     map[string][]named[BeforeHook]
	around     map[string][]named[AroundHook]
	after      map[string][]named[AfterHook]
	failure    map[string][]named[FailureHook]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		performers: make(map[string]Performer),
		before:     make(map[string][]named[BeforeHook]),
		around:     make(map[string][]named[AroundHook]),
		after:      make(map[string][]named[AfterHook]),
		failure:    make(map[string][]named[FailureHook]),
	}
}

// Register binds a class name to a performer. Registering the same class
// twice replaces the performer.
func (r *Registry) Register(class string, p Performer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.performers[class] = p
}

// RegisterFunc binds a class name to a plain function.
func (r *Registry) RegisterFunc(class string, f PerformerFunc) {
	r.Register(class, f)
}

// Lookup resolves a class name to its performer.
func (r *Registry) Lookup(class string) (Performer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.performers[class]
	return p, ok
}

// Classes returns the registered class names in sorted order.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.performers))
	for class := range r.performers {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

// BeforePerform registers a named before-hook for a class.
func (r *Registry) BeforePerform(class, name string, fn BeforeHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.before[class] = append(r.before[class], named[BeforeHook]{name, fn})
}

// AroundPerform registers a named around-hook for a class.
func (r *Registry) AroundPerform(class, name string, fn AroundHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.around[class] = append(r.around[class], named[AroundHook]{name, fn})
}

// AfterPerform registers a named after-hook for a class.
func (r *Registry) AfterPerform(class, name string, fn AfterHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.after[class] = append(r.after[class], named[AfterHook]{name, fn})
}

// OnFailure registers a named failure hook for a class.
func (r *Registry) OnFailure(class, name string, fn FailureHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure[class] = append(r.failure[class], named[FailureHook]{name, fn})
}

func (r *Registry) beforeHooks(class string) []named[BeforeHook] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByName(r.before[class])
}

func (r *Registry) aroundHooks(class string) []named[AroundHook] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByName(r.around[class])
}

func (r *Registry) afterHooks(class string) []named[AfterHook] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByName(r.after[class])
}

func (r *Registry) failureHooks(class string) []named[FailureHook] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByName(r.failure[class])
}
