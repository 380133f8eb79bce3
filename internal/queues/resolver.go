// Package queues resolves a worker's configured queue list, which may contain
// glob patterns, into the concrete ordered list polled on each reservation.
package queues

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/resqd/resq/internal/store"
)

// wildcardChars marks a configured entry as a pattern rather than a literal
// queue name.
const wildcardChars = "*?{}[]"

// Resolver turns the configured queue list into the list polled at each
// reservation. A static list resolves to itself; a list containing any glob
// pattern is re-resolved against the live queue set on every call, so queues
// created at runtime become visible without a restart.
type Resolver struct {
	patterns []string
	dynamic  bool
	store    *store.Client
}

// NewResolver builds a resolver over the configured queue list. An empty list
// is a configuration error.
func NewResolver(patterns []string, s *store.Client) (*Resolver, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no queue configured: set QUEUES or QUEUE")
	}
	r := &Resolver{
		patterns: append([]string(nil), patterns...),
		store:    s,
	}
	for _, p := range r.patterns {
		if strings.ContainsAny(p, wildcardChars) {
			r.dynamic = true
			break
		}
	}
	return r, nil
}

// Dynamic reports whether the configured list contains glob patterns.
func (r *Resolver) Dynamic() bool {
	return r.dynamic
}

// Patterns returns the configured list as given.
func (r *Resolver) Patterns() []string {
	return append([]string(nil), r.patterns...)
}

// Resolve returns the concrete queue list for this reservation cycle. For a
// dynamic list, each pattern is matched against the live queue set, the
// matches for that pattern are sorted alphabetically, and the per-pattern
// results are concatenated in configured order with first occurrence winning.
// The pattern "*" therefore yields every queue in ascending order.
func (r *Resolver) Resolve(ctx context.Context) ([]string, error) {
	if !r.dynamic {
		return r.Patterns(), nil
	}

	live, err := r.store.Queues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}

	var out []string
	seen := make(map[string]bool)
	for _, pattern := range r.patterns {
		var matches []string
		if strings.ContainsAny(pattern, wildcardChars) {
			for _, q := range live {
				ok, err := doublestar.Match(pattern, q)
				if err != nil {
					return nil, fmt.Errorf("bad queue pattern %q: %w", pattern, err)
				}
				if ok {
					matches = append(matches, q)
				}
			}
			sort.Strings(matches)
		} else {
			matches = []string{pattern}
		}
		for _, q := range matches {
			if !seen[q] {
				seen[q] = true
				out = append(out, q)
			}
		}
	}
	return out, nil
}
