// Package worker implements the supervisor that owns a worker identity, the
// child processor loop that executes jobs, and the registry view over live
// workers.
package worker

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity names a worker as the tuple (host, pid, queues), rendered as
// "host:pid:q1,q2,...". It is immutable for the life of the supervisor;
// equality is string equality on the rendered form.
type Identity struct {
	Host   string
	PID    int
	Queues []string
}

// NewIdentity builds an identity from its parts.
func NewIdentity(host string, pid int, queues []string) Identity {
	return Identity{Host: host, PID: pid, Queues: append([]string(nil), queues...)}
}

// String renders the identity in its registry form.
func (id Identity) String() string {
	return fmt.Sprintf("%s:%d:%s", id.Host, id.PID, strings.Join(id.Queues, ","))
}

// WatchesAll reports whether the identity's queue list contains the "*"
// pattern.
func (id Identity) WatchesAll() bool {
	for _, q := range id.Queues {
		if q == "*" {
			return true
		}
	}
	return false
}

// SameQueues reports whether both identities watch the same queue list, in
// order.
func (id Identity) SameQueues(other Identity) bool {
	if len(id.Queues) != len(other.Queues) {
		return false
	}
	for i := range id.Queues {
		if id.Queues[i] != other.Queues[i] {
			return false
		}
	}
	return true
}

// ParseIdentity parses the registry form back into its parts.
func ParseIdentity(s string) (Identity, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" {
		return Identity{}, fmt.Errorf("malformed worker identity %q", s)
	}
	pid, err := strconv.Atoi(parts[1])
	if err != nil {
		return Identity{}, fmt.Errorf("malformed pid in worker identity %q", s)
	}
	var queues []string
	if parts[2] != "" {
		queues = strings.Split(parts[2], ",")
	}
	return Identity{Host: parts[0], PID: pid, Queues: queues}, nil
}
