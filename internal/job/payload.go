// Package job defines the job envelope, the class registry, and the hook
// pipeline that executes a job.
//
// A queue entry is a canonical JSON object with string keys:
//
//	{"class":"SendEmail","args":["user@example.com"],"id":"<32 hex>","generation":1}
//
// The id is assigned on first creation and is stable across recreates; the
// generation increments each time the envelope is re-enqueued.
package job

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Payload is the immutable wire envelope of a job.
type Payload struct {
	Class      string `json:"class"`
	Args       []any  `json:"args"`
	ID         string `json:"id"`
	Generation int    `json:"generation"`
}

// Encode renders a payload to its canonical wire form. Field order is fixed,
// so equal payloads always encode to the same bytes; Destroy relies on this
// to match entries by string equality.
func Encode(p *Payload) ([]byte, error) {
	if p.Class == "" {
		return nil, fmt.Errorf("cannot encode payload without a class")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return b, nil
}

// Decode parses a wire entry back into a payload.
func Decode(b []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if p.Class == "" {
		return nil, fmt.Errorf("payload is missing a class")
	}
	return &p, nil
}

// newID returns a fresh 128-bit random id rendered as 32 hex characters.
func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// argsEqual compares two argument lists by their encoded form, which is the
// same equivalence Destroy uses when matching queue entries.
func argsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
