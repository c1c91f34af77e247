// Package eventid generates ingestion event identifiers.
//
// Format: evt_<timestamp>_<uuid>
//   - timestamp: UTC YYYYMMDD'T'HHmmss'Z'
//   - uuid:      random (version 4) UUID in canonical form
//
// Example: evt_20260213T200102Z_3f1c2a8e-7d4b-4b1e-9a57-0c2d6e1f4a90
package eventid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	prefix       = "evt_"
	timestampFmt = "20060102T150405Z"
)

// New generates an event ID for the current UTC time.
func New() string {
	return NewAt(time.Now())
}

// NewAt generates an event ID stamped with t.
func NewAt(t time.Time) string {
	return prefix + t.UTC().Format(timestampFmt) + "_" + uuid.NewString()
}

// Parse extracts the timestamp from an event ID.
func Parse(id string) (time.Time, error) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return time.Time{}, fmt.Errorf("eventid: invalid prefix in %q", id)
	}

	ts, random, ok := strings.Cut(rest, "_")
	if !ok {
		return time.Time{}, fmt.Errorf("eventid: missing uuid segment in %q", id)
	}

	t, err := time.Parse(timestampFmt, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("eventid: bad timestamp in %q: %w", id, err)
	}
	if _, err := uuid.Parse(random); err != nil {
		return time.Time{}, fmt.Errorf("eventid: bad uuid in %q: %w", id, err)
	}
	return t, nil
}

// IsValid reports whether id is a well-formed event ID.
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}
