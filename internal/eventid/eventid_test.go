package eventid

import (
	"regexp"
	"testing"
	"time"
)

var idPattern = regexp.MustCompile(`^evt_\d{8}T\d{6}Z_[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestNew(t *testing.T) {
	t.Run("valid format", func(t *testing.T) {
		id := New()
		if !idPattern.MatchString(id) {
			t.Fatalf("New() = %q, does not match evt_<timestamp>_<uuid>", id)
		}
	})

	t.Run("timestamp is close to now", func(t *testing.T) {
		before := time.Now().UTC()
		id := New()
		after := time.Now().UTC()

		ts, err := Parse(id)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", id, err)
		}
		if ts.Before(before.Truncate(time.Second)) {
			t.Errorf("parsed time %v is before test start %v", ts, before)
		}
		if ts.After(after.Add(time.Second)) {
			t.Errorf("parsed time %v is after test end %v", ts, after)
		}
	})

	t.Run("unique IDs", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id := New()
			if seen[id] {
				t.Fatalf("duplicate ID generated: %q", id)
			}
			seen[id] = true
		}
	})
}

func TestNewAtUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	id := NewAt(time.Date(2026, 2, 13, 22, 1, 2, 0, loc))
	ts, err := Parse(id)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := time.Date(2026, 2, 13, 20, 1, 2, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("Parse(%q) = %v, want %v", id, ts, want)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"wrong prefix", "dep_20260213T200102Z_3f1c2a8e-7d4b-4b1e-9a57-0c2d6e1f4a90"},
		{"missing uuid", "evt_20260213T200102Z"},
		{"bad timestamp", "evt_2026-02-13_3f1c2a8e-7d4b-4b1e-9a57-0c2d6e1f4a90"},
		{"bad uuid", "evt_20260213T200102Z_nothex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.id); err == nil {
				t.Errorf("Parse(%q) expected error", tt.id)
			}
			if IsValid(tt.id) {
				t.Errorf("IsValid(%q) = true", tt.id)
			}
		})
	}
}
