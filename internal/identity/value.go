package identity

import (
	"bytes"
	"encoding/json"
	"strings"
)

// placeholderMarkers are substrings that identify interpolation syntax
// still waiting to be resolved by the provisioning engine.
var placeholderMarkers = []string{"${Token[", "${", "#{"}

// Value is a string that may not be known yet. The zero value is absent.
type Value struct {
	s        string
	set      bool
	deferred bool
}

// Resolved returns a known value.
func Resolved(s string) Value {
	return Value{s: s, set: true}
}

// Deferred returns a value that will only be known later in the
// provisioning lifecycle.
func Deferred() Value {
	return Value{deferred: true}
}

// Get returns the string and true when the value is resolved, non-empty and
// free of placeholder markers.
func (v Value) Get() (string, bool) {
	if !v.IsResolved() {
		return "", false
	}
	return v.s, true
}

// IsResolved reports whether the value is concrete.
func (v Value) IsResolved() bool {
	return v.set && !v.deferred && v.s != "" && !IsPlaceholder(v.s)
}

// IsDeferred reports whether the value is waiting on the provisioning
// engine, either explicitly or because it still carries placeholder syntax.
func (v Value) IsDeferred() bool {
	return v.deferred || (v.set && IsPlaceholder(v.s))
}

// String returns the raw string, or "" when absent or deferred.
func (v Value) String() string {
	if v.deferred {
		return ""
	}
	return v.s
}

// MarshalJSON encodes resolved values as strings and everything else as
// null.
func (v Value) MarshalJSON() ([]byte, error) {
	if s, ok := v.Get(); ok {
		return json.Marshal(s)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes a string or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = Resolved(s)
	return nil
}

// IsPlaceholder reports whether s contains unresolved interpolation markers.
func IsPlaceholder(s string) bool {
	for _, m := range placeholderMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
