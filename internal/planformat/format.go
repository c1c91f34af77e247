// Package planformat renders human-readable summaries of binding plans in
// the style of "terraform plan" output.
package planformat

import (
	"fmt"
	"sort"
	"strings"
)

// Action describes what apply will do with a binding's snapshot.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDestroy Action = "destroy"
	ActionNoop    Action = "no-op"
)

// Change is one attribute whose planned value differs from state. Unknown
// values are rendered as "(known after apply)".
type Change struct {
	Field string
	Old   string // empty on create
	New   string
}

// Plan is the top-level container for all plan information.
type Plan struct {
	ResourceAddress string // e.g. blueprint_dynamodb_binding.UsersTable
	ResourceID      string
	StableKey       string
	SnapshotPath    string
	BundleKey       string
	Fingerprint     string
	Action          Action
	Changes         []Change
}

// Format renders a Plan as a multi-line string for debug logs.
func Format(p *Plan) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("  # %s will be %s\n", p.ResourceAddress, verb(p.Action)))
	b.WriteString(fmt.Sprintf("  # resource_id:   %s\n", p.ResourceID))
	if p.StableKey != "" {
		b.WriteString(fmt.Sprintf("  # stable_key:    %s\n", p.StableKey))
	}
	b.WriteString(fmt.Sprintf("  # fingerprint:   %s\n", truncateHash(p.Fingerprint)))
	if p.SnapshotPath != "" {
		b.WriteString(fmt.Sprintf("  # snapshot_path: %s\n", p.SnapshotPath))
	}
	if p.BundleKey != "" {
		b.WriteString(fmt.Sprintf("  # bundle_key:    %s\n", p.BundleKey))
	}
	b.WriteString("\n")

	changes := sortedChanges(p.Changes)
	if len(changes) == 0 {
		b.WriteString("  No attribute changes.\n")
		return b.String()
	}

	b.WriteString("  Attribute changes:\n")
	for _, c := range changes {
		switch {
		case c.Old == "":
			b.WriteString(fmt.Sprintf("    + %s = %q\n", c.Field, c.New))
		case c.New == "":
			b.WriteString(fmt.Sprintf("    - %s = %q\n", c.Field, c.Old))
		default:
			b.WriteString(fmt.Sprintf("    ~ %s = %q -> %q\n", c.Field, c.Old, c.New))
		}
	}
	return b.String()
}

// FormatSummary returns a single-line summary of the plan.
func FormatSummary(p *Plan) string {
	return fmt.Sprintf("%s: %s snapshot %s (%s), %d attribute(s) changed",
		p.ResourceAddress, p.Action, p.ResourceID, truncateHash(p.Fingerprint), len(p.Changes))
}

// Diff returns the changes between two attribute maps. Keys missing from
// either side count as empty.
func Diff(old, new map[string]string) []Change {
	var out []Change
	for k, nv := range new {
		if ov := old[k]; ov != nv {
			out = append(out, Change{Field: k, Old: ov, New: nv})
		}
	}
	for k, ov := range old {
		if _, ok := new[k]; !ok && ov != "" {
			out = append(out, Change{Field: k, Old: ov})
		}
	}
	return sortedChanges(out)
}

func sortedChanges(changes []Change) []Change {
	out := append([]Change(nil), changes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func verb(a Action) string {
	switch a {
	case ActionCreate:
		return "created"
	case ActionUpdate:
		return "updated"
	case ActionDestroy:
		return "destroyed"
	default:
		return "left unchanged"
	}
}

// truncateHash shortens a hex hash to its first 12 characters for display.
// Unknown fingerprints are shown as "(known after apply)".
func truncateHash(h string) string {
	if h == "" {
		return "(known after apply)"
	}
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
