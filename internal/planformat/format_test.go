package planformat

import (
	"strings"
	"testing"
)

func TestFormat(t *testing.T) {
	p := &Plan{
		ResourceAddress: "blueprint_dynamodb_binding.UsersTable",
		ResourceID:      "UsersTable__User",
		StableKey:       "tableName:Users",
		SnapshotPath:    "/cache/aws/123456789012/us-east-1/prod/UsersTable__User.json",
		BundleKey:       "prod/UsersTable__User/",
		Fingerprint:     "0123456789abcdef0123456789abcdef",
		Action:          ActionUpdate,
		Changes: []Change{
			{Field: "table.name", Old: "Users", New: "UsersV2"},
			{Field: "entity_name", New: "User"},
			{Field: "logical_id", Old: "UsersTable"},
		},
	}

	out := Format(p)

	for _, want := range []string{
		"# blueprint_dynamodb_binding.UsersTable will be updated",
		"# resource_id:   UsersTable__User",
		"# stable_key:    tableName:Users",
		"# fingerprint:   0123456789ab",
		"# bundle_key:    prod/UsersTable__User/",
		`~ table.name = "Users" -> "UsersV2"`,
		`+ entity_name = "User"`,
		`- logical_id = "UsersTable"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}

	// Changes are sorted by field.
	if strings.Index(out, "entity_name") > strings.Index(out, "table.name") {
		t.Errorf("changes not sorted:\n%s", out)
	}
}

func TestFormat_NoChanges(t *testing.T) {
	out := Format(&Plan{
		ResourceAddress: "blueprint_dynamodb_binding.UsersTable",
		ResourceID:      "UsersTable__User",
		Action:          ActionNoop,
	})
	if !strings.Contains(out, "will be left unchanged") {
		t.Errorf("unexpected header:\n%s", out)
	}
	if !strings.Contains(out, "No attribute changes.") {
		t.Errorf("expected no-change marker:\n%s", out)
	}
	if !strings.Contains(out, "(known after apply)") {
		t.Errorf("empty fingerprint should render as unknown:\n%s", out)
	}
}

func TestFormatSummary(t *testing.T) {
	got := FormatSummary(&Plan{
		ResourceAddress: "blueprint_dynamodb_binding.UsersTable",
		ResourceID:      "UsersTable__User",
		Fingerprint:     "abc",
		Action:          ActionCreate,
		Changes:         []Change{{Field: "table.name", New: "Users"}},
	})
	want := "blueprint_dynamodb_binding.UsersTable: create snapshot UsersTable__User (abc), 1 attribute(s) changed"
	if got != want {
		t.Errorf("FormatSummary() = %q, want %q", got, want)
	}
}

func TestDiff(t *testing.T) {
	changes := Diff(
		map[string]string{"a": "1", "b": "2", "c": "3"},
		map[string]string{"a": "1", "b": "20", "d": "4"},
	)
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %+v", changes)
	}
	if changes[0] != (Change{Field: "b", Old: "2", New: "20"}) {
		t.Errorf("changes[0] = %+v", changes[0])
	}
	if changes[1] != (Change{Field: "c", Old: "3"}) {
		t.Errorf("changes[1] = %+v", changes[1])
	}
	if changes[2] != (Change{Field: "d", New: "4"}) {
		t.Errorf("changes[2] = %+v", changes[2])
	}
}

func TestTruncateHash(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "(known after apply)"},
		{"short", "short"},
		{"0123456789abcdef", "0123456789ab"},
	}
	for _, tt := range tests {
		if got := truncateHash(tt.in); got != tt.want {
			t.Errorf("truncateHash(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
