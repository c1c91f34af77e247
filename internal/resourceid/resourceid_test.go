package resourceid

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/blueprintio/terraform-provider-blueprint/internal/identity"
)

func testIdentity(key string) identity.StableIdentity {
	return identity.StableIdentity{
		AppID:             "acme",
		StackName:         "prod",
		DatastoreType:     "dynamodb",
		EntityName:        "User",
		StableResourceKey: key,
	}
}

func store(t *testing.T, dir, id string, ident identity.StableIdentity) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"resourceId": id, "identity": ident})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, id+".json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCandidate(t *testing.T) {
	cases := []struct {
		suffix int
		want   string
	}{
		{0, "Users__User"},
		{1, "Users__User"},
		{2, "Users__User__2"},
		{17, "Users__User__17"},
	}
	for _, tc := range cases {
		if got := Candidate("Users", "User", tc.suffix); got != tc.want {
			t.Errorf("Candidate(%d) = %q, want %q", tc.suffix, got, tc.want)
		}
	}
}

func TestAllocate_EmptyDir(t *testing.T) {
	a := Allocator{Dir: t.TempDir()}
	got, err := a.Allocate("Users", "User", testIdentity("tableName:users"))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != "Users__User" {
		t.Errorf("got %q, want Users__User", got)
	}
}

func TestAllocate_Stable(t *testing.T) {
	dir := t.TempDir()
	a := Allocator{Dir: dir}
	ident := testIdentity("tableName:users")

	first, err := a.Allocate("Users", "User", ident)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	store(t, dir, first, ident)

	second, err := a.Allocate("Users", "User", ident)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if first != second {
		t.Errorf("re-allocation changed id: %q then %q", first, second)
	}
}

func TestAllocate_Collision(t *testing.T) {
	dir := t.TempDir()
	a := Allocator{Dir: dir}

	first, err := a.Allocate("Users", "User", testIdentity("tableName:users"))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	store(t, dir, first, testIdentity("tableName:users"))

	second, err := a.Allocate("Users", "User", testIdentity("tableName:users-eu"))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second != "Users__User__2" {
		t.Errorf("second = %q, want Users__User__2", second)
	}
	store(t, dir, second, testIdentity("tableName:users-eu"))

	third, err := a.Allocate("Users", "User", testIdentity("logicalId:Other"))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if third != "Users__User__3" {
		t.Errorf("third = %q, want Users__User__3", third)
	}

	again, err := a.Allocate("Users", "User", testIdentity("tableName:users-eu"))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if again != second {
		t.Errorf("re-allocation of second identity = %q, want %q", again, second)
	}
}

func TestAllocate_UnidentifiedEntriesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Users__User.json"), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Users__User__2.json"), []byte(`{"resourceId":"Users__User__2"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Allocator{Dir: dir}.Allocate("Users", "User", testIdentity("tableName:users"))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != "Users__User__3" {
		t.Errorf("got %q, want Users__User__3", got)
	}
}

func TestAllocate_RequiresNames(t *testing.T) {
	if _, err := (Allocator{Dir: t.TempDir()}).Allocate("", "User", testIdentity("x")); err == nil {
		t.Error("expected error for empty resource name")
	}
}

func TestReusable(t *testing.T) {
	dir := t.TempDir()
	a := Allocator{Dir: dir}
	mine := testIdentity("tableName:users")

	if !a.Reusable("Users__User__2", mine) {
		t.Error("free slot should be reusable")
	}

	store(t, dir, "Users__User__2", mine)
	if !a.Reusable("Users__User__2", mine) {
		t.Error("slot holding the same identity should be reusable")
	}
	if a.Reusable("Users__User__2", testIdentity("tableName:other")) {
		t.Error("slot holding another identity must not be reused")
	}

	if err := os.WriteFile(filepath.Join(dir, "Users__User__3.json"), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if a.Reusable("Users__User__3", mine) {
		t.Error("unreadable slot must not be reused")
	}
	if a.Reusable("../escape", mine) || a.Reusable("", mine) {
		t.Error("ids with path separators or empty ids must be rejected")
	}
}
