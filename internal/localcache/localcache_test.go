package localcache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/blueprintio/terraform-provider-blueprint/internal/blueprint"
	"github.com/blueprintio/terraform-provider-blueprint/internal/datastore/dynamo"
	"github.com/blueprintio/terraform-provider-blueprint/internal/identity"
	"github.com/blueprintio/terraform-provider-blueprint/internal/snapshot"
)

func buildSnapshot(t *testing.T, stack, resourceID, entity string) *snapshot.Snapshot {
	t.Helper()

	schema, err := blueprint.Parse([]byte(`{
		"schemaVersion": "1",
		"entity": "`+entity+`",
		"primaryKey": {"partitionKey": "pk"},
		"fields": [{"name": "pk", "type": "string", "required": true}]
	}`), blueprint.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	md, err := dynamo.Extractor{}.Extract(dynamo.Table{
		Name:      identity.Resolved("users"),
		ARN:       identity.Resolved("arn:aws:dynamodb:us-east-1:123456789012:table/users"),
		Region:    identity.Resolved("us-east-1"),
		KeySchema: []types.KeySchemaElement{{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash}},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	b := snapshot.Builder{Now: func() time.Time { return time.Date(2026, 2, 13, 20, 1, 2, 0, time.UTC) }}
	s, err := b.Build(snapshot.Input{
		AccountID:    "123456789012",
		Region:       "us-east-1",
		StackName:    stack,
		ResourceName: "UsersTable",
		ResourceID:   resourceID,
		Identity: identity.StableIdentity{
			AppID:             "acme",
			StackName:         stack,
			DatastoreType:     dynamo.Type,
			EntityName:        entity,
			StableResourceKey: "tableName:users",
		},
		AppID:     "acme",
		Schema:    schema,
		DataStore: md,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return s
}

func TestWriteLayout(t *testing.T) {
	root := t.TempDir()
	c, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	s := buildSnapshot(t, "prod", "UsersTable__User", "User")
	path, err := c.Write(context.Background(), s)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := filepath.Join(root, "aws", "123456789012", "us-east-1", "prod", "dynamodb", "UsersTable__User.json")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if c.Path(ScopeOf(s), s.ResourceID) != want {
		t.Errorf("Path disagrees with Write")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"action\": \"UPSERT\"") {
		t.Errorf("snapshot not pretty-printed:\n%s", data)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.ResourceID != "UsersTable__User" || got.Schema.Entity != "User" {
		t.Errorf("Read = %+v", got)
	}
}

func TestWriteOverwritesInPlace(t *testing.T) {
	c, _ := New(t.TempDir())
	ctx := context.Background()

	s := buildSnapshot(t, "prod", "UsersTable__User", "User")
	p1, _ := c.Write(ctx, s)
	s.AppID = "other"
	p2, err := c.Write(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatalf("paths differ: %q vs %q", p1, p2)
	}

	entries, _ := os.ReadDir(filepath.Dir(p1))
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want 1", len(entries))
	}
	got, _ := Read(p1)
	if got.AppID != "other" {
		t.Errorf("AppID = %q, want overwritten value", got.AppID)
	}
}

func TestUnknownSegments(t *testing.T) {
	c, _ := New(t.TempDir())
	dir := c.Dir(Scope{Provider: "aws", StackName: "prod", DatastoreType: "dynamodb"})
	want := filepath.Join(c.Root(), "aws", UnknownSegment, UnknownSegment, "prod", "dynamodb")
	if dir != want {
		t.Errorf("Dir = %q, want %q", dir, want)
	}
}

func TestList(t *testing.T) {
	c, _ := New(t.TempDir())
	ctx := context.Background()

	for _, s := range []*snapshot.Snapshot{
		buildSnapshot(t, "prod", "UsersTable__User", "User"),
		buildSnapshot(t, "prod", "UsersTable__Order", "Order"),
		buildSnapshot(t, "dev", "UsersTable__User", "User"),
	} {
		if _, err := c.Write(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	// Junk that must be skipped.
	junkDir := c.Dir(Scope{Provider: "aws", AccountID: "123456789012", Region: "us-east-1", StackName: "prod", DatastoreType: "dynamodb"})
	_ = os.WriteFile(filepath.Join(junkDir, "notes.json"), []byte("not json"), 0o644)
	_ = os.WriteFile(filepath.Join(junkDir, "README.txt"), []byte("x"), 0o644)

	all, err := c.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List all = %d entries, want 3: %+v", len(all), all)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Path > all[i].Path {
			t.Errorf("entries not sorted by path")
		}
	}

	prod, err := c.List("aws/*/*/prod/**/*.json")
	if err != nil {
		t.Fatalf("List prod: %v", err)
	}
	if len(prod) != 2 {
		t.Fatalf("List prod = %d entries, want 2", len(prod))
	}
	if prod[0].EntityName != "Order" || prod[1].EntityName != "User" {
		t.Errorf("prod entities = %s, %s", prod[0].EntityName, prod[1].EntityName)
	}
	if prod[1].Action != snapshot.ActionUpsert || prod[1].AppID != "acme" || prod[1].StackName != "prod" {
		t.Errorf("entry = %+v", prod[1])
	}

	users, _ := c.List("**/*__User.json")
	if len(users) != 2 {
		t.Errorf("List users = %d entries, want 2", len(users))
	}
}

func TestListMissingRoot(t *testing.T) {
	c, _ := New(filepath.Join(t.TempDir(), "never-created"))
	entries, err := c.List("")
	if err != nil || len(entries) != 0 {
		t.Errorf("List = %v, %v; want empty, nil", entries, err)
	}
}

func TestListInvalidPattern(t *testing.T) {
	c, _ := New(t.TempDir())
	if _, err := c.List("[unclosed"); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
