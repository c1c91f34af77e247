package binding

import (
	"context"
	"testing"

	dyntypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/blueprintio/terraform-provider-blueprint/internal/credentials"
	"github.com/blueprintio/terraform-provider-blueprint/internal/ingest"
	"github.com/blueprintio/terraform-provider-blueprint/internal/planformat"
)

func testModel() BindingResourceModel {
	return BindingResourceModel{
		SchemaPath:   types.StringValue("/schemas/user.json"),
		AppID:        types.StringValue("app-1"),
		ResourceName: types.StringValue("UsersTable"),
		LogicalID:    types.StringNull(),
		Path:         types.StringNull(),
		FailureMode:  types.StringNull(),
		Table: []TableModel{{
			Name:           types.StringValue("Users"),
			ARN:            types.StringValue("arn:aws:dynamodb:us-east-1:123456789012:table/Users"),
			Region:         types.StringValue("us-east-1"),
			PartitionKey:   types.StringValue("pk"),
			SortKey:        types.StringNull(),
			BillingMode:    types.StringNull(),
			StreamViewType: types.StringNull(),
			TTLAttribute:   types.StringNull(),
			KMSKeyARN:      types.StringNull(),
		}},
		Credentials: []CredentialsModel{{
			Type:       types.StringValue(credentials.TypeDirect),
			APIKey:     types.StringValue("key"),
			APISecret:  types.StringValue("secret"),
			SecretName: types.StringNull(),
		}},
		StableResourceKey: types.StringNull(),
		ResourceID:        types.StringNull(),
	}
}

func TestPropsFromModel_Known(t *testing.T) {
	pr, diags := propsFromModel(context.Background(), testModel())
	if diags.HasError() {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if !pr.Ready || pr.Deferred {
		t.Fatalf("Ready=%v Deferred=%v, want ready and not deferred", pr.Ready, pr.Deferred)
	}
	if pr.Props.Path != "UsersTable" {
		t.Errorf("Path = %q, want resource name fallback", pr.Props.Path)
	}
	if name, ok := pr.Props.Table.Name.Get(); !ok || name != "Users" {
		t.Errorf("table name = %q/%v", name, ok)
	}
	if len(pr.Props.Table.KeySchema) != 1 || pr.Props.Table.KeySchema[0].KeyType != dyntypes.KeyTypeHash {
		t.Errorf("unexpected key schema %+v", pr.Props.Table.KeySchema)
	}
	if pr.Props.LogicalID.IsResolved() || pr.Props.LogicalID.IsDeferred() {
		t.Errorf("null logical id should be absent, got %v", pr.Props.LogicalID)
	}
	if pr.Props.StableResourceKey != "" || pr.Props.ResourceID != "" {
		t.Errorf("null prior values should stay empty")
	}
}

func TestPropsFromModel_PriorValuesAreKept(t *testing.T) {
	m := testModel()
	m.StableResourceKey = types.StringValue("tableName:Users")
	m.ResourceID = types.StringValue("UsersTable__User_2")

	pr, _ := propsFromModel(context.Background(), m)
	if pr.Props.StableResourceKey != "tableName:Users" {
		t.Errorf("StableResourceKey = %q", pr.Props.StableResourceKey)
	}
	if pr.Props.ResourceID != "UsersTable__User_2" {
		t.Errorf("ResourceID = %q", pr.Props.ResourceID)
	}
}

func TestPropsFromModel_UnknownTableNameIsDeferred(t *testing.T) {
	m := testModel()
	m.Table[0].Name = types.StringUnknown()

	pr, diags := propsFromModel(context.Background(), m)
	if diags.HasError() {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if !pr.Ready || !pr.Deferred {
		t.Fatalf("Ready=%v Deferred=%v, want ready and deferred", pr.Ready, pr.Deferred)
	}
	if !pr.Props.Table.Name.IsDeferred() {
		t.Errorf("table name should be deferred")
	}
}

func TestPropsFromModel_UnknownLogicalIDIsDeferred(t *testing.T) {
	m := testModel()
	m.LogicalID = types.StringUnknown()

	pr, _ := propsFromModel(context.Background(), m)
	if !pr.Ready || !pr.Deferred {
		t.Fatalf("Ready=%v Deferred=%v, want ready and deferred", pr.Ready, pr.Deferred)
	}
}

func TestPropsFromModel_NotReady(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BindingResourceModel)
	}{
		{"schema path", func(m *BindingResourceModel) { m.SchemaPath = types.StringUnknown() }},
		{"app id", func(m *BindingResourceModel) { m.AppID = types.StringUnknown() }},
		{"partition key", func(m *BindingResourceModel) { m.Table[0].PartitionKey = types.StringUnknown() }},
		{"credential type", func(m *BindingResourceModel) { m.Credentials[0].Type = types.StringUnknown() }},
		{"no table block", func(m *BindingResourceModel) { m.Table = nil }},
		{"index projection", func(m *BindingResourceModel) {
			m.Table[0].GlobalSecondaryIndexes = []IndexModel{{
				Name:             types.StringValue("byEmail"),
				PartitionKey:     types.StringValue("email"),
				SortKey:          types.StringNull(),
				ProjectionType:   types.StringUnknown(),
				NonKeyAttributes: types.ListNull(types.StringType),
			}}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := testModel()
			tc.mutate(&m)
			pr, _ := propsFromModel(context.Background(), m)
			if pr.Ready {
				t.Fatalf("expected not ready")
			}
		})
	}
}

func TestTableFromModel_Indexes(t *testing.T) {
	m := testModel().Table[0]
	m.SortKey = types.StringValue("sk")
	m.StreamViewType = types.StringValue("NEW_IMAGE")
	m.TTLAttribute = types.StringValue("expiresAt")
	m.GlobalSecondaryIndexes = []IndexModel{{
		Name:           types.StringValue("byEmail"),
		PartitionKey:   types.StringValue("email"),
		SortKey:        types.StringNull(),
		ProjectionType: types.StringValue("INCLUDE"),
		NonKeyAttributes: types.ListValueMust(types.StringType, []attr.Value{
			types.StringValue("name"),
		}),
	}}
	m.LocalSecondaryIndexes = []IndexModel{{
		Name:             types.StringValue("byCreated"),
		PartitionKey:     types.StringNull(),
		SortKey:          types.StringValue("createdAt"),
		ProjectionType:   types.StringNull(),
		NonKeyAttributes: types.ListNull(types.StringType),
	}}

	table, deferred, ready, diags := tableFromModel(context.Background(), m)
	if diags.HasError() || !ready || deferred {
		t.Fatalf("ready=%v deferred=%v diags=%v", ready, deferred, diags)
	}
	if len(table.KeySchema) != 2 {
		t.Fatalf("expected partition and sort key, got %d elements", len(table.KeySchema))
	}

	gsi := table.GlobalSecondaryIndexes[0]
	if gsi.Projection.ProjectionType != dyntypes.ProjectionTypeInclude || len(gsi.Projection.NonKeyAttributes) != 1 {
		t.Errorf("unexpected GSI projection %+v", gsi.Projection)
	}

	lsi := table.LocalSecondaryIndexes[0]
	if got := *lsi.KeySchema[0].AttributeName; got != "pk" {
		t.Errorf("LSI partition key = %q, want table partition key", got)
	}
	if lsi.Projection.ProjectionType != dyntypes.ProjectionTypeAll {
		t.Errorf("LSI projection should default to ALL, got %q", lsi.Projection.ProjectionType)
	}

	if table.Stream == nil || table.Stream.StreamViewType != dyntypes.StreamViewTypeNewImage {
		t.Errorf("unexpected stream %+v", table.Stream)
	}
	if table.TimeToLive == nil || *table.TimeToLive.AttributeName != "expiresAt" {
		t.Errorf("unexpected TTL %+v", table.TimeToLive)
	}
}

func TestCredentialsFromModel(t *testing.T) {
	direct := CredentialsModel{
		Type:       types.StringValue(credentials.TypeDirect),
		APIKey:     types.StringUnknown(),
		APISecret:  types.StringValue("secret"),
		SecretName: types.StringNull(),
	}
	ref, ok := credentialsFromModel(direct)
	if !ok {
		t.Fatal("expected ok")
	}
	if ref.APIKey != credentials.Deferred || ref.APISecret != "secret" {
		t.Errorf("unexpected direct ref %+v", ref)
	}
	if err := ref.Validate(); err != nil {
		t.Errorf("deferred direct ref should validate: %s", err)
	}

	stored := CredentialsModel{
		Type:       types.StringValue(credentials.TypeSecretsManager),
		APIKey:     types.StringNull(),
		APISecret:  types.StringNull(),
		SecretName: types.StringValue("blueprint/api"),
	}
	ref, ok = credentialsFromModel(stored)
	if !ok || ref.SecretName != "blueprint/api" || ref.Type != credentials.TypeSecretsManager {
		t.Errorf("unexpected secretsManager ref %+v", ref)
	}
}

func TestDeliveredAlready(t *testing.T) {
	prior := BindingResourceModel{
		IngestStatus: types.StringValue(ingest.StatusSuccess),
		Fingerprint:  types.StringValue("abc"),
	}
	if !deliveredAlready(prior, "abc") {
		t.Error("same fingerprint after SUCCESS should count as delivered")
	}
	if deliveredAlready(prior, "def") {
		t.Error("changed fingerprint should not count as delivered")
	}

	prior.IngestStatus = types.StringValue(ingest.StatusFailed)
	if deliveredAlready(prior, "abc") {
		t.Error("FAILED delivery should be retried")
	}
}

func TestSetAllUnknown_KeepsPriorStableKey(t *testing.T) {
	prior := &BindingResourceModel{StableResourceKey: types.StringValue("tableName:Users")}
	m := BindingResourceModel{
		StableResourceKey: prior.StableResourceKey,
		ResourceID:        types.StringValue("UsersTable__User"),
	}

	setAllUnknown(&m, prior)

	if m.StableResourceKey.ValueString() != "tableName:Users" {
		t.Errorf("stable key should be kept, got %v", m.StableResourceKey)
	}
	if !m.ResourceID.IsUnknown() || !m.Fingerprint.IsUnknown() || !m.IngestStatus.IsUnknown() {
		t.Error("computed values should be unknown")
	}

	fresh := BindingResourceModel{StableResourceKey: types.StringNull()}
	setAllUnknown(&fresh, nil)
	if !fresh.StableResourceKey.IsUnknown() {
		t.Error("new binding should have an unknown stable key")
	}
}

func TestPlanSummary_TableRename(t *testing.T) {
	prior := testModel()
	prior.EntityName = types.StringValue("User")
	plan := testModel()
	plan.EntityName = types.StringValue("User")
	plan.Table[0].Name = types.StringValue("UsersV2")
	plan.ResourceID = types.StringValue("UsersTable__User")

	summary := planSummary(plan, &prior, planformat.ActionUpdate)

	if summary.ResourceAddress != "blueprint_dynamodb_binding.UsersTable" {
		t.Errorf("ResourceAddress = %q", summary.ResourceAddress)
	}
	if len(summary.Changes) != 1 {
		t.Fatalf("expected one change, got %+v", summary.Changes)
	}
	if c := summary.Changes[0]; c.Field != "table.name" || c.Old != "Users" || c.New != "UsersV2" {
		t.Errorf("unexpected change %+v", c)
	}
}
