package binding

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	dyntypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/blueprintio/terraform-provider-blueprint/internal/binder"
	"github.com/blueprintio/terraform-provider-blueprint/internal/credentials"
	"github.com/blueprintio/terraform-provider-blueprint/internal/datastore/dynamo"
	"github.com/blueprintio/terraform-provider-blueprint/internal/identity"
)

// propsResult is what propsFromModel could make of a configuration.
type propsResult struct {
	Props binder.Props
	// Deferred is set when a table identifier is not known yet. Bind still
	// runs but its fingerprint will change once the value is known.
	Deferred bool
	// Ready is false when something Bind cannot work around is unknown.
	Ready bool
}

// valueOf maps a Terraform string onto an identity.Value: unknown becomes
// deferred and null becomes absent.
func valueOf(s types.String) identity.Value {
	switch {
	case s.IsUnknown():
		return identity.Deferred()
	case s.IsNull():
		return identity.Value{}
	}
	return identity.Resolved(s.ValueString())
}

func known(s types.String) bool {
	return !s.IsUnknown()
}

// propsFromModel builds binder.Props from a planned or applied model. Prior
// stable key and resource id are taken from the model when they are known.
func propsFromModel(ctx context.Context, m BindingResourceModel) (propsResult, diag.Diagnostics) {
	var diags diag.Diagnostics
	res := propsResult{Ready: true}

	if !known(m.SchemaPath) || !known(m.AppID) || !known(m.ResourceName) || !known(m.Path) || !known(m.FailureMode) {
		res.Ready = false
		return res, diags
	}
	if len(m.Table) != 1 || len(m.Credentials) != 1 {
		res.Ready = false
		return res, diags
	}

	table, deferred, ready, tDiags := tableFromModel(ctx, m.Table[0])
	diags.Append(tDiags...)
	if diags.HasError() || !ready {
		res.Ready = false
		return res, diags
	}

	creds, ok := credentialsFromModel(m.Credentials[0])
	if !ok {
		res.Ready = false
		return res, diags
	}

	path := m.Path.ValueString()
	if path == "" {
		path = m.ResourceName.ValueString()
	}

	res.Deferred = deferred || m.LogicalID.IsUnknown()
	res.Props = binder.Props{
		SchemaPath:   m.SchemaPath.ValueString(),
		Table:        &table,
		AppID:        m.AppID.ValueString(),
		ResourceName: m.ResourceName.ValueString(),
		LogicalID:    valueOf(m.LogicalID),
		Path:         path,
		Credentials:  creds,
		FailureMode:  m.FailureMode.ValueString(),
	}
	if !m.StableResourceKey.IsNull() && !m.StableResourceKey.IsUnknown() {
		res.Props.StableResourceKey = m.StableResourceKey.ValueString()
	}
	if !m.ResourceID.IsNull() && !m.ResourceID.IsUnknown() {
		res.Props.ResourceID = m.ResourceID.ValueString()
	}
	return res, diags
}

// tableFromModel converts the table block into a dynamo.Table. Unknown
// identifiers (name, arn, region) are deferred; anything else unknown makes
// the table not ready.
func tableFromModel(ctx context.Context, m TableModel) (t dynamo.Table, deferred, ready bool, diags diag.Diagnostics) {
	for _, s := range []types.String{m.PartitionKey, m.SortKey, m.BillingMode, m.StreamViewType, m.TTLAttribute, m.KMSKeyARN} {
		if s.IsUnknown() {
			return t, false, false, diags
		}
	}

	t = dynamo.Table{
		Name:   valueOf(m.Name),
		ARN:    valueOf(m.ARN),
		Region: valueOf(m.Region),
	}
	deferred = m.Name.IsUnknown() || m.ARN.IsUnknown() || m.Region.IsUnknown()

	t.KeySchema = keySchema(m.PartitionKey.ValueString(), m.SortKey.ValueString())

	for _, idx := range m.GlobalSecondaryIndexes {
		projection, ok, pDiags := projectionFromModel(ctx, idx)
		diags.Append(pDiags...)
		if diags.HasError() || !ok || !known(idx.Name) || !known(idx.PartitionKey) || !known(idx.SortKey) {
			return t, deferred, false, diags
		}
		t.GlobalSecondaryIndexes = append(t.GlobalSecondaryIndexes, dyntypes.GlobalSecondaryIndex{
			IndexName:  aws.String(idx.Name.ValueString()),
			KeySchema:  keySchema(idx.PartitionKey.ValueString(), idx.SortKey.ValueString()),
			Projection: projection,
		})
	}

	for _, idx := range m.LocalSecondaryIndexes {
		projection, ok, pDiags := projectionFromModel(ctx, idx)
		diags.Append(pDiags...)
		if diags.HasError() || !ok || !known(idx.Name) || !known(idx.SortKey) {
			return t, deferred, false, diags
		}
		t.LocalSecondaryIndexes = append(t.LocalSecondaryIndexes, dyntypes.LocalSecondaryIndex{
			IndexName:  aws.String(idx.Name.ValueString()),
			KeySchema:  keySchema(m.PartitionKey.ValueString(), idx.SortKey.ValueString()),
			Projection: projection,
		})
	}

	if v := m.BillingMode.ValueString(); v != "" {
		t.BillingMode = dyntypes.BillingMode(v)
	}
	if v := m.StreamViewType.ValueString(); v != "" {
		t.Stream = &dyntypes.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: dyntypes.StreamViewType(v),
		}
	}
	if v := m.TTLAttribute.ValueString(); v != "" {
		t.TimeToLive = &dyntypes.TimeToLiveSpecification{
			AttributeName: aws.String(v),
			Enabled:       aws.Bool(true),
		}
	}
	if v := m.KMSKeyARN.ValueString(); v != "" {
		t.SSE = &dyntypes.SSESpecification{
			Enabled:        aws.Bool(true),
			KMSMasterKeyId: aws.String(v),
			SSEType:        dyntypes.SSETypeKms,
		}
	}

	return t, deferred, true, diags
}

func keySchema(partition, sort string) []dyntypes.KeySchemaElement {
	var elems []dyntypes.KeySchemaElement
	if partition != "" {
		elems = append(elems, dyntypes.KeySchemaElement{AttributeName: aws.String(partition), KeyType: dyntypes.KeyTypeHash})
	}
	if sort != "" {
		elems = append(elems, dyntypes.KeySchemaElement{AttributeName: aws.String(sort), KeyType: dyntypes.KeyTypeRange})
	}
	return elems
}

func projectionFromModel(ctx context.Context, idx IndexModel) (*dyntypes.Projection, bool, diag.Diagnostics) {
	var diags diag.Diagnostics
	if idx.ProjectionType.IsUnknown() || idx.NonKeyAttributes.IsUnknown() {
		return nil, false, diags
	}

	p := &dyntypes.Projection{ProjectionType: dyntypes.ProjectionTypeAll}
	if v := idx.ProjectionType.ValueString(); v != "" {
		p.ProjectionType = dyntypes.ProjectionType(v)
	}
	if !idx.NonKeyAttributes.IsNull() {
		var attrs []string
		diags.Append(idx.NonKeyAttributes.ElementsAs(ctx, &attrs, false)...)
		p.NonKeyAttributes = attrs
	}
	return p, true, diags
}

// credentialsFromModel converts the credentials block. Unknown direct
// values are replaced with credentials.Deferred so the reference still
// validates during plan.
func credentialsFromModel(m CredentialsModel) (credentials.Ref, bool) {
	if m.Type.IsUnknown() {
		return credentials.Ref{}, false
	}

	orDeferred := func(s types.String) string {
		if s.IsUnknown() {
			return credentials.Deferred
		}
		return s.ValueString()
	}

	switch m.Type.ValueString() {
	case credentials.TypeDirect:
		return credentials.Direct(orDeferred(m.APIKey), orDeferred(m.APISecret)), true
	case credentials.TypeSecretsManager:
		if m.SecretName.IsUnknown() {
			return credentials.SecretsManager(credentials.Deferred), true
		}
		return credentials.SecretsManager(m.SecretName.ValueString()), true
	}
	return credentials.Ref{Type: m.Type.ValueString()}, true
}
