package binding

import "github.com/hashicorp/terraform-plugin-framework/types"

// BindingResourceModel maps the blueprint_dynamodb_binding resource schema
// to a Go struct.
type BindingResourceModel struct {
	// Config
	SchemaPath        types.String       `tfsdk:"schema_path"`
	AppID             types.String       `tfsdk:"app_id"`
	ResourceName      types.String       `tfsdk:"resource_name"`
	LogicalID         types.String       `tfsdk:"logical_id"`
	Path              types.String       `tfsdk:"path"`
	FailureMode       types.String       `tfsdk:"failure_mode"`
	DescribeLiveTable types.Bool         `tfsdk:"describe_live_table"` // default false
	Table             []TableModel       `tfsdk:"table"`               // exactly one block
	Credentials       []CredentialsModel `tfsdk:"credentials"`         // exactly one block

	// Computed
	ID                types.String `tfsdk:"id"`
	ResourceID        types.String `tfsdk:"resource_id"`
	EntityName        types.String `tfsdk:"entity_name"`
	StableResourceKey types.String `tfsdk:"stable_resource_key"`
	SnapshotPath      types.String `tfsdk:"snapshot_path"`
	BundleKey         types.String `tfsdk:"bundle_key"`
	Fingerprint       types.String `tfsdk:"fingerprint"`
	EventID           types.String `tfsdk:"event_id"`
	ContentHash       types.String `tfsdk:"content_hash"`
	IngestStatus      types.String `tfsdk:"ingest_status"`
	IngestError       types.String `tfsdk:"ingest_error"`
	IngestedAt        types.String `tfsdk:"ingested_at"`
}

// TableModel maps the table {} block describing the bound DynamoDB table.
type TableModel struct {
	Name                   types.String `tfsdk:"name"`
	ARN                    types.String `tfsdk:"arn"`
	Region                 types.String `tfsdk:"region"`
	PartitionKey           types.String `tfsdk:"partition_key"`
	SortKey                types.String `tfsdk:"sort_key"`
	BillingMode            types.String `tfsdk:"billing_mode"`
	StreamViewType         types.String `tfsdk:"stream_view_type"`
	TTLAttribute           types.String `tfsdk:"ttl_attribute"`
	KMSKeyARN              types.String `tfsdk:"kms_key_arn"`
	GlobalSecondaryIndexes []IndexModel `tfsdk:"global_secondary_index"`
	LocalSecondaryIndexes  []IndexModel `tfsdk:"local_secondary_index"`
}

// IndexModel maps one global_secondary_index or local_secondary_index
// block. Local indexes ignore partition_key.
type IndexModel struct {
	Name             types.String `tfsdk:"name"`
	PartitionKey     types.String `tfsdk:"partition_key"`
	SortKey          types.String `tfsdk:"sort_key"`
	ProjectionType   types.String `tfsdk:"projection_type"`
	NonKeyAttributes types.List   `tfsdk:"non_key_attributes"`
}

// CredentialsModel maps the credentials {} block. Secret values never leave
// Terraform state; bundles only record the credential type and secret name.
type CredentialsModel struct {
	Type       types.String `tfsdk:"credential_type"`
	APIKey     types.String `tfsdk:"api_key"`
	APISecret  types.String `tfsdk:"api_secret"`
	SecretName types.String `tfsdk:"secret_name"`
}
