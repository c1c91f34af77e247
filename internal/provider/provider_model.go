package provider

import "github.com/hashicorp/terraform-plugin-framework/types"

// ProviderModel maps the provider schema to a Go struct.
type ProviderModel struct {
	StackName        types.String         `tfsdk:"stack_name"`
	StackID          types.String         `tfsdk:"stack_id"`
	AccountID        types.String         `tfsdk:"account_id"`
	LookupAccountID  types.Bool           `tfsdk:"lookup_account_id"`
	Region           types.String         `tfsdk:"region"`
	CacheDir         types.String         `tfsdk:"cache_dir"`
	APIBaseURL       types.String         `tfsdk:"api_base_url"`
	MaxSnapshotBytes types.Int64          `tfsdk:"max_snapshot_bytes"`
	TimeoutSeconds   types.Int64          `tfsdk:"timeout_seconds"`
	MaxRetries       types.Int64          `tfsdk:"max_retries"`
	FailureMode      types.String         `tfsdk:"failure_mode"`
	LedgerRetain     types.Int64          `tfsdk:"ledger_retain"`
	MaxConcurrency   types.Int64          `tfsdk:"max_concurrency"`
	Staging          []StagingConfigModel `tfsdk:"staging"`
}
