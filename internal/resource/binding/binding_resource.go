// Package binding implements the blueprint_dynamodb_binding resource. Plan
// binds the table to its schema and writes the LOCAL snapshot; apply
// delivers the staged snapshot to the governance service.
package binding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework-validators/listvalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/booldefault"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/blueprintio/terraform-provider-blueprint/internal/binder"
	"github.com/blueprintio/terraform-provider-blueprint/internal/config"
	"github.com/blueprintio/terraform-provider-blueprint/internal/credentials"
	"github.com/blueprintio/terraform-provider-blueprint/internal/datastore/dynamo"
	"github.com/blueprintio/terraform-provider-blueprint/internal/engine"
	"github.com/blueprintio/terraform-provider-blueprint/internal/ingest"
	"github.com/blueprintio/terraform-provider-blueprint/internal/providerdata"
)

// Compile-time interface checks.
var (
	_ resource.Resource               = &BindingResource{}
	_ resource.ResourceWithConfigure  = &BindingResource{}
	_ resource.ResourceWithModifyPlan = &BindingResource{}
)

// NewBindingResource returns a new resource.Resource for the
// blueprint_dynamodb_binding type.
func NewBindingResource() resource.Resource {
	return &BindingResource{}
}

// BindingResource implements the blueprint_dynamodb_binding Terraform
// resource.
type BindingResource struct {
	providerData *providerdata.ProviderData
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

func (r *BindingResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_dynamodb_binding"
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

func indexBlock(description string, local bool) schema.ListNestedBlock {
	attrs := map[string]schema.Attribute{
		"name": schema.StringAttribute{
			MarkdownDescription: "Index name.",
			Required:            true,
		},
		"sort_key": schema.StringAttribute{
			MarkdownDescription: "Sort key attribute of the index.",
			Optional:            true,
		},
		"projection_type": schema.StringAttribute{
			MarkdownDescription: "Projection type. Supported values are `\"ALL\"`, `\"KEYS_ONLY\"` and `\"INCLUDE\"`. Defaults to `\"ALL\"`.",
			Optional:            true,
			Validators: []validator.String{
				stringvalidator.OneOf("ALL", "KEYS_ONLY", "INCLUDE"),
			},
		},
		"non_key_attributes": schema.ListAttribute{
			MarkdownDescription: "Attributes projected into an `INCLUDE` index.",
			Optional:            true,
			ElementType:         types.StringType,
		},
	}
	if local {
		attrs["partition_key"] = schema.StringAttribute{
			MarkdownDescription: "Ignored for local indexes, which share the table's partition key.",
			Optional:            true,
		}
		attrs["sort_key"] = schema.StringAttribute{
			MarkdownDescription: "Sort key attribute of the index.",
			Required:            true,
		}
	} else {
		attrs["partition_key"] = schema.StringAttribute{
			MarkdownDescription: "Partition key attribute of the index.",
			Required:            true,
		}
	}
	return schema.ListNestedBlock{
		MarkdownDescription: description,
		NestedObject:        schema.NestedBlockObject{Attributes: attrs},
	}
}

func (r *BindingResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Binds a DynamoDB table to a blueprint schema. The LOCAL snapshot is written to the cache during plan; the snapshot is ingested into the governance service during apply.",

		Attributes: map[string]schema.Attribute{
			// ---- Required ----
			"schema_path": schema.StringAttribute{
				MarkdownDescription: "Path to the blueprint schema file (JSON or YAML).",
				Required:            true,
			},
			"app_id": schema.StringAttribute{
				MarkdownDescription: "Governance application identifier.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"resource_name": schema.StringAttribute{
				MarkdownDescription: "Display name used to build the resource id.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.RegexMatches(binder.ResourceNamePattern(), "must contain only letters, digits, '_', '.' and '-'"),
				},
			},

			// ---- Optional ----
			"logical_id": schema.StringAttribute{
				MarkdownDescription: "Logical identifier used as the stable key when the table name is not known.",
				Optional:            true,
			},
			"path": schema.StringAttribute{
				MarkdownDescription: "Structural address used as the stable key of last resort. Defaults to `resource_name`.",
				Optional:            true,
			},
			"failure_mode": schema.StringAttribute{
				MarkdownDescription: "What an ingestion failure does to the apply. Supported values are `\"BEST_EFFORT\"` and `\"STRICT\"`. Defaults to the provider's `failure_mode`.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.OneOf(config.FailureModeBestEffort, config.FailureModeStrict),
				},
			},
			"describe_live_table": schema.BoolAttribute{
				MarkdownDescription: "When `true`, the table's keys, indexes, stream, TTL and encryption are read with DescribeTable instead of the `table` block. Defaults to `false`.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},

			// ---- Computed ----
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `resource_id`.",
				Computed:            true,
			},
			"resource_id": schema.StringAttribute{
				MarkdownDescription: "Collision-free snapshot slot id, `{resource_name}__{entity}` with an optional numeric suffix.",
				Computed:            true,
			},
			"entity_name": schema.StringAttribute{
				MarkdownDescription: "Entity name declared by the schema.",
				Computed:            true,
			},
			"stable_resource_key": schema.StringAttribute{
				MarkdownDescription: "Stable key of the bound table. Kept for the life of the binding.",
				Computed:            true,
			},
			"snapshot_path": schema.StringAttribute{
				MarkdownDescription: "Absolute path of the LOCAL snapshot in the cache.",
				Computed:            true,
			},
			"bundle_key": schema.StringAttribute{
				MarkdownDescription: "Key prefix of the staged bundle in the staging target.",
				Computed:            true,
			},
			"fingerprint": schema.StringAttribute{
				MarkdownDescription: "Hash of the snapshot without its capture time. Changes only when the binding changes.",
				Computed:            true,
			},
			"event_id": schema.StringAttribute{
				MarkdownDescription: "Event id of the last delivery.",
				Computed:            true,
			},
			"content_hash": schema.StringAttribute{
				MarkdownDescription: "Content hash of the last delivered snapshot.",
				Computed:            true,
			},
			"ingest_status": schema.StringAttribute{
				MarkdownDescription: "`\"SUCCESS\"` or `\"FAILED\"`.",
				Computed:            true,
			},
			"ingest_error": schema.StringAttribute{
				MarkdownDescription: "Error of the last delivery, empty on success.",
				Computed:            true,
			},
			"ingested_at": schema.StringAttribute{
				MarkdownDescription: "RFC 3339 time of the last delivery.",
				Computed:            true,
			},
		},

		Blocks: map[string]schema.Block{
			"table": schema.ListNestedBlock{
				MarkdownDescription: "The bound DynamoDB table. Exactly one block is required.",
				Validators: []validator.List{
					listvalidator.IsRequired(),
					listvalidator.SizeBetween(1, 1),
				},
				NestedObject: schema.NestedBlockObject{
					Attributes: map[string]schema.Attribute{
						"name": schema.StringAttribute{
							MarkdownDescription: "Table name.",
							Optional:            true,
						},
						"arn": schema.StringAttribute{
							MarkdownDescription: "Table ARN.",
							Optional:            true,
						},
						"region": schema.StringAttribute{
							MarkdownDescription: "Table region.",
							Optional:            true,
						},
						"partition_key": schema.StringAttribute{
							MarkdownDescription: "Partition key attribute. Required unless `describe_live_table` is set.",
							Optional:            true,
						},
						"sort_key": schema.StringAttribute{
							MarkdownDescription: "Sort key attribute.",
							Optional:            true,
						},
						"billing_mode": schema.StringAttribute{
							MarkdownDescription: "`\"PROVISIONED\"` or `\"PAY_PER_REQUEST\"`.",
							Optional:            true,
							Validators: []validator.String{
								stringvalidator.OneOf("PROVISIONED", "PAY_PER_REQUEST"),
							},
						},
						"stream_view_type": schema.StringAttribute{
							MarkdownDescription: "Stream view type. Setting it marks the stream enabled.",
							Optional:            true,
							Validators: []validator.String{
								stringvalidator.OneOf("KEYS_ONLY", "NEW_IMAGE", "OLD_IMAGE", "NEW_AND_OLD_IMAGES"),
							},
						},
						"ttl_attribute": schema.StringAttribute{
							MarkdownDescription: "Time to live attribute.",
							Optional:            true,
						},
						"kms_key_arn": schema.StringAttribute{
							MarkdownDescription: "KMS key used for server-side encryption.",
							Optional:            true,
						},
					},
					Blocks: map[string]schema.Block{
						"global_secondary_index": indexBlock("A global secondary index.", false),
						"local_secondary_index":  indexBlock("A local secondary index.", true),
					},
				},
			},
			"credentials": schema.ListNestedBlock{
				MarkdownDescription: "Governance API credentials. Exactly one block is required. Secret values are never written to the cache or the staged bundle.",
				Validators: []validator.List{
					listvalidator.IsRequired(),
					listvalidator.SizeBetween(1, 1),
				},
				NestedObject: schema.NestedBlockObject{
					Attributes: map[string]schema.Attribute{
						"credential_type": schema.StringAttribute{
							MarkdownDescription: "`\"direct\"` or `\"secretsManager\"`.",
							Required:            true,
							Validators: []validator.String{
								stringvalidator.OneOf(credentials.TypeDirect, credentials.TypeSecretsManager),
							},
						},
						"api_key": schema.StringAttribute{
							MarkdownDescription: "API key for `direct` credentials.",
							Optional:            true,
							Sensitive:           true,
							Validators: []validator.String{
								stringvalidator.ConflictsWith(path.MatchRelative().AtParent().AtName("secret_name")),
							},
						},
						"api_secret": schema.StringAttribute{
							MarkdownDescription: "API secret for `direct` credentials.",
							Optional:            true,
							Sensitive:           true,
						},
						"secret_name": schema.StringAttribute{
							MarkdownDescription: "Secrets Manager secret holding `{\"apiKey\", \"apiSecret\"}` for `secretsManager` credentials.",
							Optional:            true,
						},
					},
				},
			},
		},
	}
}

// --------------------------------------------------------------------------
// Configure
// --------------------------------------------------------------------------

func (r *BindingResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}

	pd, ok := req.ProviderData.(*providerdata.ProviderData)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Resource Configure Type",
			fmt.Sprintf("Expected *providerdata.ProviderData, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	r.providerData = pd
}

// --------------------------------------------------------------------------
// Create
// --------------------------------------------------------------------------

func (r *BindingResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan BindingResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	result, reg, ok := r.bindForApply(ctx, &plan, &resp.Diagnostics)
	if !ok {
		return
	}
	setBindResult(&plan, result, false)

	out, ok := r.deliver(ctx, reg, plan.Credentials, ingest.RequestCreate, "", &resp.Diagnostics)
	if !ok {
		return
	}
	setIngestResult(&plan, out)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

// --------------------------------------------------------------------------
// Read (refresh)
// --------------------------------------------------------------------------

func (r *BindingResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state BindingResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}
	if r.providerData == nil || state.BundleKey.ValueString() == "" {
		return
	}

	staged, err := r.providerData.Engine.Load(ctx, r.providerData.Staging, state.BundleKey.ValueString())
	switch {
	case errors.Is(err, engine.ErrNotStaged):
		// The next plan restages the bundle.
		tflog.Warn(ctx, "Staged bundle not found", map[string]interface{}{
			"bundle_key": state.BundleKey.ValueString(),
		})
		return
	case err != nil:
		tflog.Warn(ctx, "Staged bundle unreadable", map[string]interface{}{
			"bundle_key": state.BundleKey.ValueString(),
			"error":      err.Error(),
		})
		return
	}

	if staged.Manifest.Fingerprint != state.Fingerprint.ValueString() {
		tflog.Info(ctx, "Staged bundle differs from state", map[string]interface{}{
			"staged":   staged.Manifest.Fingerprint,
			"recorded": state.Fingerprint.ValueString(),
		})
	}
}

// --------------------------------------------------------------------------
// Update
// --------------------------------------------------------------------------

func (r *BindingResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, prior BindingResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &prior)...)
	if resp.Diagnostics.HasError() {
		return
	}

	result, reg, ok := r.bindForApply(ctx, &plan, &resp.Diagnostics)
	if !ok {
		return
	}
	setBindResult(&plan, result, false)

	if deliveredAlready(prior, result.Fingerprint) {
		tflog.Info(ctx, "Snapshot unchanged since last delivery, skipping ingestion", map[string]interface{}{
			"resource_id": result.ResourceID,
			"event_id":    prior.EventID.ValueString(),
		})
		copyIngestResult(&plan, prior)
		resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
		return
	}

	out, ok := r.deliver(ctx, reg, plan.Credentials, ingest.RequestUpdate, prior.ResourceID.ValueString(), &resp.Diagnostics)
	if !ok {
		return
	}
	setIngestResult(&plan, out)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

// --------------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------------

func (r *BindingResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state BindingResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}
	if !r.requireProviderData(&resp.Diagnostics) {
		return
	}

	out, ok := r.deliver(ctx, registrationFromState(state), state.Credentials, ingest.RequestDelete, state.ResourceID.ValueString(), &resp.Diagnostics)
	if !ok {
		return
	}

	if out.Snapshot != nil {
		p, err := r.providerData.Cache.Write(ctx, out.Snapshot)
		if err != nil {
			tflog.Warn(ctx, "Failed to record DELETE snapshot in the local cache", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			tflog.Info(ctx, "DELETE snapshot written", map[string]interface{}{"path": p})
		}
	}

	bundleKey := state.BundleKey.ValueString()
	if bundleKey == "" {
		return
	}
	if err := r.providerData.Engine.Remove(ctx, r.providerData.Staging, bundleKey); err != nil {
		resp.Diagnostics.AddError(
			"Staged Bundle Removal Failed",
			fmt.Sprintf("Failed to remove staged bundle %q: %s", bundleKey, err),
		)
	}
}

// --------------------------------------------------------------------------
// Apply helpers
// --------------------------------------------------------------------------

// bindForApply re-runs Bind with the values known at apply time, keeping
// the stable key and resource id chosen during plan. The returned
// registration addresses the bundle this bind staged.
func (r *BindingResource) bindForApply(ctx context.Context, m *BindingResourceModel, diags *diag.Diagnostics) (*binder.Result, binder.Registration, bool) {
	if !r.requireProviderData(diags) {
		return nil, binder.Registration{}, false
	}

	pr, propDiags := propsFromModel(ctx, *m)
	diags.Append(propDiags...)
	if diags.HasError() {
		return nil, binder.Registration{}, false
	}
	if !pr.Ready {
		diags.AddError("Binding Not Ready", "Some binding inputs are still unknown at apply time.")
		return nil, binder.Registration{}, false
	}

	result, reg, err := r.bind(ctx, *m, pr.Props)
	if err != nil {
		diags.AddError("Binding Failed", err.Error())
		return nil, binder.Registration{}, false
	}
	return result, reg, true
}

// bind applies provider defaults and optional live table description, then
// runs Bind and returns the lifecycle hook registration it made.
func (r *BindingResource) bind(ctx context.Context, m BindingResourceModel, props binder.Props) (*binder.Result, binder.Registration, error) {
	if props.FailureMode == "" {
		props.FailureMode = r.providerData.Settings.FailureMode
	}

	if m.DescribeLiveTable.ValueBool() {
		name, ok := props.Table.Name.Get()
		if !ok {
			return nil, binder.Registration{}, errors.New("describe_live_table requires a known table name")
		}
		if r.providerData.DynamoDB == nil {
			return nil, binder.Registration{}, errors.New("describe_live_table requires AWS configuration")
		}
		live, err := dynamo.Describe(ctx, r.providerData.DynamoDB, name)
		if err != nil {
			return nil, binder.Registration{}, err
		}
		if props.Table.Region.IsResolved() && !live.Region.IsResolved() {
			live.Region = props.Table.Region
		}
		props.Table = &live
	}

	hook := &recordedHook{}
	result, err := r.providerData.Bind(ctx, props, hook)
	if err != nil {
		return nil, binder.Registration{}, err
	}
	if hook.reg == nil {
		return nil, binder.Registration{}, fmt.Errorf("binding %q registered no lifecycle hook", result.ResourceID)
	}
	return result, *hook.reg, nil
}

// deliver runs the lifecycle hook described by reg. A STRICT failure
// becomes an error diagnostic; a BEST_EFFORT failure is recorded in state
// only.
func (r *BindingResource) deliver(ctx context.Context, reg binder.Registration, creds []CredentialsModel, rt ingest.RequestType, physicalID string, diags *diag.Diagnostics) (*ingest.Response, bool) {
	if len(creds) != 1 {
		diags.AddError("Missing Credentials", "Exactly one credentials block is required.")
		return nil, false
	}
	ref, _ := credentialsFromModel(creds[0])

	out, err := r.providerData.Handler().Handle(ctx, hookRequest(reg, rt, physicalID, ref))
	if err != nil {
		diags.AddError("Snapshot Ingestion Failed", fmt.Sprintf("%s ingestion for %q failed: %s", rt, reg.ResourceID, err))
		return nil, false
	}
	if out.Data.IngestStatus == ingest.StatusFailed {
		diags.AddWarning("Snapshot Ingestion Failed", fmt.Sprintf("%s ingestion for %q failed and was skipped (BEST_EFFORT): %s", rt, reg.ResourceID, out.Data.Error))
	}
	return out, true
}

// hookRequest builds the lifecycle request for reg. Secret values are not
// part of a registration and come from ref.
func hookRequest(reg binder.Registration, rt ingest.RequestType, physicalID string, ref credentials.Ref) ingest.Request {
	return ingest.Request{
		RequestType:        rt,
		BundleKey:          reg.BundleKey,
		PhysicalResourceID: physicalID,
		Credentials:        ref,
		FailureMode:        reg.FailureMode,
	}
}

// registrationFromState rebuilds the registration of an applied binding.
// Delete does not bind again.
func registrationFromState(m BindingResourceModel) binder.Registration {
	return binder.Registration{
		ResourceID:  m.ResourceID.ValueString(),
		BundleKey:   m.BundleKey.ValueString(),
		FailureMode: m.FailureMode.ValueString(),
	}
}

func (r *BindingResource) requireProviderData(diags *diag.Diagnostics) bool {
	if r.providerData == nil {
		diags.AddError("Provider Not Configured", "The blueprint provider has not been configured.")
		return false
	}
	return true
}

// recordedHook keeps the registration Bind made so apply can deliver to
// the bundle that bind staged.
type recordedHook struct {
	reg *binder.Registration
}

func (h *recordedHook) Register(_ context.Context, reg binder.Registration) error {
	h.reg = &reg
	return nil
}
