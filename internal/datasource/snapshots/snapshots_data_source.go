// Package snapshots implements the blueprint_local_snapshots data source,
// which lists the LOCAL snapshots held in the provider's cache.
package snapshots

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/blueprintio/terraform-provider-blueprint/internal/providerdata"
)

var (
	_ datasource.DataSource              = &LocalSnapshotsDataSource{}
	_ datasource.DataSourceWithConfigure = &LocalSnapshotsDataSource{}
)

// NewLocalSnapshotsDataSource returns a new datasource.DataSource for the
// blueprint_local_snapshots type.
func NewLocalSnapshotsDataSource() datasource.DataSource {
	return &LocalSnapshotsDataSource{}
}

// LocalSnapshotsDataSource implements blueprint_local_snapshots.
type LocalSnapshotsDataSource struct {
	providerData *providerdata.ProviderData
}

// LocalSnapshotsModel maps the data source schema.
type LocalSnapshotsModel struct {
	Pattern   types.String    `tfsdk:"pattern"`
	ID        types.String    `tfsdk:"id"`
	CacheDir  types.String    `tfsdk:"cache_dir"`
	Snapshots []SnapshotModel `tfsdk:"snapshots"`
}

// SnapshotModel is one listed snapshot.
type SnapshotModel struct {
	Path          types.String `tfsdk:"path"`
	ResourceID    types.String `tfsdk:"resource_id"`
	ResourceName  types.String `tfsdk:"resource_name"`
	Action        types.String `tfsdk:"action"`
	AppID         types.String `tfsdk:"app_id"`
	EntityName    types.String `tfsdk:"entity_name"`
	StackName     types.String `tfsdk:"stack_name"`
	DatastoreType types.String `tfsdk:"datastore_type"`
	CapturedAt    types.String `tfsdk:"captured_at"`
}

func (d *LocalSnapshotsDataSource) Metadata(_ context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_local_snapshots"
}

func (d *LocalSnapshotsDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	str := func(desc string) schema.StringAttribute {
		return schema.StringAttribute{MarkdownDescription: desc, Computed: true}
	}

	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists the LOCAL snapshots in the provider's cache directory.",
		Attributes: map[string]schema.Attribute{
			"pattern": schema.StringAttribute{
				MarkdownDescription: "Doublestar glob matched against cache-relative paths, for example `\"aws/*/us-east-1/prod/**\"`. Defaults to `\"**/*.json\"`.",
				Optional:            true,
			},
			"id":        str("The cache directory and pattern."),
			"cache_dir": str("Absolute path of the cache directory."),
			"snapshots": schema.ListNestedAttribute{
				MarkdownDescription: "Matching snapshots, sorted by path.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"path":           str("Absolute path of the snapshot file."),
						"resource_id":    str("Resource id of the binding."),
						"resource_name":  str("Display name of the binding."),
						"action":         str("`\"UPSERT\"` or `\"DELETE\"`."),
						"app_id":         str("Governance application identifier."),
						"entity_name":    str("Entity name from the binding identity."),
						"stack_name":     str("Deployment unit name."),
						"datastore_type": str("Data store type."),
						"captured_at":    str("Capture time of the snapshot."),
					},
				},
			},
		},
	}
}

func (d *LocalSnapshotsDataSource) Configure(_ context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}

	pd, ok := req.ProviderData.(*providerdata.ProviderData)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Data Source Configure Type",
			fmt.Sprintf("Expected *providerdata.ProviderData, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	d.providerData = pd
}

func (d *LocalSnapshotsDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var cfg LocalSnapshotsModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &cfg)...)
	if resp.Diagnostics.HasError() {
		return
	}
	if d.providerData == nil {
		resp.Diagnostics.AddError("Provider Not Configured", "The blueprint provider has not been configured.")
		return
	}

	pattern := cfg.Pattern.ValueString()
	entries, err := d.providerData.Cache.List(pattern)
	if err != nil {
		resp.Diagnostics.AddError(
			"Snapshot Listing Failed",
			fmt.Sprintf("Failed to list snapshots matching %q: %s", pattern, err),
		)
		return
	}

	tflog.Debug(ctx, "Listed local snapshots", map[string]interface{}{
		"pattern": pattern,
		"count":   len(entries),
	})

	cfg.CacheDir = types.StringValue(d.providerData.Cache.Root())
	cfg.ID = types.StringValue(d.providerData.Cache.Root() + ":" + pattern)
	cfg.Snapshots = make([]SnapshotModel, 0, len(entries))
	for _, e := range entries {
		cfg.Snapshots = append(cfg.Snapshots, SnapshotModel{
			Path:          types.StringValue(e.Path),
			ResourceID:    types.StringValue(e.ResourceID),
			ResourceName:  types.StringValue(e.ResourceName),
			Action:        types.StringValue(string(e.Action)),
			AppID:         types.StringValue(e.AppID),
			EntityName:    types.StringValue(e.EntityName),
			StackName:     types.StringValue(e.StackName),
			DatastoreType: types.StringValue(e.DatastoreType),
			CapturedAt:    types.StringValue(e.CapturedAt),
		})
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &cfg)...)
}
