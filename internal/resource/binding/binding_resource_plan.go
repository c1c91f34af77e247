package binding

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/blueprintio/terraform-provider-blueprint/internal/binder"
	"github.com/blueprintio/terraform-provider-blueprint/internal/ingest"
	"github.com/blueprintio/terraform-provider-blueprint/internal/planformat"
)

// ModifyPlan implements resource.ResourceWithModifyPlan. Planning a binding
// runs Bind: the LOCAL snapshot is written and the bundle staged before
// Terraform shows the plan.
func (r *BindingResource) ModifyPlan(ctx context.Context, req resource.ModifyPlanRequest, resp *resource.ModifyPlanResponse) {
	// Destroy plans are handled by Delete.
	if req.Plan.Raw.IsNull() {
		return
	}
	if r.providerData == nil {
		return
	}

	var plan BindingResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	var prior *BindingResourceModel
	if !req.State.Raw.IsNull() {
		var state BindingResourceModel
		resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
		if resp.Diagnostics.HasError() {
			return
		}
		prior = &state
		plan.StableResourceKey = state.StableResourceKey
		plan.ResourceID = state.ResourceID
	} else {
		plan.StableResourceKey = types.StringNull()
		plan.ResourceID = types.StringNull()
	}

	pr, diags := propsFromModel(ctx, plan)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}
	if pr.Ready && plan.DescribeLiveTable.ValueBool() && !pr.Props.Table.Name.IsResolved() {
		pr.Ready = false
	}

	if !pr.Ready {
		tflog.Info(ctx, "Binding inputs not known yet, binding at apply", map[string]interface{}{
			"resource_name": plan.ResourceName.ValueString(),
		})
		setAllUnknown(&plan, prior)
		resp.Diagnostics.Append(resp.Plan.Set(ctx, &plan)...)
		return
	}

	result, _, err := r.bind(ctx, plan, pr.Props)
	if err != nil {
		resp.Diagnostics.AddError("Binding Failed", err.Error())
		return
	}

	setBindResult(&plan, result, pr.Deferred)
	action := planformat.ActionCreate
	switch {
	case prior != nil && !pr.Deferred && deliveredAlready(*prior, result.Fingerprint):
		copyIngestResult(&plan, *prior)
		action = planformat.ActionNoop
	case prior != nil:
		setIngestUnknown(&plan)
		action = planformat.ActionUpdate
	default:
		setIngestUnknown(&plan)
	}

	summary := planSummary(plan, prior, action)
	tflog.Info(ctx, planformat.FormatSummary(summary))
	tflog.Debug(ctx, planformat.Format(summary))

	resp.Diagnostics.Append(resp.Plan.Set(ctx, &plan)...)
}

// planSummary describes the planned binding for the provider logs.
func planSummary(plan BindingResourceModel, prior *BindingResourceModel, action planformat.Action) *planformat.Plan {
	var old map[string]string
	if prior != nil {
		old = bindingAttributes(*prior)
	}
	return &planformat.Plan{
		ResourceAddress: "blueprint_dynamodb_binding." + plan.ResourceName.ValueString(),
		ResourceID:      plan.ResourceID.ValueString(),
		StableKey:       plan.StableResourceKey.ValueString(),
		SnapshotPath:    plan.SnapshotPath.ValueString(),
		BundleKey:       plan.BundleKey.ValueString(),
		Fingerprint:     plan.Fingerprint.ValueString(),
		Action:          action,
		Changes:         planformat.Diff(old, bindingAttributes(plan)),
	}
}

// bindingAttributes flattens the values that shape a snapshot.
func bindingAttributes(m BindingResourceModel) map[string]string {
	show := func(s types.String) string {
		if s.IsUnknown() {
			return "(known after apply)"
		}
		return s.ValueString()
	}
	attrs := map[string]string{
		"schema_path":   show(m.SchemaPath),
		"app_id":        show(m.AppID),
		"resource_name": show(m.ResourceName),
		"logical_id":    show(m.LogicalID),
		"path":          show(m.Path),
		"failure_mode":  show(m.FailureMode),
		"entity_name":   show(m.EntityName),
	}
	if len(m.Table) == 1 {
		t := m.Table[0]
		attrs["table.name"] = show(t.Name)
		attrs["table.arn"] = show(t.ARN)
		attrs["table.region"] = show(t.Region)
		attrs["table.partition_key"] = show(t.PartitionKey)
		attrs["table.sort_key"] = show(t.SortKey)
	}
	return attrs
}

// deliveredAlready reports whether prior state records a successful
// delivery of a snapshot with the given fingerprint.
func deliveredAlready(prior BindingResourceModel, fingerprint string) bool {
	return prior.IngestStatus.ValueString() == ingest.StatusSuccess &&
		prior.Fingerprint.ValueString() != "" &&
		prior.Fingerprint.ValueString() == fingerprint
}

// setBindResult records a Bind result in m. A deferred bind leaves the
// fingerprint unknown because it will change once every value is known.
func setBindResult(m *BindingResourceModel, res *binder.Result, deferred bool) {
	m.ID = types.StringValue(res.ResourceID)
	m.ResourceID = types.StringValue(res.ResourceID)
	m.EntityName = types.StringValue(res.Schema.EntityName())
	m.StableResourceKey = types.StringValue(res.Identity.StableResourceKey)
	m.SnapshotPath = types.StringValue(res.SnapshotPath)
	m.BundleKey = types.StringValue(res.BundleKey)
	if deferred {
		m.Fingerprint = types.StringUnknown()
	} else {
		m.Fingerprint = types.StringValue(res.Fingerprint)
	}
}

func setIngestResult(m *BindingResourceModel, out *ingest.Response) {
	m.EventID = types.StringValue(out.Data.EventID)
	m.ContentHash = types.StringValue(out.Data.ContentHash)
	m.IngestStatus = types.StringValue(out.Data.IngestStatus)
	m.IngestError = types.StringValue(out.Data.Error)
	m.IngestedAt = types.StringValue(out.Data.Timestamp)
}

func copyIngestResult(m *BindingResourceModel, prior BindingResourceModel) {
	m.EventID = prior.EventID
	m.ContentHash = prior.ContentHash
	m.IngestStatus = prior.IngestStatus
	m.IngestError = prior.IngestError
	m.IngestedAt = prior.IngestedAt
}

func setIngestUnknown(m *BindingResourceModel) {
	m.EventID = types.StringUnknown()
	m.ContentHash = types.StringUnknown()
	m.IngestStatus = types.StringUnknown()
	m.IngestError = types.StringUnknown()
	m.IngestedAt = types.StringUnknown()
}

// setAllUnknown marks every computed value unknown, keeping the stable key
// of an existing binding.
func setAllUnknown(m *BindingResourceModel, prior *BindingResourceModel) {
	if prior == nil || prior.StableResourceKey.IsNull() {
		m.StableResourceKey = types.StringUnknown()
	}
	m.ID = types.StringUnknown()
	m.ResourceID = types.StringUnknown()
	m.EntityName = types.StringUnknown()
	m.SnapshotPath = types.StringUnknown()
	m.BundleKey = types.StringUnknown()
	m.Fingerprint = types.StringUnknown()
	setIngestUnknown(m)
}
