package binding

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"golang.org/x/sync/semaphore"

	"github.com/blueprintio/terraform-provider-blueprint/internal/binder"
	"github.com/blueprintio/terraform-provider-blueprint/internal/config"
	"github.com/blueprintio/terraform-provider-blueprint/internal/credentials"
	"github.com/blueprintio/terraform-provider-blueprint/internal/engine"
	"github.com/blueprintio/terraform-provider-blueprint/internal/ingest"
	"github.com/blueprintio/terraform-provider-blueprint/internal/localcache"
	"github.com/blueprintio/terraform-provider-blueprint/internal/providerdata"
	"github.com/blueprintio/terraform-provider-blueprint/internal/target"
)

const userSchema = `{
	"schemaVersion": "1",
	"entity": "User",
	"primaryKey": {"partitionKey": "pk"},
	"fields": [{"name": "pk", "type": "string", "required": true}]
}`

// governanceLog records the commits an in-process governance service saw.
type governanceLog struct {
	mu      sync.Mutex
	commits []ingest.CommitRequest
}

func (g *governanceLog) all() []ingest.CommitRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ingest.CommitRequest(nil), g.commits...)
}

func newGovernance(t *testing.T) (*httptest.Server, *governanceLog) {
	t.Helper()
	log := &governanceLog{}
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest/presign", func(w http.ResponseWriter, r *http.Request) {
		var req ingest.PresignRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(ingest.PresignResponse{
			UploadURL: srv.URL + "/upload/" + req.EventID,
			ExpiresAt: "2026-02-13T21:00:00Z",
		})
	})
	mux.HandleFunc("/upload/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
	})
	mux.HandleFunc("/ingest/commit", func(w http.ResponseWriter, r *http.Request) {
		var req ingest.CommitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		log.mu.Lock()
		log.commits = append(log.commits, req)
		log.mu.Unlock()
		_ = json.NewEncoder(w).Encode(ingest.CommitResponse{EventID: req.EventID, Status: ingest.CommitStatusAccepted})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, log
}

func testResource(t *testing.T, baseURL string) *BindingResource {
	t.Helper()
	cache, err := localcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return &BindingResource{providerData: &providerdata.ProviderData{
		Version: "test",
		Env: binder.Environment{
			AccountID: "123456789012",
			Region:    "us-east-1",
			StackID:   "stack-1",
			StackName: "prod",
		},
		Settings: config.Settings{
			APIBaseURL:       baseURL,
			MaxSnapshotBytes: 1 << 20,
			TimeoutSeconds:   5,
			FailureMode:      config.FailureModeBestEffort,
			LedgerRetain:     10,
		},
		Cache:      cache,
		Engine:     engine.New(semaphore.NewWeighted(4)),
		Staging:    target.NewMemoryTarget("staging"),
		RetryDelay: time.Millisecond,
	}}
}

// boundModel returns testModel pointing at a real schema file.
func boundModel(t *testing.T) BindingResourceModel {
	t.Helper()
	p := filepath.Join(t.TempDir(), "user.json")
	if err := os.WriteFile(p, []byte(userSchema), 0o600); err != nil {
		t.Fatal(err)
	}
	m := testModel()
	m.SchemaPath = types.StringValue(p)
	m.DescribeLiveTable = types.BoolValue(false)
	return m
}

func resourceSchema(ctx context.Context, r *BindingResource) resource.SchemaResponse {
	var resp resource.SchemaResponse
	r.Schema(ctx, resource.SchemaRequest{}, &resp)
	return resp
}

func TestCreate_UnknownPlanDeliversBoundBundle(t *testing.T) {
	ctx := context.Background()
	srv, gov := newGovernance(t)
	r := testResource(t, srv.URL)
	s := resourceSchema(ctx, r).Schema
	empty := tftypes.NewValue(s.Type().TerraformType(ctx), nil)

	// Inputs that were unknown at plan time leave every computed value,
	// bundle_key included, unknown in the planned state.
	m := boundModel(t)
	m.FailureMode = types.StringValue(config.FailureModeStrict)
	setAllUnknown(&m, nil)

	plan := tfsdk.Plan{Schema: s, Raw: empty}
	if diags := plan.Set(ctx, &m); diags.HasError() {
		t.Fatalf("plan.Set: %v", diags)
	}
	resp := resource.CreateResponse{State: tfsdk.State{Schema: s, Raw: empty}}
	r.Create(ctx, resource.CreateRequest{Plan: plan}, &resp)
	if resp.Diagnostics.HasError() {
		t.Fatalf("Create: %v", resp.Diagnostics)
	}

	var got BindingResourceModel
	if diags := resp.State.Get(ctx, &got); diags.HasError() {
		t.Fatalf("State.Get: %v", diags)
	}
	if got.ResourceID.ValueString() != "UsersTable__User" {
		t.Errorf("ResourceID = %v", got.ResourceID)
	}
	if got.BundleKey.ValueString() != engine.Key("prod", "UsersTable__User") {
		t.Errorf("BundleKey = %v", got.BundleKey)
	}
	if got.IngestStatus.ValueString() != ingest.StatusSuccess || got.IngestError.ValueString() != "" {
		t.Errorf("ingest = %v / %v", got.IngestStatus, got.IngestError)
	}

	commits := gov.all()
	if len(commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(commits))
	}
	if commits[0].ResourceID != "UsersTable__User" || commits[0].EventID != got.EventID.ValueString() {
		t.Errorf("commit = %+v, state event %v", commits[0], got.EventID)
	}
}

func TestBind_ReturnsHookRegistration(t *testing.T) {
	ctx := context.Background()
	r := testResource(t, "http://127.0.0.1:1")

	m := boundModel(t)
	pr, diags := propsFromModel(ctx, m)
	if diags.HasError() || !pr.Ready {
		t.Fatalf("props not ready: %v", diags)
	}
	result, reg, err := r.bind(ctx, m, pr.Props)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if reg.ResourceID != result.ResourceID || reg.BundleKey != result.BundleKey {
		t.Errorf("registration %+v does not match result %s / %s", reg, result.ResourceID, result.BundleKey)
	}
	if reg.FailureMode != config.FailureModeBestEffort {
		t.Errorf("FailureMode = %q, want provider default", reg.FailureMode)
	}
	if reg.Credentials.Type != credentials.TypeDirect {
		t.Errorf("Credentials = %+v", reg.Credentials)
	}

	staged, err := r.providerData.Engine.Load(ctx, r.providerData.Staging, reg.BundleKey)
	if err != nil {
		t.Fatalf("registered bundle not staged: %v", err)
	}
	if staged.Manifest.ResourceID != reg.ResourceID {
		t.Errorf("staged manifest resource id = %q", staged.Manifest.ResourceID)
	}
}

func TestHookRequest(t *testing.T) {
	reg := binder.Registration{
		ResourceID:  "UsersTable__User",
		BundleKey:   engine.Key("prod", "UsersTable__User"),
		FailureMode: config.FailureModeStrict,
	}
	ref := credentials.Direct("key", "secret")

	req := hookRequest(reg, ingest.RequestUpdate, "UsersTable__User", ref)

	want := ingest.Request{
		RequestType:        ingest.RequestUpdate,
		BundleKey:          reg.BundleKey,
		PhysicalResourceID: "UsersTable__User",
		Credentials:        ref,
		FailureMode:        config.FailureModeStrict,
	}
	if req != want {
		t.Errorf("request = %+v, want %+v", req, want)
	}
}

func TestRegistrationFromState(t *testing.T) {
	m := testModel()
	m.ResourceID = types.StringValue("UsersTable__User_2")
	m.BundleKey = types.StringValue("prod/UsersTable__User_2/")

	reg := registrationFromState(m)
	if reg.ResourceID != "UsersTable__User_2" || reg.BundleKey != "prod/UsersTable__User_2/" {
		t.Errorf("registration = %+v", reg)
	}
	if reg.FailureMode != "" {
		t.Errorf("null failure mode should defer to the manifest, got %q", reg.FailureMode)
	}
}
