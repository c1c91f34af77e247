// Package providerdata defines the ProviderData struct that is shared between
// the provider and its resources / data sources. It is separated into its own
// package to avoid import cycles (provider -> resource -> provider).
package providerdata

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/blueprintio/terraform-provider-blueprint/internal/binder"
	"github.com/blueprintio/terraform-provider-blueprint/internal/config"
	"github.com/blueprintio/terraform-provider-blueprint/internal/credentials"
	"github.com/blueprintio/terraform-provider-blueprint/internal/datastore/dynamo"
	"github.com/blueprintio/terraform-provider-blueprint/internal/engine"
	"github.com/blueprintio/terraform-provider-blueprint/internal/ingest"
	"github.com/blueprintio/terraform-provider-blueprint/internal/localcache"
	"github.com/blueprintio/terraform-provider-blueprint/internal/snapshot"
	"github.com/blueprintio/terraform-provider-blueprint/internal/target"
)

// ProviderData is configured during provider.Configure() and shared with
// resources via resp.ResourceData and resp.DataSourceData.
type ProviderData struct {
	Version  string
	Env      binder.Environment
	Settings config.Settings

	Cache   *localcache.Cache
	Engine  *engine.Engine
	Staging target.Target

	// Secrets and DynamoDB are nil when no AWS configuration could be
	// loaded.
	Secrets  credentials.SecretsAPI
	DynamoDB dynamo.DescribeAPI

	HTTPClient *http.Client
	// RetryDelay is the first ingestion backoff. Zero uses the client
	// default.
	RetryDelay time.Duration
	Now        func() time.Time

	bindMu sync.Mutex
}

// Bind runs one binding. Calls are serialised so resource id allocation in
// the shared cache directory never races within this process.
func (pd *ProviderData) Bind(ctx context.Context, props binder.Props, hooks binder.HookRegistry) (*binder.Result, error) {
	pd.bindMu.Lock()
	defer pd.bindMu.Unlock()

	b := &binder.Binder{
		Env:             pd.Env,
		Cache:           pd.Cache,
		Engine:          pd.Engine,
		Staging:         pd.Staging,
		Hooks:           hooks,
		Builder:         snapshot.Builder{Now: pd.Now},
		ProviderVersion: pd.Version,
	}
	return b.Bind(ctx, props)
}

// Handler returns an ingestion handler reading bundles from the staging
// target.
func (pd *ProviderData) Handler() *ingest.Handler {
	return &ingest.Handler{
		Engine:      pd.Engine,
		Target:      pd.Staging,
		Credentials: credentials.Resolver{Secrets: pd.Secrets},
		Settings: ingest.Settings{
			BaseURL:          pd.Settings.APIBaseURL,
			MaxSnapshotBytes: pd.Settings.MaxSnapshotBytes,
			Timeout:          pd.Settings.Timeout(),
			MaxRetries:       pd.Settings.MaxRetries,
			RetryDelay:       pd.RetryDelay,
			LedgerRetain:     pd.Settings.LedgerRetain,
		},
		HTTPClient: pd.HTTPClient,
		Now:        pd.Now,
	}
}

// StagingConfigModel maps the staging {} block in the provider
// configuration.
type StagingConfigModel struct {
	Name            types.String `tfsdk:"name"`
	Type            types.String `tfsdk:"type"`
	Directory       types.String `tfsdk:"directory"`
	Bucket          types.String `tfsdk:"bucket"`
	Region          types.String `tfsdk:"region"`
	KMSKeyID        types.String `tfsdk:"kms_key_id"`
	StorageAccount  types.String `tfsdk:"storage_account"`
	ContainerName   types.String `tfsdk:"container_name"`
	EncryptionScope types.String `tfsdk:"encryption_scope"`
	KMSKeyName      types.String `tfsdk:"kms_key_name"`
	Prefix          types.String `tfsdk:"prefix"`
	MaxRetries      types.Int64  `tfsdk:"max_retries"`
	RetryBackoff    types.String `tfsdk:"retry_backoff"`
}
