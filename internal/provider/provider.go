package provider

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/listvalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"golang.org/x/sync/semaphore"

	"github.com/blueprintio/terraform-provider-blueprint/internal/binder"
	"github.com/blueprintio/terraform-provider-blueprint/internal/config"
	"github.com/blueprintio/terraform-provider-blueprint/internal/datasource/snapshots"
	"github.com/blueprintio/terraform-provider-blueprint/internal/engine"
	"github.com/blueprintio/terraform-provider-blueprint/internal/localcache"
	"github.com/blueprintio/terraform-provider-blueprint/internal/resource/binding"
	"github.com/blueprintio/terraform-provider-blueprint/internal/target"
)

// Ensure BlueprintProvider satisfies the provider.Provider interface.
var _ provider.Provider = &BlueprintProvider{}

// BlueprintProvider implements the blueprint Terraform provider.
type BlueprintProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and run locally.
	version string
}

// New returns a factory function that creates a new BlueprintProvider
// instance for the given version string. This is the entry-point used in
// main.go.
func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &BlueprintProvider{
			version: version,
		}
	}
}

// Metadata returns the provider type name.
func (p *BlueprintProvider) Metadata(_ context.Context, _ provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "blueprint"
	resp.Version = p.version
}

// Schema returns the provider schema.
func (p *BlueprintProvider) Schema(_ context.Context, _ provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The blueprint provider binds DynamoDB tables to blueprint schemas, writes LOCAL snapshots at plan time and ingests them into the governance service at apply time.",
		Attributes: map[string]schema.Attribute{
			"stack_name": schema.StringAttribute{
				MarkdownDescription: "Name of the deployment unit every binding belongs to. Part of each binding's identity and cache path.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"stack_id": schema.StringAttribute{
				MarkdownDescription: "Identifier of the deployment unit recorded in snapshot context.",
				Optional:            true,
			},
			"account_id": schema.StringAttribute{
				MarkdownDescription: "Cloud account id recorded in snapshots. Defaults to `\"unknown\"` in cache paths when omitted.",
				Optional:            true,
			},
			"lookup_account_id": schema.BoolAttribute{
				MarkdownDescription: "When `true` and `account_id` is not set, the account id is looked up with STS GetCallerIdentity. Defaults to `false`.",
				Optional:            true,
			},
			"region": schema.StringAttribute{
				MarkdownDescription: "Region recorded in snapshots and used for AWS clients. Falls back to each table's region.",
				Optional:            true,
			},
			"cache_dir": schema.StringAttribute{
				MarkdownDescription: "Root of the local snapshot cache. Defaults to `BLUEPRINT_CACHE_DIR` or `\".blueprint/cache\"`.",
				Optional:            true,
			},
			"api_base_url": schema.StringAttribute{
				MarkdownDescription: "Governance service base URL. Defaults to `BLUEPRINT_API_BASE_URL` or `\"https://api.blueprint.dev\"`.",
				Optional:            true,
			},
			"max_snapshot_bytes": schema.Int64Attribute{
				MarkdownDescription: "Largest payload the provider will send. Defaults to `1048576`.",
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"timeout_seconds": schema.Int64Attribute{
				MarkdownDescription: "Timeout in seconds for each governance request attempt. Defaults to `30`.",
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"max_retries": schema.Int64Attribute{
				MarkdownDescription: "Retries after the first attempt for transient governance failures. Defaults to `2`, three attempts in total.",
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.AtLeast(0),
				},
			},
			"failure_mode": schema.StringAttribute{
				MarkdownDescription: "Default failure mode for bindings. Supported values are `\"BEST_EFFORT\"` and `\"STRICT\"`. Defaults to `\"BEST_EFFORT\"`.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.OneOf(config.FailureModeBestEffort, config.FailureModeStrict),
				},
			},
			"ledger_retain": schema.Int64Attribute{
				MarkdownDescription: "Number of event ledger entries kept per binding. Defaults to `10`.",
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"max_concurrency": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of concurrent staging operations. Defaults to `16`.",
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
		},
		Blocks: map[string]schema.Block{
			"staging": schema.ListNestedBlock{
				MarkdownDescription: "Storage for bundles staged at plan time and read at apply time. Defaults to a local directory next to the cache. At most one block may be specified.",
				Validators: []validator.List{
					listvalidator.SizeAtMost(1),
				},
				NestedObject: schema.NestedBlockObject{
					Attributes: map[string]schema.Attribute{
						"name": schema.StringAttribute{
							MarkdownDescription: "Name used in logs. Defaults to `\"staging\"`.",
							Optional:            true,
						},
						"type": schema.StringAttribute{
							MarkdownDescription: "Storage backend type. Supported values are `\"local\"`, `\"s3\"`, `\"azure\"`, `\"gcs\"` and `\"memory\"`.",
							Required:            true,
							Validators: []validator.String{
								stringvalidator.OneOf("local", "s3", "azure", "gcs", "memory"),
							},
						},
						"directory": schema.StringAttribute{
							MarkdownDescription: "Root directory. Required for `local` staging.",
							Optional:            true,
						},
						"bucket": schema.StringAttribute{
							MarkdownDescription: "S3 or GCS bucket name. Required for `s3` and `gcs` staging.",
							Optional:            true,
						},
						"region": schema.StringAttribute{
							MarkdownDescription: "AWS region for the S3 bucket.",
							Optional:            true,
						},
						"kms_key_id": schema.StringAttribute{
							MarkdownDescription: "AWS KMS key ID or ARN used for server-side encryption of S3 objects.",
							Optional:            true,
						},
						"storage_account": schema.StringAttribute{
							MarkdownDescription: "Azure Storage account name. Required for `azure` staging.",
							Optional:            true,
						},
						"container_name": schema.StringAttribute{
							MarkdownDescription: "Azure Blob Storage container name. Required for `azure` staging.",
							Optional:            true,
						},
						"encryption_scope": schema.StringAttribute{
							MarkdownDescription: "Azure encryption scope to apply when writing blobs.",
							Optional:            true,
						},
						"kms_key_name": schema.StringAttribute{
							MarkdownDescription: "GCS Cloud KMS key resource name used for object encryption.",
							Optional:            true,
						},
						"prefix": schema.StringAttribute{
							MarkdownDescription: "Key prefix prepended to all object paths within the bucket or container.",
							Optional:            true,
						},
						"max_retries": schema.Int64Attribute{
							MarkdownDescription: "Maximum number of retries for failed staging operations. Defaults to `3`.",
							Optional:            true,
						},
						"retry_backoff": schema.StringAttribute{
							MarkdownDescription: "Retry backoff strategy. Supported values are `\"exponential\"` and `\"linear\"`. Defaults to `\"exponential\"`.",
							Optional:            true,
							Validators: []validator.String{
								stringvalidator.OneOf("exponential", "linear"),
							},
						},
					},
				},
			},
		},
	}
}

// Configure layers the provider configuration over the environment
// settings, builds the cache, staging target and AWS clients, and stores
// everything in ProviderData for downstream resources.
func (p *BlueprintProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var cfg ProviderModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &cfg)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// ----------------------------------------------------------------
	// Resolve settings: environment first, provider block wins
	// ----------------------------------------------------------------
	settings, err := config.Load()
	if err != nil {
		resp.Diagnostics.AddError(
			"Invalid Environment Configuration",
			fmt.Sprintf("Failed to load BLUEPRINT_* settings: %s", err),
		)
		return
	}

	if !cfg.CacheDir.IsNull() && !cfg.CacheDir.IsUnknown() {
		settings.CacheDir = cfg.CacheDir.ValueString()
	}
	if !cfg.APIBaseURL.IsNull() && !cfg.APIBaseURL.IsUnknown() {
		settings.APIBaseURL = cfg.APIBaseURL.ValueString()
	}
	if !cfg.MaxSnapshotBytes.IsNull() && !cfg.MaxSnapshotBytes.IsUnknown() {
		settings.MaxSnapshotBytes = cfg.MaxSnapshotBytes.ValueInt64()
	}
	if !cfg.TimeoutSeconds.IsNull() && !cfg.TimeoutSeconds.IsUnknown() {
		settings.TimeoutSeconds = int(cfg.TimeoutSeconds.ValueInt64())
	}
	if !cfg.MaxRetries.IsNull() && !cfg.MaxRetries.IsUnknown() {
		settings.MaxRetries = int(cfg.MaxRetries.ValueInt64())
	}
	if !cfg.FailureMode.IsNull() && !cfg.FailureMode.IsUnknown() {
		settings.FailureMode = cfg.FailureMode.ValueString()
	}
	if !cfg.LedgerRetain.IsNull() && !cfg.LedgerRetain.IsUnknown() {
		settings.LedgerRetain = int(cfg.LedgerRetain.ValueInt64())
	}
	if err := settings.Validate(); err != nil {
		resp.Diagnostics.AddError("Invalid Provider Configuration", err.Error())
		return
	}

	maxConcurrency := int64(16)
	if !cfg.MaxConcurrency.IsNull() && !cfg.MaxConcurrency.IsUnknown() {
		maxConcurrency = cfg.MaxConcurrency.ValueInt64()
	}

	env := binder.Environment{
		AccountID: cfg.AccountID.ValueString(),
		Region:    cfg.Region.ValueString(),
		StackID:   cfg.StackID.ValueString(),
		StackName: cfg.StackName.ValueString(),
	}

	// ----------------------------------------------------------------
	// Local cache and staging target
	// ----------------------------------------------------------------
	cache, err := localcache.New(settings.CacheDir)
	if err != nil {
		resp.Diagnostics.AddError(
			"Cache Initialization Failed",
			fmt.Sprintf("Failed to open cache directory %q: %s", settings.CacheDir, err),
		)
		return
	}

	stagingCfg := target.Config{
		Name:      "staging",
		Type:      "local",
		Directory: filepath.Join(filepath.Dir(cache.Root()), "staging"),
	}
	if len(cfg.Staging) == 1 {
		stagingCfg = stagingConfig(cfg.Staging[0])
	}

	staging, err := target.NewTarget(ctx, stagingCfg)
	if err != nil {
		resp.Diagnostics.AddError(
			"Staging Initialization Failed",
			fmt.Sprintf("Failed to create staging target %q: %s", stagingCfg.Name, err),
		)
		return
	}

	pd := &ProviderData{
		Version:  p.version,
		Env:      env,
		Settings: *settings,
		Cache:    cache,
		Engine:   engine.New(semaphore.NewWeighted(maxConcurrency)),
		Staging:  staging,
	}

	// ----------------------------------------------------------------
	// AWS clients (secret store, live table description, account lookup)
	// ----------------------------------------------------------------
	awsCfg, err := loadAWSConfig(ctx, env.Region)
	if err != nil {
		tflog.Warn(ctx, "AWS configuration unavailable, secretsManager credentials and describe_live_table are disabled", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		pd.Secrets = secretsmanager.NewFromConfig(awsCfg)
		pd.DynamoDB = dynamodb.NewFromConfig(awsCfg)

		if pd.Env.AccountID == "" && cfg.LookupAccountID.ValueBool() {
			account, err := lookupAccountID(ctx, sts.NewFromConfig(awsCfg))
			if err != nil {
				resp.Diagnostics.AddError("Account Lookup Failed", err.Error())
				return
			}
			pd.Env.AccountID = account
		}
	}

	tflog.Info(ctx, "Configured blueprint provider", map[string]interface{}{
		"stack_name": env.StackName,
		"cache_dir":  cache.Root(),
		"staging":    staging.Name(),
	})

	resp.DataSourceData = pd
	resp.ResourceData = pd
}

// stagingConfig resolves the staging block into a target.Config with the
// same per-target defaults the storage layer expects.
func stagingConfig(sc StagingConfigModel) target.Config {
	name := "staging"
	if !sc.Name.IsNull() && !sc.Name.IsUnknown() && sc.Name.ValueString() != "" {
		name = sc.Name.ValueString()
	}

	maxRetries := int64(3)
	if !sc.MaxRetries.IsNull() && !sc.MaxRetries.IsUnknown() {
		maxRetries = sc.MaxRetries.ValueInt64()
	}

	retryBackoff := "exponential"
	if !sc.RetryBackoff.IsNull() && !sc.RetryBackoff.IsUnknown() {
		retryBackoff = sc.RetryBackoff.ValueString()
	}

	return target.Config{
		Name:            name,
		Type:            sc.Type.ValueString(),
		Directory:       sc.Directory.ValueString(),
		Bucket:          sc.Bucket.ValueString(),
		Region:          sc.Region.ValueString(),
		KMSKeyID:        sc.KMSKeyID.ValueString(),
		StorageAccount:  sc.StorageAccount.ValueString(),
		ContainerName:   sc.ContainerName.ValueString(),
		EncryptionScope: sc.EncryptionScope.ValueString(),
		KMSKeyName:      sc.KMSKeyName.ValueString(),
		Prefix:          sc.Prefix.ValueString(),
		MaxRetries:      int(maxRetries),
		RetryBackoff:    retryBackoff,
	}
}

// Resources returns the set of resource types supported by this provider.
func (p *BlueprintProvider) Resources(_ context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		binding.NewBindingResource,
	}
}

// DataSources returns the set of data source types supported by this provider.
func (p *BlueprintProvider) DataSources(_ context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		snapshots.NewLocalSnapshotsDataSource,
	}
}
