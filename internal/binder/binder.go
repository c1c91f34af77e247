// Package binder binds a DynamoDB table to a blueprint schema at plan time.
//
// Bind loads the schema, extracts table metadata, resolves the binding's
// stable identity and resource id, writes the LOCAL snapshot to the local
// cache, stages the deploy-time bundle and registers the lifecycle hook that
// delivers it at apply time. Bind never reads secret values.
package binder

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/blueprintio/terraform-provider-blueprint/internal/blueprint"
	"github.com/blueprintio/terraform-provider-blueprint/internal/bundle"
	"github.com/blueprintio/terraform-provider-blueprint/internal/config"
	"github.com/blueprintio/terraform-provider-blueprint/internal/credentials"
	"github.com/blueprintio/terraform-provider-blueprint/internal/datastore"
	"github.com/blueprintio/terraform-provider-blueprint/internal/datastore/dynamo"
	"github.com/blueprintio/terraform-provider-blueprint/internal/engine"
	"github.com/blueprintio/terraform-provider-blueprint/internal/identity"
	"github.com/blueprintio/terraform-provider-blueprint/internal/localcache"
	"github.com/blueprintio/terraform-provider-blueprint/internal/manifest"
	"github.com/blueprintio/terraform-provider-blueprint/internal/resourceid"
	"github.com/blueprintio/terraform-provider-blueprint/internal/snapshot"
	"github.com/blueprintio/terraform-provider-blueprint/internal/target"
)

// State is the progress of a Binder through Bind.
type State int

const (
	Uninitialized State = iota
	SchemaLoaded
	MetadataExtracted
	IdentityResolved
	SnapshotWritten
	LifecycleRegistered
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case SchemaLoaded:
		return "SchemaLoaded"
	case MetadataExtracted:
		return "MetadataExtracted"
	case IdentityResolved:
		return "IdentityResolved"
	case SnapshotWritten:
		return "SnapshotWritten"
	case LifecycleRegistered:
		return "LifecycleRegistered"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a missing or malformed Bind input.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("binder: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

var resourceNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ResourceNamePattern returns the pattern resource names must match.
func ResourceNamePattern() *regexp.Regexp {
	return resourceNamePattern
}

// Environment describes the deployment unit bindings belong to.
type Environment struct {
	AccountID string
	Region    string
	StackID   string
	StackName string
}

// Props are the inputs of one binding.
type Props struct {
	SchemaPath    string
	SchemaOptions blueprint.Options
	Table         *dynamo.Table
	AppID         string
	// ResourceName is the display name used in resource ids.
	ResourceName string
	LogicalID    identity.Value
	// Path is the binding's structural address, the identity of last resort.
	Path        string
	Credentials credentials.Ref
	// FailureMode defaults to BEST_EFFORT.
	FailureMode string

	// StableResourceKey and ResourceID carry values chosen by an earlier
	// Bind of the same binding. When set they are kept.
	StableResourceKey string
	ResourceID        string
}

// Registration is the small set of values a lifecycle hook is keyed by.
type Registration struct {
	ResourceID  string
	BundleKey   string
	FailureMode string
	Credentials manifest.CredentialRef
}

// HookRegistry records lifecycle hook registrations.
type HookRegistry interface {
	Register(ctx context.Context, reg Registration) error
}

// Result describes a completed Bind.
type Result struct {
	Schema       *blueprint.Schema
	Metadata     datastore.Metadata
	Identity     identity.StableIdentity
	ResourceID   string
	Snapshot     *snapshot.Snapshot
	SnapshotPath string
	BundleKey    string
	BundleHash   string
	Fingerprint  string
	Registration Registration
}

// Binder runs one binding. A Binder is single use.
type Binder struct {
	Env             Environment
	Cache           *localcache.Cache
	Engine          *engine.Engine
	Staging         target.Target
	Hooks           HookRegistry
	Builder         snapshot.Builder
	ProviderVersion string

	state State
}

// State returns how far the last Bind got.
func (b *Binder) State() State {
	return b.state
}

// Bind runs the binding described by props.
func (b *Binder) Bind(ctx context.Context, props Props) (*Result, error) {
	if b.state != Uninitialized {
		return nil, &ConfigurationError{Field: "binder", Reason: "already used for " + b.state.String()}
	}
	if err := b.validate(&props); err != nil {
		return nil, err
	}
	ctx = tflog.SetField(ctx, "resource_name", props.ResourceName)

	schema, err := blueprint.Load(props.SchemaPath, props.SchemaOptions)
	if err != nil {
		return nil, err
	}
	b.state = SchemaLoaded
	tflog.Debug(ctx, "Schema loaded", map[string]interface{}{"entity": schema.EntityName()})

	md, err := dynamo.Extractor{}.Extract(*props.Table)
	if err != nil {
		return nil, err
	}
	b.state = MetadataExtracted

	id, err := b.resolveIdentity(props, schema.EntityName())
	if err != nil {
		return nil, err
	}
	b.state = IdentityResolved
	tflog.Debug(ctx, "Identity resolved", map[string]interface{}{"match_key": id.MatchKey()})

	scope := localcache.Scope{
		Provider:      snapshot.ProviderAWS,
		AccountID:     b.Env.AccountID,
		Region:        b.region(props.Table),
		StackName:     b.Env.StackName,
		DatastoreType: dynamo.Type,
	}
	alloc := resourceid.Allocator{Dir: b.Cache.Dir(scope)}
	resourceID := props.ResourceID
	if resourceID == "" || !alloc.Reusable(resourceID, id) {
		resourceID, err = alloc.Allocate(props.ResourceName, schema.EntityName(), id)
		if err != nil {
			return nil, err
		}
	}

	snap, err := b.Builder.Build(snapshot.Input{
		AccountID:    b.Env.AccountID,
		Region:       scope.Region,
		StackID:      b.Env.StackID,
		StackName:    b.Env.StackName,
		ResourceName: props.ResourceName,
		ResourceID:   resourceID,
		Identity:     id,
		AppID:        props.AppID,
		Schema:       schema,
		DataStore:    md,
	})
	if err != nil {
		return nil, err
	}
	fingerprint, err := snapshot.Fingerprint(snap)
	if err != nil {
		return nil, err
	}

	path, err := b.Cache.Write(ctx, snap)
	if err != nil {
		return nil, err
	}
	b.state = SnapshotWritten
	tflog.Info(ctx, "LOCAL snapshot written", map[string]interface{}{
		"resource_id": resourceID,
		"path":        path,
	})

	reg := Registration{
		ResourceID:  resourceID,
		BundleKey:   engine.Key(b.Env.StackName, resourceID),
		FailureMode: props.FailureMode,
		Credentials: manifest.CredentialRef{
			Type:       props.Credentials.Type,
			SecretName: props.Credentials.SecretName,
		},
	}

	staged, err := b.stage(ctx, snap, reg, fingerprint)
	if err != nil {
		return nil, err
	}

	if b.Hooks != nil {
		if err := b.Hooks.Register(ctx, reg); err != nil {
			return nil, fmt.Errorf("binder: register lifecycle hook: %w", err)
		}
	}
	b.state = LifecycleRegistered

	return &Result{
		Schema:       schema,
		Metadata:     md,
		Identity:     id,
		ResourceID:   resourceID,
		Snapshot:     snap,
		SnapshotPath: path,
		BundleKey:    reg.BundleKey,
		BundleHash:   staged.BundleHash,
		Fingerprint:  fingerprint,
		Registration: reg,
	}, nil
}

func (b *Binder) validate(props *Props) error {
	switch {
	case b.Cache == nil || b.Engine == nil || b.Staging == nil:
		return &ConfigurationError{Field: "binder", Reason: "cache, engine and staging target are required"}
	case b.Env.StackName == "":
		return &ConfigurationError{Field: "stack_name", Reason: "is required"}
	case props.SchemaPath == "":
		return &ConfigurationError{Field: "schema_path", Reason: "is required"}
	case props.Table == nil:
		return &ConfigurationError{Field: "table", Reason: "is required"}
	case props.AppID == "" || identity.IsPlaceholder(props.AppID):
		return &ConfigurationError{Field: "app_id", Reason: "must be a concrete, non-empty value"}
	case !resourceNamePattern.MatchString(props.ResourceName):
		return &ConfigurationError{Field: "resource_name", Reason: fmt.Sprintf("%q must match %s", props.ResourceName, resourceNamePattern)}
	}

	if err := props.Credentials.Validate(); err != nil {
		return &ConfigurationError{Field: "credentials", Reason: err.Error()}
	}

	if props.FailureMode == "" {
		props.FailureMode = config.FailureModeBestEffort
	}
	if err := config.ValidFailureMode(props.FailureMode); err != nil {
		return &ConfigurationError{Field: "failure_mode", Reason: err.Error()}
	}
	return nil
}

func (b *Binder) resolveIdentity(props Props, entityName string) (identity.StableIdentity, error) {
	if props.StableResourceKey != "" {
		id := identity.StableIdentity{
			AppID:             props.AppID,
			StackName:         b.Env.StackName,
			DatastoreType:     dynamo.Type,
			EntityName:        entityName,
			StableResourceKey: props.StableResourceKey,
		}
		if !id.Valid() {
			return identity.StableIdentity{}, &identity.Error{Reason: fmt.Sprintf("incomplete identity %q", id.MatchKey())}
		}
		return id, nil
	}
	return identity.Resolve(props.AppID, b.Env.StackName, dynamo.Type, entityName, identity.Source{
		PhysicalName: props.Table.Name,
		LogicalID:    props.LogicalID,
		Path:         props.Path,
	})
}

// region prefers the environment's region and falls back to the table's.
func (b *Binder) region(t *dynamo.Table) string {
	if b.Env.Region != "" {
		return b.Env.Region
	}
	if r, ok := t.Region.Get(); ok {
		return r
	}
	return ""
}

func (b *Binder) stage(ctx context.Context, snap *snapshot.Snapshot, reg Registration, fingerprint string) (*engine.StageResult, error) {
	data, err := snapshot.Encode(snap)
	if err != nil {
		return nil, err
	}
	bdl, err := bundle.New(map[string][]byte{bundle.SnapshotFile: data})
	if err != nil {
		return nil, err
	}

	res, err := b.Engine.Stage(ctx, b.Staging, engine.StageInput{
		Key:    reg.BundleKey,
		Bundle: bdl,
		Manifest: &manifest.Manifest{
			SchemaVersion:   manifest.SchemaVersion,
			ProviderVersion: b.ProviderVersion,
			ResourceID:      reg.ResourceID,
			ResourceName:    snap.ResourceName,
			StackName:       snap.StackName,
			AppID:           snap.AppID,
			DatastoreType:   snap.DatastoreType,
			FailureMode:     reg.FailureMode,
			Credentials:     reg.Credentials,
			CreatedAt:       snap.CapturedAt,
			Fingerprint:     fingerprint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("binder: stage bundle: %w", err)
	}
	tflog.Info(ctx, "Bundle staged", map[string]interface{}{
		"target":      res.TargetName,
		"bundle_key":  res.Key,
		"bundle_hash": res.BundleHash,
	})
	return res, nil
}
