// Package snapshot builds the versioned documents that record a binding's
// schema and data store metadata, and the wire payloads derived from them.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blueprintio/terraform-provider-blueprint/internal/blueprint"
	"github.com/blueprintio/terraform-provider-blueprint/internal/datastore"
	"github.com/blueprintio/terraform-provider-blueprint/internal/identity"
)

const (
	// FormatVersion is the document format version, distinct from the
	// schema's own schemaVersion.
	FormatVersion = "1.0"

	// ProviderAWS is the cloud provider recorded for AWS-hosted stores.
	ProviderAWS = "aws"

	// TimeFormat is the capturedAt layout: RFC 3339, UTC, milliseconds.
	TimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

// Action is the lifecycle action a snapshot records.
type Action string

const (
	ActionUpsert Action = "UPSERT"
	ActionDelete Action = "DELETE"
)

// Context describes the enclosing deployment unit.
type Context struct {
	Account   string `json:"account"`
	Region    string `json:"region"`
	StackID   string `json:"stackId"`
	StackName string `json:"stackName"`
}

// Snapshot is the LOCAL snapshot document. Schema is nil only for DELETE.
type Snapshot struct {
	SchemaVersion string                  `json:"schemaVersion"`
	Action        Action                  `json:"action"`
	Provider      string                  `json:"provider"`
	AccountID     string                  `json:"accountId"`
	Region        string                  `json:"region"`
	StackName     string                  `json:"stackName"`
	DatastoreType string                  `json:"datastoreType"`
	ResourceName  string                  `json:"resourceName"`
	ResourceID    string                  `json:"resourceId"`
	Identity      identity.StableIdentity `json:"identity"`
	AppID         string                  `json:"appId"`
	Schema        *blueprint.Schema       `json:"schema"`
	DataStore     datastore.Metadata      `json:"dataStore"`
	Context       Context                 `json:"context"`
	CapturedAt    string                  `json:"capturedAt"`
}

// snapshotAlias drops the methods of Snapshot so UnmarshalJSON can decode
// the plain fields.
type snapshotAlias Snapshot

// UnmarshalJSON decodes a snapshot, resolving dataStore through the
// registered datastore decoders. Numbers inside the schema are kept as
// json.Number so re-encoding is lossless.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		snapshotAlias
		DataStore json.RawMessage `json:"dataStore"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	*s = Snapshot(raw.snapshotAlias)
	s.DataStore = nil
	if len(raw.DataStore) > 0 && !bytes.Equal(raw.DataStore, []byte("null")) {
		md, err := datastore.Decode(raw.DataStore)
		if err != nil {
			return err
		}
		s.DataStore = md
	}
	return nil
}

// Input carries everything Build needs.
type Input struct {
	AccountID    string
	Region       string
	StackID      string
	StackName    string
	ResourceName string
	ResourceID   string
	Identity     identity.StableIdentity
	AppID        string
	Schema       *blueprint.Schema
	DataStore    datastore.Metadata
}

// Builder assembles snapshots. Now defaults to time.Now.
type Builder struct {
	Now func() time.Time
}

func (b Builder) now() string {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return now().UTC().Format(TimeFormat)
}

// Build returns an UPSERT snapshot stamped with the current time.
func (b Builder) Build(in Input) (*Snapshot, error) {
	switch {
	case in.Schema == nil:
		return nil, errors.New("snapshot: schema is required")
	case in.DataStore == nil:
		return nil, errors.New("snapshot: data store metadata is required")
	case in.ResourceID == "":
		return nil, errors.New("snapshot: resource id is required")
	case !in.Identity.Valid():
		return nil, fmt.Errorf("snapshot: incomplete identity %q", in.Identity.MatchKey())
	}

	return &Snapshot{
		SchemaVersion: FormatVersion,
		Action:        ActionUpsert,
		Provider:      ProviderAWS,
		AccountID:     in.AccountID,
		Region:        in.Region,
		StackName:     in.StackName,
		DatastoreType: in.DataStore.DataStoreType(),
		ResourceName:  in.ResourceName,
		ResourceID:    in.ResourceID,
		Identity:      in.Identity,
		AppID:         in.AppID,
		Schema:        in.Schema,
		DataStore:     in.DataStore,
		Context: Context{
			Account:   in.AccountID,
			Region:    in.Region,
			StackID:   in.StackID,
			StackName: in.StackName,
		},
		CapturedAt: b.now(),
	}, nil
}

// Delete returns the DELETE variant of prev: same identifying fields, a nil
// schema and a fresh capturedAt.
func (b Builder) Delete(prev *Snapshot) *Snapshot {
	out := *prev
	out.Action = ActionDelete
	out.Schema = nil
	out.CapturedAt = b.now()
	return &out
}

// Encode renders s as indented JSON for the local cache.
func Encode(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a snapshot document.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	return &s, nil
}
