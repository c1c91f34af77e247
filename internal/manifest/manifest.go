// Package manifest describes a staged binding bundle: which snapshot it
// carries, how its ingestion is configured, and the hash of every file in
// it. Serialization is deterministic.
package manifest

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SchemaVersion is the current manifest format version.
const SchemaVersion = 1

// Manifest is written last into every staged bundle and marks it complete.
type Manifest struct {
	SchemaVersion   int               `json:"schema_version"`
	ProviderVersion string            `json:"provider_version"`
	ResourceID      string            `json:"resource_id"`
	ResourceName    string            `json:"resource_name"`
	StackName       string            `json:"stack_name"`
	AppID           string            `json:"app_id"`
	DatastoreType   string            `json:"datastore_type"`
	FailureMode     string            `json:"failure_mode"`
	Credentials     CredentialRef     `json:"credentials"`
	CreatedAt       string            `json:"created_at"`
	Fingerprint     string            `json:"fingerprint"`
	BundleHash      string            `json:"bundle_hash"`
	Files           map[string]string `json:"files"`
}

// CredentialRef records where the ingestion credentials come from. It never
// holds secret material.
type CredentialRef struct {
	Type       string `json:"type"`
	SecretName string `json:"secret_name,omitempty"`
}

// deterministicFiles serializes a map[string]string with sorted keys.
type deterministicFiles struct {
	m map[string]string
}

func (d deterministicFiles) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(d.m))
	for k := range d.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		valBytes, err := json.Marshal(d.m[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyBytes...)
		buf = append(buf, ':')
		buf = append(buf, valBytes...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// marshalProxy mirrors Manifest with Files replaced by the sorted wrapper;
// struct fields keep declaration order.
type marshalProxy struct {
	SchemaVersion   int                `json:"schema_version"`
	ProviderVersion string             `json:"provider_version"`
	ResourceID      string             `json:"resource_id"`
	ResourceName    string             `json:"resource_name"`
	StackName       string             `json:"stack_name"`
	AppID           string             `json:"app_id"`
	DatastoreType   string             `json:"datastore_type"`
	FailureMode     string             `json:"failure_mode"`
	Credentials     CredentialRef      `json:"credentials"`
	CreatedAt       string             `json:"created_at"`
	Fingerprint     string             `json:"fingerprint"`
	BundleHash      string             `json:"bundle_hash"`
	Files           deterministicFiles `json:"files"`
}

// Marshal serializes a Manifest to deterministic, indented JSON.
func Marshal(m *Manifest) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("manifest: cannot marshal nil manifest")
	}

	proxy := marshalProxy{
		SchemaVersion:   m.SchemaVersion,
		ProviderVersion: m.ProviderVersion,
		ResourceID:      m.ResourceID,
		ResourceName:    m.ResourceName,
		StackName:       m.StackName,
		AppID:           m.AppID,
		DatastoreType:   m.DatastoreType,
		FailureMode:     m.FailureMode,
		Credentials:     m.Credentials,
		CreatedAt:       m.CreatedAt,
		Fingerprint:     m.Fingerprint,
		BundleHash:      m.BundleHash,
		Files:           deterministicFiles{m: m.Files},
	}

	return json.MarshalIndent(proxy, "", "  ")
}

// Unmarshal deserializes JSON bytes into a Manifest.
func Unmarshal(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: unmarshal failed: %w", err)
	}
	if m.SchemaVersion == 0 {
		return nil, fmt.Errorf("manifest: missing schema_version")
	}
	return &m, nil
}
