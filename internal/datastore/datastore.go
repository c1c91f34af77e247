// Package datastore defines the metadata record that snapshots carry for a
// bound data store, and the extractor capability each data store kind
// implements.
package datastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/blueprintio/terraform-provider-blueprint/internal/identity"
)

// ErrMetadataExtraction is matched by every error an Extractor returns.
var ErrMetadataExtraction = errors.New("metadata extraction failed")

// Metadata is the flat, immutable description of a data store resource.
// Implementations must serialize with a "type" discriminator.
type Metadata interface {
	DataStoreType() string
	ResourceARN() identity.Value
}

// Extractor derives Metadata from a resource descriptor of type R. It must
// be deterministic and free of side effects.
type Extractor[R any] interface {
	Extract(resource R) (Metadata, error)
}

var (
	mu       sync.RWMutex
	decoders = map[string]func(json.RawMessage) (Metadata, error){}
)

// Register makes a metadata decoder available for a data store type.
// It is intended to be called from init functions.
func Register(dataStoreType string, decode func(json.RawMessage) (Metadata, error)) {
	mu.Lock()
	defer mu.Unlock()
	if decode == nil {
		panic("datastore: Register decoder is nil")
	}
	if _, dup := decoders[dataStoreType]; dup {
		panic("datastore: Register called twice for " + dataStoreType)
	}
	decoders[dataStoreType] = decode
}

// Types returns the registered data store types, sorted.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(decoders))
	for t := range decoders {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Decode reads a serialized Metadata record using the decoder registered
// for its "type" field.
func Decode(data json.RawMessage) (Metadata, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding data store metadata: %w", err)
	}

	mu.RLock()
	decode, ok := decoders[head.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoding data store metadata: unknown type %q", head.Type)
	}
	return decode(data)
}
