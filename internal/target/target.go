// Package target stores binding bundles between plan and apply. Backends
// exist for the local filesystem, S3, Azure Blob Storage, GCS and memory.
package target

import (
	"context"
	"errors"
)

// Sentinel errors for target operations.
var (
	ErrNotFound = errors.New("object not found")
	ErrExists   = errors.New("object already exists")
)

// PutOptions controls optional behavior for Put and PutIfAbsent.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Target is the storage abstraction for staged bundles and event ledgers.
// Keys are forward-slash separated and relative to the backend's prefix.
type Target interface {
	// Put writes an object, replacing any existing one.
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
	// PutIfAbsent writes an object only if the key is free. Returns
	// ErrExists otherwise.
	PutIfAbsent(ctx context.Context, key string, data []byte, opts PutOptions) error
	// Get reads an object. Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether the key holds an object.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the sorted keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Name returns the target name for logging.
	Name() string
}

// Config holds the configuration used by NewTarget to construct a Target.
type Config struct {
	Name            string
	Type            string // "local", "s3", "azure", "gcs", "memory"
	Directory       string
	Bucket          string
	Region          string
	Prefix          string
	StorageAccount  string
	ContainerName   string
	KMSKeyID        string
	KMSKeyName      string
	EncryptionScope string
	MaxRetries      int
	RetryBackoff    string // "exponential" | "linear"
}

func normalizePrefix(prefix string) string {
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return prefix
}
