// Package engine stages binding bundles in a storage target between plan
// and apply. A bundle lives under {stackName}/{resourceId}/ and is complete
// only once its manifest.json exists: Stage writes the manifest last and
// Remove deletes it first. The event ledger shares the bundle prefix.
package engine

import (
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/blueprintio/terraform-provider-blueprint/internal/bundle"
	"github.com/blueprintio/terraform-provider-blueprint/internal/manifest"
)

// ErrNotStaged is returned by Load when no committed bundle exists at the
// key.
var ErrNotStaged = errors.New("bundle not staged")

// CorruptError reports a staged bundle whose contents disagree with its
// manifest.
type CorruptError struct {
	Key    string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("staged bundle %q is corrupt: %s", e.Key, e.Reason)
}

// Engine stages, loads and removes bundles. It uses a weighted semaphore to
// bound concurrency across parallel object operations.
type Engine struct {
	sem *semaphore.Weighted
}

// New creates a new Engine with the given concurrency semaphore.
func New(sem *semaphore.Weighted) *Engine {
	return &Engine{sem: sem}
}

// StageInput carries a bundle and its manifest. Stage fills in the
// manifest's file hashes and bundle hash.
type StageInput struct {
	Key      string
	Bundle   *bundle.Bundle
	Manifest *manifest.Manifest
}

// StageResult holds the outcome of staging a bundle.
type StageResult struct {
	TargetName   string
	Key          string
	BundleHash   string
	ManifestJSON []byte
}

// Staged is a verified bundle read back from a target.
type Staged struct {
	Key      string
	Manifest *manifest.Manifest
	Files    map[string][]byte
}

// Key returns the bundle prefix for a binding.
func Key(stackName, resourceID string) string {
	return stackName + "/" + resourceID + "/"
}

// EventsPrefix returns the ledger prefix inside a bundle.
func EventsPrefix(bundleKey string) string {
	return bundleKey + "events/"
}

// LedgerKey returns the ledger entry key for a request.
func LedgerKey(bundleKey, requestID string) string {
	return EventsPrefix(bundleKey) + requestID
}
