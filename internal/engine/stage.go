package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/blueprintio/terraform-provider-blueprint/internal/bundle"
	"github.com/blueprintio/terraform-provider-blueprint/internal/manifest"
	"github.com/blueprintio/terraform-provider-blueprint/internal/target"
)

// Stage writes a bundle to the target.
//
// Steps:
//  1. Delete any existing manifest so a half-rewritten bundle never reads
//     as committed
//  2. Upload all bundle files in parallel
//  3. Build and upload manifest.json
//  4. Delete files left over from a previous bundle at the same key
func (e *Engine) Stage(ctx context.Context, tgt target.Target, in StageInput) (*StageResult, error) {
	if in.Bundle == nil || in.Manifest == nil {
		return nil, fmt.Errorf("engine: stage %q: bundle and manifest are required", in.Key)
	}

	manifestKey := in.Key + bundle.ManifestFile
	if err := tgt.Delete(ctx, manifestKey); err != nil {
		return nil, fmt.Errorf("engine: clear previous manifest: %w", err)
	}

	if err := e.uploadFiles(ctx, tgt, in); err != nil {
		return nil, fmt.Errorf("engine: upload files: %w", err)
	}

	m := *in.Manifest
	m.Files = in.Bundle.FileHashes
	m.BundleHash = in.Bundle.BundleHash

	manifestJSON, err := manifest.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("engine: marshal manifest: %w", err)
	}
	if err := tgt.Put(ctx, manifestKey, manifestJSON, target.PutOptions{
		ContentType: bundle.ContentTypeManifest,
	}); err != nil {
		return nil, fmt.Errorf("engine: put manifest: %w", err)
	}

	if err := e.removeStale(ctx, tgt, in); err != nil {
		return nil, fmt.Errorf("engine: remove stale files: %w", err)
	}

	return &StageResult{
		TargetName:   tgt.Name(),
		Key:          in.Key,
		BundleHash:   in.Bundle.BundleHash,
		ManifestJSON: manifestJSON,
	}, nil
}

// uploadFiles uploads all bundle files to the target in parallel, bounded
// by the engine's semaphore.
func (e *Engine) uploadFiles(ctx context.Context, tgt target.Target, in StageInput) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, relPath := range in.Bundle.Paths() {
		relPath := relPath
		g.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return fmt.Errorf("acquire semaphore for %q: %w", relPath, err)
			}
			defer e.sem.Release(1)

			key := in.Key + relPath
			if err := tgt.Put(gctx, key, in.Bundle.Files[relPath], target.PutOptions{
				ContentType: bundle.ContentTypeForFile(relPath),
			}); err != nil {
				return fmt.Errorf("put %q: %w", key, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// removeStale deletes objects under the bundle key that the new bundle no
// longer carries. The event ledger is left alone.
func (e *Engine) removeStale(ctx context.Context, tgt target.Target, in StageInput) error {
	keys, err := tgt.List(ctx, in.Key)
	if err != nil {
		return err
	}

	eventsPrefix := EventsPrefix(in.Key)
	var stale []string
	for _, key := range keys {
		rel := strings.TrimPrefix(key, in.Key)
		if rel == bundle.ManifestFile || strings.HasPrefix(key, eventsPrefix) {
			continue
		}
		if _, ok := in.Bundle.Files[rel]; !ok {
			stale = append(stale, key)
		}
	}

	return e.deleteObjects(ctx, tgt, stale)
}

// deleteObjects deletes keys in parallel, bounded by the semaphore.
func (e *Engine) deleteObjects(ctx context.Context, tgt target.Target, keys []string) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer e.sem.Release(1)

			if err := tgt.Delete(gctx, key); err != nil {
				return fmt.Errorf("delete %q: %w", key, err)
			}
			return nil
		})
	}

	return g.Wait()
}
