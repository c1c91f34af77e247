package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blueprintio/terraform-provider-blueprint/internal/bundle"
	"github.com/blueprintio/terraform-provider-blueprint/internal/manifest"
	"github.com/blueprintio/terraform-provider-blueprint/internal/target"
)

// Load reads the committed bundle at key and verifies every file against
// the manifest. It returns ErrNotStaged when the manifest is missing and a
// *CorruptError when a file is missing or its hash disagrees.
func (e *Engine) Load(ctx context.Context, tgt target.Target, key string) (*Staged, error) {
	data, err := tgt.Get(ctx, key+bundle.ManifestFile)
	if err != nil {
		if errors.Is(err, target.ErrNotFound) {
			return nil, fmt.Errorf("engine: load %q: %w", key, ErrNotStaged)
		}
		return nil, fmt.Errorf("engine: read manifest: %w", err)
	}

	m, err := manifest.Unmarshal(data)
	if err != nil {
		return nil, &CorruptError{Key: key, Reason: err.Error()}
	}

	files, err := e.readFiles(ctx, tgt, key, m)
	if err != nil {
		return nil, err
	}

	hashes := make(map[string]string, len(files))
	for relPath, content := range files {
		got := bundle.ComputeFileHashBytes(content)
		if got != m.Files[relPath] {
			return nil, &CorruptError{Key: key, Reason: fmt.Sprintf("%s hash %s, manifest says %s", relPath, got, m.Files[relPath])}
		}
		hashes[relPath] = got
	}
	if got := bundle.ComputeBundleHash(hashes); got != m.BundleHash {
		return nil, &CorruptError{Key: key, Reason: fmt.Sprintf("bundle hash %s, manifest says %s", got, m.BundleHash)}
	}

	return &Staged{Key: key, Manifest: m, Files: files}, nil
}

// readFiles fetches every file named in the manifest in parallel.
func (e *Engine) readFiles(ctx context.Context, tgt target.Target, key string, m *manifest.Manifest) (map[string][]byte, error) {
	var (
		mu    sync.Mutex
		files = make(map[string][]byte, len(m.Files))
	)

	g, gctx := errgroup.WithContext(ctx)
	for relPath := range m.Files {
		relPath := relPath
		g.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer e.sem.Release(1)

			content, err := tgt.Get(gctx, key+relPath)
			if err != nil {
				if errors.Is(err, target.ErrNotFound) {
					return &CorruptError{Key: key, Reason: fmt.Sprintf("missing file %s", relPath)}
				}
				return fmt.Errorf("engine: read %q: %w", relPath, err)
			}

			mu.Lock()
			files[relPath] = content
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
