package engine

import (
	"context"
	"fmt"

	"github.com/blueprintio/terraform-provider-blueprint/internal/bundle"
	"github.com/blueprintio/terraform-provider-blueprint/internal/target"
)

// Remove deletes the bundle at key, including its event ledger. The
// manifest goes first so a partially removed bundle is never loadable.
func (e *Engine) Remove(ctx context.Context, tgt target.Target, key string) error {
	if err := tgt.Delete(ctx, key+bundle.ManifestFile); err != nil {
		return fmt.Errorf("engine: remove manifest: %w", err)
	}

	keys, err := tgt.List(ctx, key)
	if err != nil {
		return fmt.Errorf("engine: list %q: %w", key, err)
	}

	if err := e.deleteObjects(ctx, tgt, keys); err != nil {
		return fmt.Errorf("engine: remove %q: %w", key, err)
	}
	return nil
}
