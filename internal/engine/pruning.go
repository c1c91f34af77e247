package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/blueprintio/terraform-provider-blueprint/internal/eventid"
	"github.com/blueprintio/terraform-provider-blueprint/internal/target"
)

// PruneLedger removes event ledger entries beyond the retention limit.
//
// Each entry holds the event ID of one ingestion request. Entries are
// ordered by the event ID timestamp (oldest first) and the newest retain
// entries are kept. Entries that do not hold a parseable event ID are left
// in place. Returns the request IDs that were pruned.
func (e *Engine) PruneLedger(ctx context.Context, tgt target.Target, bundleKey string, retain int) (pruned []string, err error) {
	prefix := EventsPrefix(bundleKey)
	keys, err := tgt.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("engine: list ledger: %w", err)
	}
	if len(keys) <= retain {
		return nil, nil
	}

	type entryWithTime struct {
		key string
		ts  int64
	}

	entries := make([]entryWithTime, 0, len(keys))
	for _, key := range keys {
		data, err := tgt.Get(ctx, key)
		if err != nil {
			if errors.Is(err, target.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("engine: read ledger entry %q: %w", key, err)
		}
		t, err := eventid.Parse(strings.TrimSpace(string(data)))
		if err != nil {
			continue
		}
		entries = append(entries, entryWithTime{key: key, ts: t.UnixNano()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ts < entries[j].ts
	})

	pruneCount := len(entries) - retain
	if pruneCount <= 0 {
		return nil, nil
	}

	toDelete := make([]string, 0, pruneCount)
	for _, en := range entries[:pruneCount] {
		toDelete = append(toDelete, en.key)
		pruned = append(pruned, strings.TrimPrefix(en.key, prefix))
	}

	if err := e.deleteObjects(ctx, tgt, toDelete); err != nil {
		return nil, fmt.Errorf("engine: prune ledger: %w", err)
	}
	return pruned, nil
}
