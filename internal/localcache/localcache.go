// Package localcache stores LOCAL snapshots where the code-generation tool
// reads them:
//
//	{root}/{provider}/{accountId}/{region}/{stackName}/{datastoreType}/{resourceId}.json
//
// Each file holds exactly one pretty-printed snapshot and is replaced
// atomically on every write.
package localcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/blueprintio/terraform-provider-blueprint/internal/snapshot"
	"github.com/blueprintio/terraform-provider-blueprint/internal/target"
)

// DefaultDir is the cache root used when none is configured.
const DefaultDir = ".blueprint/cache"

// UnknownSegment replaces a path segment whose value is not known.
const UnknownSegment = "unknown"

// Scope names the directory one binding's snapshots live in.
type Scope struct {
	Provider      string
	AccountID     string
	Region        string
	StackName     string
	DatastoreType string
}

func (s Scope) segments() []string {
	segs := []string{s.Provider, s.AccountID, s.Region, s.StackName, s.DatastoreType}
	for i, seg := range segs {
		if seg == "" {
			segs[i] = UnknownSegment
		}
	}
	return segs
}

// ScopeOf returns the scope a snapshot is stored under.
func ScopeOf(s *snapshot.Snapshot) Scope {
	return Scope{
		Provider:      s.Provider,
		AccountID:     s.AccountID,
		Region:        s.Region,
		StackName:     s.StackName,
		DatastoreType: s.DatastoreType,
	}
}

// Cache is a LOCAL snapshot store rooted at a directory.
type Cache struct {
	root  string
	store target.Target
}

// New returns a Cache rooted at dir.
func New(dir string) (*Cache, error) {
	if dir == "" {
		dir = DefaultDir
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("localcache: resolve %q: %w", dir, err)
	}
	store, err := target.NewLocalTarget("local-cache", root)
	if err != nil {
		return nil, fmt.Errorf("localcache: %w", err)
	}
	return &Cache{root: root, store: store}, nil
}

// Root returns the absolute cache root.
func (c *Cache) Root() string {
	return c.root
}

// Dir returns the directory holding snapshots for scope.
func (c *Cache) Dir(scope Scope) string {
	return filepath.Join(append([]string{c.root}, scope.segments()...)...)
}

// Path returns the file a snapshot with resourceID is stored at.
func (c *Cache) Path(scope Scope, resourceID string) string {
	return filepath.Join(c.Dir(scope), resourceID+".json")
}

func (c *Cache) key(scope Scope, resourceID string) string {
	return path.Join(append(scope.segments(), resourceID+".json")...)
}

// Write stores s, replacing any previous snapshot at the same path, and
// returns the file path.
func (c *Cache) Write(ctx context.Context, s *snapshot.Snapshot) (string, error) {
	if s.ResourceID == "" {
		return "", errors.New("localcache: snapshot has no resource id")
	}
	data, err := snapshot.Encode(s)
	if err != nil {
		return "", err
	}

	scope := ScopeOf(s)
	if err := c.store.Put(ctx, c.key(scope, s.ResourceID), data, target.PutOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("localcache: write %s: %w", s.ResourceID, err)
	}
	return c.Path(scope, s.ResourceID), nil
}

// Read loads the snapshot stored at path.
func Read(path string) (*snapshot.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("localcache: %w", err)
	}
	return snapshot.Decode(data)
}

// Entry summarizes one cached snapshot.
type Entry struct {
	Path          string
	ResourceID    string
	ResourceName  string
	Action        snapshot.Action
	AppID         string
	EntityName    string
	StackName     string
	DatastoreType string
	CapturedAt    string
}

// List returns the snapshots whose path relative to the cache root matches
// the doublestar pattern, sorted by path. An empty pattern matches every
// snapshot. Files that do not decode as snapshots are skipped.
func (c *Cache) List(pattern string) ([]Entry, error) {
	if pattern == "" {
		pattern = "**/*.json"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("localcache: invalid pattern %q", pattern)
	}

	var entries []Entry
	err := filepath.WalkDir(c.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == c.root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			return err
		}
		if matched, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); !matched {
			return nil
		}

		s, err := Read(p)
		if err != nil || s.ResourceID == "" {
			return nil
		}
		entries = append(entries, Entry{
			Path:          p,
			ResourceID:    s.ResourceID,
			ResourceName:  s.ResourceName,
			Action:        s.Action,
			AppID:         s.AppID,
			EntityName:    s.Identity.EntityName,
			StackName:     s.StackName,
			DatastoreType: s.DatastoreType,
			CapturedAt:    s.CapturedAt,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("localcache: walk %s: %w", c.root, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
