// Package bundle assembles the deploy-time asset bundle of a binding: the
// LOCAL snapshot plus whatever else the ingestion step reads at apply time.
// Every file is hashed so a staged copy can be verified before use.
package bundle

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Well-known bundle file names.
const (
	SnapshotFile = "snapshot.json"
	ManifestFile = "manifest.json"
)

// Bundle is an in-memory set of files keyed by slash-separated relative
// path, with their individual hashes and the overall bundle hash.
type Bundle struct {
	Files      map[string][]byte
	FileHashes map[string]string // relpath -> "sha256:<hex>"
	BundleHash string            // "sha256:<hex>"
}

// New hashes files and returns the populated Bundle. Paths must be
// relative and must not name the manifest, which is written separately.
func New(files map[string][]byte) (*Bundle, error) {
	fileHashes := make(map[string]string, len(files))
	copied := make(map[string][]byte, len(files))

	for relPath, data := range files {
		if err := validPath(relPath); err != nil {
			return nil, err
		}
		copied[relPath] = append([]byte(nil), data...)
		fileHashes[relPath] = ComputeFileHashBytes(data)
	}

	return &Bundle{
		Files:      copied,
		FileHashes: fileHashes,
		BundleHash: ComputeBundleHash(fileHashes),
	}, nil
}

// Paths returns the bundle's relative paths in sorted order.
func (b *Bundle) Paths() []string {
	keys := make([]string, 0, len(b.Files))
	for k := range b.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validPath(relPath string) error {
	switch {
	case relPath == "":
		return fmt.Errorf("bundle: empty file path")
	case relPath == ManifestFile:
		return fmt.Errorf("bundle: %q is reserved", ManifestFile)
	case strings.HasPrefix(relPath, "/"):
		return fmt.Errorf("bundle: path %q must be relative", relPath)
	case path.Clean(relPath) != relPath || strings.HasPrefix(relPath, ".."):
		return fmt.Errorf("bundle: path %q is not clean", relPath)
	}
	return nil
}
