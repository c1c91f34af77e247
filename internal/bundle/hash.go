package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

const hashPrefix = "sha256:"

// ComputeFileHashBytes computes the SHA-256 hash of an in-memory byte slice
// and returns it in the canonical format "sha256:<hex>".
func ComputeFileHashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hashPrefix + hex.EncodeToString(h[:])
}

// ComputeBundleHash computes a deterministic SHA-256 hash over a set of
// file hashes.
//
// It takes a map of relpath -> "sha256:<hex>", sorts the keys
// lexicographically, builds entry strings "<relpath>\0<hex>\n", and hashes
// the concatenation. Returns "sha256:<hex>".
func ComputeBundleHash(files map[string]string) string {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		hexPart := strings.TrimPrefix(files[k], hashPrefix)
		h.Write([]byte(k + "\x00" + hexPart + "\n"))
	}

	return hashPrefix + hex.EncodeToString(h.Sum(nil))
}
