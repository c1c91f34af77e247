// Package resourceid allocates collision-free snapshot slot identifiers by
// probing a cache directory.
//
// The probe-then-write sequence is not locked. Two processes allocating ids
// for different identities that share a display name in the same directory
// at the same moment can both claim the same slot.
package resourceid

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blueprintio/terraform-provider-blueprint/internal/identity"
)

// Separator joins the parts of a resource id.
const Separator = "__"

// MaxProbes bounds the suffix search.
const MaxProbes = 10000

// Allocator resolves resource ids against the snapshots stored in Dir.
type Allocator struct {
	Dir string
}

// Candidate returns the id probed at the given suffix. Suffix 0 and 1 both
// map to the unsuffixed form; numbering starts at 2.
func Candidate(resourceName, entityName string, suffix int) string {
	base := resourceName + Separator + entityName
	if suffix < 2 {
		return base
	}
	return base + Separator + strconv.Itoa(suffix)
}

// Allocate returns the id whose slot is free or already holds a snapshot
// with the same identity. Unreadable or unidentified entries are never
// reused.
func (a Allocator) Allocate(resourceName, entityName string, id identity.StableIdentity) (string, error) {
	if resourceName == "" || entityName == "" {
		return "", fmt.Errorf("resourceid: resource name and entity name are required")
	}
	want := id.MatchKey()

	for suffix := 1; suffix <= MaxProbes; suffix++ {
		candidate := Candidate(resourceName, entityName, suffix)
		path := filepath.Join(a.Dir, candidate+".json")

		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			continue
		}
		if existing, ok := storedIdentity(data); ok && existing.MatchKey() == want {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("resourceid: no free slot for %s%s%s after %d probes", resourceName, Separator, entityName, MaxProbes)
}

// Reusable reports whether resourceID may be kept for id: its slot is free
// or already holds a snapshot with the same identity.
func (a Allocator) Reusable(resourceID string, id identity.StableIdentity) bool {
	if resourceID == "" || strings.ContainsAny(resourceID, `/\`) {
		return false
	}
	data, err := os.ReadFile(filepath.Join(a.Dir, resourceID+".json"))
	if os.IsNotExist(err) {
		return true
	}
	if err != nil {
		return false
	}
	existing, ok := storedIdentity(data)
	return ok && existing.MatchKey() == id.MatchKey()
}

// storedIdentity extracts the identity of a stored snapshot.
func storedIdentity(data []byte) (identity.StableIdentity, bool) {
	var doc struct {
		Identity *identity.StableIdentity `json:"identity"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc.Identity == nil {
		return identity.StableIdentity{}, false
	}
	if !doc.Identity.Valid() {
		return identity.StableIdentity{}, false
	}
	return *doc.Identity, true
}
