package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"strings"
	"testing"
)

func TestComputeFileHashBytes(t *testing.T) {
	data := []byte("deterministic test input")
	hash1 := ComputeFileHashBytes(data)
	hash2 := ComputeFileHashBytes(data)

	if !strings.HasPrefix(hash1, "sha256:") {
		t.Fatalf("hash %q does not start with 'sha256:'", hash1)
	}
	if hash1 != hash2 {
		t.Errorf("ComputeFileHashBytes not deterministic: %q != %q", hash1, hash2)
	}

	h := sha256.Sum256(data)
	expected := "sha256:" + hex.EncodeToString(h[:])
	if hash1 != expected {
		t.Errorf("ComputeFileHashBytes = %q, want %q", hash1, expected)
	}
}

func TestComputeBundleHash(t *testing.T) {
	files := map[string]string{
		"a.txt": "sha256:abc123",
		"b.txt": "sha256:def456",
	}

	hash := ComputeBundleHash(files)
	if !strings.HasPrefix(hash, "sha256:") {
		t.Fatalf("bundle hash %q does not start with 'sha256:'", hash)
	}

	// Sorted keys: "a.txt", "b.txt"
	hh := sha256.New()
	hh.Write([]byte("a.txt\x00abc123\n"))
	hh.Write([]byte("b.txt\x00def456\n"))
	expected := "sha256:" + hex.EncodeToString(hh.Sum(nil))
	if hash != expected {
		t.Errorf("ComputeBundleHash = %q, want %q", hash, expected)
	}
}

func TestComputeBundleHashDeterministic(t *testing.T) {
	files := map[string]string{
		"z/file.json": "sha256:aaa",
		"a/file.json": "sha256:bbb",
		"m/file.yaml": "sha256:ccc",
		"snapshot":    "sha256:ddd",
	}

	h1 := ComputeBundleHash(files)
	for i := 0; i < 100; i++ {
		if ComputeBundleHash(files) != h1 {
			t.Fatalf("iteration %d: hash changed", i)
		}
	}
}

func TestNew(t *testing.T) {
	src := map[string][]byte{
		SnapshotFile:  []byte(`{"action":"UPSERT"}`),
		"schema.yaml": []byte("entity: User\n"),
	}

	b, err := New(src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, want := b.Paths(), []string{"schema.yaml", SnapshotFile}; !reflect.DeepEqual(got, want) {
		t.Errorf("Paths = %v, want %v", got, want)
	}
	if b.FileHashes[SnapshotFile] != ComputeFileHashBytes(src[SnapshotFile]) {
		t.Errorf("snapshot hash = %q", b.FileHashes[SnapshotFile])
	}
	if b.BundleHash != ComputeBundleHash(b.FileHashes) {
		t.Errorf("BundleHash = %q, want hash of file hashes", b.BundleHash)
	}

	// The bundle owns its bytes.
	src[SnapshotFile][0] = 'X'
	if b.Files[SnapshotFile][0] != '{' {
		t.Error("New did not copy file contents")
	}
}

func TestNewSensitiveToContent(t *testing.T) {
	a, _ := New(map[string][]byte{SnapshotFile: []byte(`{"a":1}`)})
	b, _ := New(map[string][]byte{SnapshotFile: []byte(`{"a":2}`)})
	if a.BundleHash == b.BundleHash {
		t.Error("different contents produced the same bundle hash")
	}
}

func TestNewRejectsBadPaths(t *testing.T) {
	for _, p := range []string{"", ManifestFile, "/abs.json", "../escape.json", "a//b.json", "./x.json"} {
		if _, err := New(map[string][]byte{p: []byte("x")}); err == nil {
			t.Errorf("New with path %q: expected error", p)
		}
	}
}

func TestContentTypeForFile(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"snapshot.json", "application/json"},
		{"schema.yaml", "application/x-yaml"},
		{"schema.yml", "application/x-yaml"},
		{"notes.txt", "text/plain; charset=utf-8"},
		{"README.md", "text/markdown; charset=utf-8"},
		{"data.unknown", "application/octet-stream"},
		{"noext", "application/octet-stream"},
		{"SNAPSHOT.JSON", "application/json"},
	}

	for _, tc := range cases {
		if got := ContentTypeForFile(tc.filename); got != tc.want {
			t.Errorf("ContentTypeForFile(%q) = %q, want %q", tc.filename, got, tc.want)
		}
	}
}
