package bundle

import (
	"path/filepath"
	"strings"
)

// ContentTypeManifest is the content type for the manifest JSON file.
const ContentTypeManifest = "application/json"

var extensionMap = map[string]string{
	".json": "application/json",
	".yaml": "application/x-yaml",
	".yml":  "application/x-yaml",
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
}

// ContentTypeForFile returns the content type for a file based on its
// extension, or "application/octet-stream" when it is not recognized.
func ContentTypeForFile(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := extensionMap[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
