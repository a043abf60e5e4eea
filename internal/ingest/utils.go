package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
)

// AllowedExt checks if a path or extension is an accepted document type.
func AllowedExt(path string) bool {
	return constants.IsAllowedExt(filepath.Ext(path))
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return base != "." && base != ".." && strings.HasPrefix(base, ".")
}
