package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/finance-intake/constants"
)

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

// allowed reports whether a watched path should be submitted.
func allowed(path string) bool {
	return !IsHidden(path) && constants.IsAllowedExt(filepath.Ext(path))
}
