// Package version exposes the release version stamped into the binary.
package version

import (
	_ "embed"
	"strings"
)

// The VERSION file is the single source of truth for releases; tagging a
// release updates it.
//
//go:embed VERSION
var raw string

// Get returns the release version with surrounding whitespace removed.
func Get() string {
	return strings.TrimSpace(raw)
}
