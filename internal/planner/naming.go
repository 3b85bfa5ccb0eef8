package planner

import (
	"regexp"
	"strings"
)

// DefaultMaxNameLength bounds normalized file names when no explicit
// limit is configured.
const DefaultMaxNameLength = 150

// DefaultExt is used when the source did not report an extension.
const DefaultExt = "pdf"

var (
	illegalChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// SafeFileName normalizes a title into a destination-safe file name.
// Characters that are illegal on common filesystems and cloud providers
// are replaced with underscores, runs of whitespace collapse to a single
// space, surrounding whitespace is trimmed, and the result is truncated
// to maxLength with any trailing space removed.
//
// Normalization is deterministic: identical inputs always yield
// identical names.
func SafeFileName(name string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxNameLength
	}

	s := illegalChars.ReplaceAllString(name, "_")
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxLength {
		s = strings.TrimRight(string(r[:maxLength]), " ")
	}
	return s
}
