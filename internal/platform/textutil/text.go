package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
)

var strictPolicy = bluemonday.StrictPolicy()

// FoldKey returns the case-folded form of s used for case-insensitive comparisons and indexes.
func FoldKey(s string) string {
	// Casers carry state and must not be shared between goroutines.
	return cases.Fold().String(strings.TrimSpace(s))
}

// EqualFold reports whether a and b are equal under Unicode case folding.
func EqualFold(a, b string) bool {
	return FoldKey(a) == FoldKey(b)
}

// ContainsFold reports whether fragment occurs in s under Unicode case folding.
func ContainsFold(s, fragment string) bool {
	return strings.Contains(FoldKey(s), FoldKey(fragment))
}

// PlainText strips markup from user supplied text and collapses surrounding whitespace.
func PlainText(s string) string {
	cleaned := strictPolicy.Sanitize(s)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
