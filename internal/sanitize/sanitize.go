// Package sanitize cleans user-supplied sigil names and descriptions before
// they reach the catalog. Descriptions are later surfaced to MCP clients, so
// markup that could read as instructions is stripped along with control
// characters.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxDescriptionLength is the maximum stored description length.
const MaxDescriptionLength = 500

// MaxNameLength is the maximum allowed length for sigil names.
const MaxNameLength = 64

var (
	// reXMLTag matches XML/HTML tags, including attributes, self-closing tags
	// and processing instructions.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reTripleBacktick  = regexp.MustCompile("```+")
	reWhitespaceRun   = regexp.MustCompile(`\s+`)

	reRepeatedHyphens     = regexp.MustCompile(`-{2,}`)
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// SanitizeDescription reduces a description to a single plain-text line.
//
// The pipeline runs in this order:
//  1. Strip ASCII control characters except newline and tab
//  2. Strip XML/HTML tags
//  3. Drop markdown heading markers
//  4. Collapse triple backticks to a single backtick
//  5. Fold whitespace runs (newlines included) to one space and trim
//  6. Truncate to MaxDescriptionLength
func SanitizeDescription(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = strings.TrimSpace(reWhitespaceRun.ReplaceAllString(s, " "))

	if len(s) > MaxDescriptionLength {
		s = s[:MaxDescriptionLength] + "..."
	}
	return s
}

// SanitizeSigilName keeps only [a-zA-Z0-9-_], collapses repeated hyphens
// and underscores, and truncates to MaxNameLength.
func SanitizeSigilName(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	s := b.String()

	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")

	if len(s) > MaxNameLength {
		s = s[:MaxNameLength]
	}
	return s
}

// stripControlChars removes ASCII control characters and DEL, keeping
// newline and tab.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 && r != '\n' && r != '\t') || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
