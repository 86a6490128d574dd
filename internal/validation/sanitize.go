package validation

import (
	"regexp"
	"strings"
)

var (
	brTags   = regexp.MustCompile(`(?i)<\s*br[/\s]*>`)
	htmlTags = regexp.MustCompile(`<([^>]+)>`)
)

// SanitizeChat strips all markup from a chat message except line breaks.
// <br> variants are first normalized to newlines so they survive the tag
// sweep, runs of blank lines collapse to one, and the remaining newlines
// are restored as the canonical "<br />".
func SanitizeChat(s string) string {
	s = brTags.ReplaceAllString(s, "\n")
	s = htmlTags.ReplaceAllString(s, "")
	for strings.Contains(s, "\n\n") {
		s = strings.ReplaceAll(s, "\n\n", "\n")
	}
	return strings.ReplaceAll(s, "\n", "<br />")
}
