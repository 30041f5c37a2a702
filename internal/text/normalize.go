package text

import (
	"regexp"
	"strings"
)

var (
	controlRe       = regexp.MustCompile(`[\r\f\t]`)
	softHyphenRe    = regexp.MustCompile(`(\p{L})(?:-\s+)+`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)
)

// Normalize cleans text extracted from PDF or plain-text files before chunking.
// It rejoins words hyphenated across a line break ("gesta-\ntion", "gesta- tion"),
// folds paragraph and line breaks into spaces and collapses whitespace runs.
// Normalize is pure and idempotent; empty input yields "".
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	s := strings.ReplaceAll(raw, "\u00a0", " ")
	s = controlRe.ReplaceAllString(s, " ")

	// Only a hyphen that follows a letter is a soft break, so "11 - 12" survives.
	// Consecutive breaks fold in one pass.
	s = softHyphenRe.ReplaceAllString(s, "$1")

	// Paragraph breaks and single newlines both end up as one space.
	s = whitespaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
