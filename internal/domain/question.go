package domain

import "strings"

// Question is a scripted clarification question keyed by (intent, sub-status,
// 1-based sequence position). Reference data owned by the search collaborator.
type Question struct {
	Intent    Intent
	SubStatus SubStatus
	Sequence  int
	Text      string
}

// NormalizeQuestion canonicalizes question text for duplicate detection:
// trim, lower-case, strip the trailing question mark.
func NormalizeQuestion(text string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(text)), "?")
}
