package diag

import (
	"fieldfix/internal/source"
)

// TextEdit replaces the bytes covered by Span with NewText.
// A non-empty OldText is a guard: the edit only applies when the current
// text under Span equals it.
type TextEdit struct {
	Span    source.Span
	NewText string
	OldText string
}

// Diagnostic is one reportable finding attached to a file position.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Span
	// Rule names the rewrite rule or patch that produced the finding, if any.
	Rule string
}
