package fix

import (
	"fieldfix/internal/diag"
	"fieldfix/internal/source"
)

// ReplaceSpan builds an edit replacing span with text. guard, when non-empty,
// must equal the current text under span for the edit to apply.
func ReplaceSpan(span source.Span, text, guard string) diag.TextEdit {
	return diag.TextEdit{Span: span, NewText: text, OldText: guard}
}
