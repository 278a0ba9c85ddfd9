package fix

import (
	"errors"
	"fmt"
	"sort"

	"fieldfix/internal/diag"
)

var (
	// ErrConflict marks an edit that overlaps an edit accepted before it.
	ErrConflict = errors.New("edit overlaps a previously accepted edit")
	// ErrOutOfRange marks an edit whose span lies outside the buffer.
	ErrOutOfRange = errors.New("edit span out of range")
	// ErrGuardMismatch marks an edit whose OldText does not match the buffer.
	ErrGuardMismatch = errors.New("existing text does not match expected content")
)

// SkippedEdit captures an edit that was not applied together with the reason.
type SkippedEdit struct {
	Edit   diag.TextEdit
	Reason error
}

func (s SkippedEdit) Error() string {
	return fmt.Sprintf("edit %s: %v", s.Edit.Span, s.Reason)
}

// SpliceResult is the outcome of splicing edits into one buffer.
type SpliceResult struct {
	Content []byte
	Applied int
	Skipped []SkippedEdit
}

// Changed reports whether at least one edit altered the buffer.
func (r SpliceResult) Changed() bool {
	return r.Applied > 0
}

// Splice applies edits to content and returns a new buffer; content is not
// modified. Edits are accepted in the order given: an edit that overlaps one
// accepted earlier, lies outside the buffer or fails its OldText guard is
// skipped. Accepted edits are applied from the highest offset down so every
// span keeps referring to the original bytes.
func Splice(content []byte, edits []diag.TextEdit) SpliceResult {
	result := SpliceResult{Skipped: make([]SkippedEdit, 0)}

	accepted := make([]diag.TextEdit, 0, len(edits))
	for _, edit := range edits {
		if reason := check(content, accepted, edit); reason != nil {
			result.Skipped = append(result.Skipped, SkippedEdit{Edit: edit, Reason: reason})
			continue
		}
		accepted = append(accepted, edit)
	}

	if len(accepted) == 0 {
		result.Content = append([]byte(nil), content...)
		return result
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].Span.Start == accepted[j].Span.Start {
			return accepted[i].Span.End > accepted[j].Span.End
		}
		return accepted[i].Span.Start > accepted[j].Span.Start
	})

	size := len(content)
	for _, e := range accepted {
		size += len(e.NewText) - int(e.Span.Len())
	}
	working := append(make([]byte, 0, size), content...)
	for _, e := range accepted {
		start, end := int(e.Span.Start), int(e.Span.End)
		suffix := append([]byte(nil), working[end:]...)
		working = append(append(working[:start], e.NewText...), suffix...)
	}

	result.Content = working
	result.Applied = len(accepted)
	return result
}

func check(content []byte, accepted []diag.TextEdit, edit diag.TextEdit) error {
	start, end := int(edit.Span.Start), int(edit.Span.End)
	if end < start || end > len(content) {
		return ErrOutOfRange
	}
	for _, prev := range accepted {
		if prev.Span.Overlaps(edit.Span) || (prev.Span.Empty() && edit.Span.Empty() && prev.Span.Start == edit.Span.Start) {
			return ErrConflict
		}
	}
	if edit.OldText != "" && string(content[start:end]) != edit.OldText {
		return ErrGuardMismatch
	}
	return nil
}

// DiagnosticFor converts a skipped edit into a diagnostic attributed to rule.
func DiagnosticFor(rule string, s SkippedEdit) diag.Diagnostic {
	code := diag.ScanEditConflict
	if errors.Is(s.Reason, ErrGuardMismatch) || errors.Is(s.Reason, ErrOutOfRange) {
		code = diag.ScanEditGuardFailure
	}
	return diag.Diagnostic{
		Severity: diag.SevWarning,
		Code:     code,
		Message:  s.Reason.Error(),
		Primary:  s.Edit.Span,
		Rule:     rule,
	}
}
