package testkit

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"fieldfix/internal/diag"
	"fieldfix/internal/rewrite"
	"fieldfix/internal/scan"
)

// CheckFragmentInvariants runs the structural checks every scan result must
// pass:
// 1) each fragment lies within text and its parts are ordered
// 2) the prefix, delimiters and suffix sit where the shape says
// 3) fragments are sorted and do not overlap
func CheckFragmentInvariants(text string, shape scan.Shape, frags []scan.Fragment) error {
	prevEnd := 0
	for i, f := range frags {
		if f.Start < prevEnd {
			return fmt.Errorf("fragment %d starts at %d inside previous fragment ending at %d", i, f.Start, prevEnd)
		}
		if !(f.Start < f.BodyStart && f.BodyStart <= f.BodyEnd && f.BodyEnd < f.End && f.End <= len(text)) {
			return fmt.Errorf("fragment %d has disordered offsets %d/%d/%d/%d (len %d)", i, f.Start, f.BodyStart, f.BodyEnd, f.End, len(text))
		}
		if !strings.HasPrefix(text[f.Start:], shape.Prefix) {
			return fmt.Errorf("fragment %d at %d does not start with %q", i, f.Start, shape.Prefix)
		}
		if text[f.BodyStart-1] != shape.Open || text[f.BodyEnd] != shape.Close {
			return fmt.Errorf("fragment %d body is not wrapped in %c%c", i, shape.Open, shape.Close)
		}
		if text[f.BodyEnd+1:f.End] != shape.Suffix {
			return fmt.Errorf("fragment %d ends with %q, want %q", i, text[f.BodyEnd+1:f.End], shape.Suffix)
		}
		if f.Text() != text[f.Start:f.End] || f.PrefixText()+f.Body()+f.SuffixText() != f.Text() {
			return fmt.Errorf("fragment %d does not reconstruct its span", i)
		}
		prevEnd = f.End
	}
	return nil
}

// CheckEdits verifies that edits stay inside a text of size n and do not
// overlap.
func CheckEdits(edits []diag.TextEdit, n int) error {
	size, err := safecast.Conv[uint32](n)
	if err != nil {
		return fmt.Errorf("text size overflow: %w", err)
	}
	var prevEnd uint32
	for i, e := range edits {
		if e.Span.End < e.Span.Start || e.Span.End > size {
			return fmt.Errorf("edit %d span %d..%d outside text of %d bytes", i, e.Span.Start, e.Span.End, size)
		}
		if i > 0 && e.Span.Start < prevEnd {
			return fmt.Errorf("edit %d overlaps previous edit", i)
		}
		prevEnd = e.Span.End
	}
	return nil
}

// CheckRewriteInvariants applies r twice and checks:
// 1) the second application changes nothing
// 2) every fragment of the result satisfies the rule marker
// 3) the edits of the first application are in bounds
func CheckRewriteInvariants(r *rewrite.Rule, text string) error {
	first, err := r.Apply(0, text)
	if err != nil {
		return fmt.Errorf("first apply: %w", err)
	}
	if err := CheckEdits(first.Edits, len(text)); err != nil {
		return err
	}
	second, err := r.Apply(0, first.Text)
	if err != nil {
		return fmt.Errorf("second apply: %w", err)
	}
	if second.Modified != 0 || second.Text != first.Text {
		return fmt.Errorf("rule %s is not idempotent: %d fragments modified again", r.Name(), second.Modified)
	}
	if !first.Changed() && first.Text != text {
		return fmt.Errorf("rule %s reported no change but rewrote the text", r.Name())
	}
	checker := rewrite.NewChecker(r.Spec().Marker)
	sc, err := scan.New(r.Spec().Shape)
	if err != nil {
		return err
	}
	frags, _ := sc.Collect(first.Text)
	for i, f := range frags {
		if !checker.Satisfied(f.Body()) {
			return fmt.Errorf("fragment %d still misses %q after rewrite", i, r.Spec().Marker)
		}
	}
	return nil
}
