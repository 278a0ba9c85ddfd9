package rewrite

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"fieldfix/internal/diag"
	"fieldfix/internal/fix"
	"fieldfix/internal/scan"
	"fieldfix/internal/source"
)

// OutcomeKind classifies what happened to one prefix occurrence.
type OutcomeKind uint8

const (
	// Unchanged: the body already satisfied the checker.
	Unchanged OutcomeKind = iota
	// Modified: fields were injected.
	Modified
	// Unmatched: the prefix did not form a fragment.
	Unmatched
)

func (k OutcomeKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Modified:
		return "modified"
	case Unmatched:
		return "unmatched"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", k)
	}
}

// Outcome is the per-occurrence decision of a rule.
type Outcome struct {
	Kind     OutcomeKind
	Fragment scan.Fragment
	// Injection is set for Modified outcomes.
	Injection Injection
	// Err is set for Unmatched outcomes and wraps one of the scan errors.
	Err *scan.UnmatchedError
}

// Spec is the declarative description of a rule.
type Spec struct {
	Name       string
	Shape      scan.Shape
	Marker     string
	Fields     []FieldAssignment
	IndentUnit string
	Separator  string
}

// Rule = scanner + checker + injector for one shape.
type Rule struct {
	spec     Spec
	scanner  *scan.Scanner
	checker  Checker
	injector Injector
}

// NewRule validates spec and builds a rule from it.
func NewRule(spec Spec) (*Rule, error) {
	var errs []error
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, errors.New("rule name is empty"))
	}
	if len(spec.Fields) == 0 {
		errs = append(errs, errors.New("rule has no fields to inject"))
	}
	for i, f := range spec.Fields {
		if strings.TrimSpace(f.Name) == "" {
			errs = append(errs, fmt.Errorf("field %d has no name", i))
		}
	}
	// без маркера в инжектируемом тексте повторный прогон вставит поля снова
	if strings.TrimSpace(spec.Marker) == "" {
		errs = append(errs, errors.New("rule marker is empty"))
	} else if len(spec.Fields) > 0 && !markerInjected(spec) {
		errs = append(errs, fmt.Errorf("marker %q does not occur in any injected field", spec.Marker))
	}
	scanner, err := scan.New(spec.Shape)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("rule %q: %w", spec.Name, err)
	}
	return &Rule{
		spec:    spec,
		scanner: scanner,
		checker: NewChecker(spec.Marker),
		injector: Injector{
			Fields:      spec.Fields,
			Separator:   spec.Separator,
			IndentUnit:  spec.IndentUnit,
			Quotes:      spec.Shape.Quotes,
			LineComment: spec.Shape.LineComment,
		},
	}, nil
}

func markerInjected(spec Spec) bool {
	checker := NewChecker(spec.Marker)
	for _, f := range spec.Fields {
		if checker.Satisfied(f.String()) {
			return true
		}
	}
	return false
}

func (r *Rule) Name() string { return r.spec.Name }
func (r *Rule) Spec() Spec   { return r.spec }

// Outcomes classifies every prefix occurrence in text, left to right.
func (r *Rule) Outcomes(text string) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		for frag, err := range r.scanner.All(text) {
			var out Outcome
			switch {
			case err != nil:
				var ue *scan.UnmatchedError
				if !errors.As(err, &ue) {
					ue = &scan.UnmatchedError{Err: err}
				}
				out = Outcome{Kind: Unmatched, Err: ue}
			case r.checker.Satisfied(frag.Body()):
				out = Outcome{Kind: Unchanged, Fragment: frag}
			default:
				out = Outcome{Kind: Modified, Fragment: frag, Injection: r.injector.Inject(frag)}
			}
			if !yield(out) {
				return
			}
		}
	}
}

// Result summarises one rule applied to one text.
type Result struct {
	Text        string
	Modified    int
	Unchanged   int
	Unmatched   int
	Edits       []diag.TextEdit
	Diagnostics []diag.Diagnostic
}

// Changed reports whether the text differs from the input.
func (r Result) Changed() bool { return r.Modified > 0 }

// Apply rewrites text. Modified fragments become edits that are spliced back
// into the text; everything outside of them is preserved byte for byte.
// Unmatched occurrences and skipped edits are reported as diagnostics.
func (r *Rule) Apply(file source.FileID, text string) (Result, error) {
	res := Result{Text: text}
	for out := range r.Outcomes(text) {
		switch out.Kind {
		case Unchanged:
			res.Unchanged++
		case Unmatched:
			res.Unmatched++
			res.Diagnostics = append(res.Diagnostics, r.unmatchedDiagnostic(file, out.Err))
		case Modified:
			span, err := source.SpanOf(file, out.Fragment.Start, out.Fragment.End)
			if err != nil {
				return res, fmt.Errorf("rule %s: %w", r.spec.Name, err)
			}
			res.Edits = append(res.Edits, fix.ReplaceSpan(span, out.Injection.Text, out.Fragment.Text()))
		}
	}
	if len(res.Edits) == 0 {
		return res, nil
	}

	spliced := fix.Splice([]byte(text), res.Edits)
	for _, s := range spliced.Skipped {
		res.Diagnostics = append(res.Diagnostics, fix.DiagnosticFor(r.spec.Name, s))
	}
	res.Modified = spliced.Applied
	res.Text = string(spliced.Content)
	return res, nil
}

func (r *Rule) unmatchedDiagnostic(file source.FileID, ue *scan.UnmatchedError) diag.Diagnostic {
	code := diag.ScanUnbalanced
	switch {
	case errors.Is(ue, scan.ErrNoOpening):
		code = diag.ScanNoOpening
	case errors.Is(ue, scan.ErrSuffixMismatch):
		code = diag.ScanSuffixMismatch
	}
	span, err := source.SpanOf(file, ue.Offset, ue.PrefixEnd)
	if err != nil {
		span = source.Span{File: file}
	}
	return diag.Diagnostic{
		Severity: diag.SevWarning,
		Code:     code,
		Message:  ue.Err.Error(),
		Primary:  span,
		Rule:     r.spec.Name,
	}
}

// Fingerprint identifies the rule's behaviour; two rules with the same
// fingerprint rewrite every text identically.
func (r *Rule) Fingerprint() string {
	h := sha256.New()
	writeSpec(h, r.spec)
	return hex.EncodeToString(h.Sum(nil))
}

func writeSpec(w io.Writer, s Spec) {
	fmt.Fprintf(w, "%q|%q|%q|%q|%q|%q|%q|%q|%q|%q\n",
		s.Name, s.Shape.Prefix, string(s.Shape.Open), string(s.Shape.Close), s.Shape.Suffix,
		s.Shape.Quotes, s.Shape.LineComment, s.Marker, s.IndentUnit, s.Separator)
	for _, f := range s.Fields {
		fmt.Fprintf(w, "%q=%q\n", f.Name, f.Value)
	}
}

// Fingerprint combines the fingerprints of an ordered rule list.
func Fingerprint(rules []*Rule) string {
	h := sha256.New()
	for _, r := range rules {
		writeSpec(h, r.spec)
	}
	return hex.EncodeToString(h.Sum(nil))
}
