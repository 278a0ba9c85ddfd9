package testkit

import (
	"os"
	"path/filepath"
	"testing"

	"fieldfix/internal/diag"
	"fieldfix/internal/rewrite"
	"fieldfix/internal/scan"
	"fieldfix/internal/source"
)

func tenantRule(t *testing.T) *rewrite.Rule {
	t.Helper()
	r, err := rewrite.NewRule(rewrite.TenantEmailVerified())
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	return r
}

func TestTestdataPassesInvariants(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "testdata", "*.ts"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Skip("no testdata fixtures")
	}
	r := tenantRule(t)
	sc, err := scan.New(r.Spec().Shape)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		text := string(data)
		frags, _ := sc.Collect(text)
		if err := CheckFragmentInvariants(text, r.Spec().Shape, frags); err != nil {
			t.Errorf("%s: %v", p, err)
		}
		if err := CheckRewriteInvariants(r, text); err != nil {
			t.Errorf("%s: %v", p, err)
		}
	}
}

func TestCheckEditsRejectsOverlap(t *testing.T) {
	edits := []diag.TextEdit{
		{Span: source.Span{Start: 0, End: 4}},
		{Span: source.Span{Start: 2, End: 6}},
	}
	if err := CheckEdits(edits, 10); err == nil {
		t.Error("overlapping edits accepted")
	}
	if err := CheckEdits(edits[:1], 3); err == nil {
		t.Error("out-of-range edit accepted")
	}
	if err := CheckEdits(edits[:1], 10); err != nil {
		t.Errorf("valid edit rejected: %v", err)
	}
}

func TestCheckFragmentInvariantsCatchesBadOffsets(t *testing.T) {
	shape := scan.Shape{Prefix: "X(", Open: '{', Close: '}', Suffix: ");"}
	sc, err := scan.New(shape)
	if err != nil {
		t.Fatal(err)
	}
	text := "X({a});"
	frags, _ := sc.Collect(text)
	if len(frags) != 1 {
		t.Fatalf("got %d fragments", len(frags))
	}
	bad := frags[0]
	bad.End--
	if err := CheckFragmentInvariants(text, shape, []scan.Fragment{bad}); err == nil {
		t.Error("truncated suffix accepted")
	}
}
