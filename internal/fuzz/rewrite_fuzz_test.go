package fuzztests

import (
	"testing"
	"unicode/utf8"

	"fieldfix/internal/rewrite"
	"fieldfix/internal/scan"
	"fieldfix/internal/testkit"
)

const maxFuzzInput = 1 << 16 // 64 KiB

func clampInput(input []byte) string {
	if len(input) > maxFuzzInput {
		input = input[:maxFuzzInput]
	}
	return string(input)
}

func FuzzScannerFragments(f *testing.F) {
	addCorpusSeeds(f)
	shape := rewrite.TenantEmailVerified().Shape
	sc, err := scan.New(shape)
	if err != nil {
		f.Fatal(err)
	}
	f.Fuzz(func(t *testing.T, input []byte) {
		text := clampInput(input)
		frags, unmatched := sc.Collect(text)
		if err := testkit.CheckFragmentInvariants(text, shape, frags); err != nil {
			t.Fatal(err)
		}
		for _, ue := range unmatched {
			if ue.Offset < 0 || ue.PrefixEnd > len(text) || ue.PrefixEnd-ue.Offset != len(shape.Prefix) {
				t.Fatalf("unmatched error out of range: %+v", ue)
			}
		}
	})
}

func FuzzRuleIdempotent(f *testing.F) {
	addCorpusSeeds(f)
	rule, err := rewrite.NewRule(rewrite.TenantEmailVerified())
	if err != nil {
		f.Fatal(err)
	}
	f.Fuzz(func(t *testing.T, input []byte) {
		text := clampInput(input)
		if !utf8.ValidString(text) {
			// файлы не в UTF-8 отсекаются до правил
			return
		}
		if err := testkit.CheckRewriteInvariants(rule, text); err != nil {
			t.Fatal(err)
		}
	})
}
