package rewrite

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Checker decides whether a fragment body already carries the marker.
// The test is a plain substring test; it does not parse the body, so a marker
// that appears only inside a comment or string still counts as present.
type Checker struct {
	marker    string
	nfcMarker string
}

// NewChecker returns a Checker for marker. An empty marker is satisfied by
// every body.
func NewChecker(marker string) Checker {
	return Checker{marker: marker, nfcMarker: norm.NFC.String(marker)}
}

// Marker returns the marker text as configured.
func (c Checker) Marker() string { return c.marker }

// Satisfied reports whether body contains the marker. Non-ASCII text is
// compared in NFC so composed and decomposed spellings match.
func (c Checker) Satisfied(body string) bool {
	if strings.Contains(body, c.marker) {
		return true
	}
	if isASCII(body) && isASCII(c.marker) {
		return false
	}
	return strings.Contains(norm.NFC.String(body), c.nfcMarker)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
