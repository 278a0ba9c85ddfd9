package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbalanced: nesting never returned to zero before end of text.
	ErrUnbalanced = errors.New("delimiters never balance before end of text")
	// ErrNoOpening: the prefix marker is not followed by the opening delimiter.
	ErrNoOpening = errors.New("missing opening delimiter after prefix")
	// ErrSuffixMismatch: a balanced body is not followed by the suffix marker.
	ErrSuffixMismatch = errors.New("suffix marker does not follow closing delimiter")
)

// Fragment is a located span [Start, End) of the scanned text.
// PrefixText()+Body()+SuffixText() reconstructs the span exactly.
type Fragment struct {
	src string

	Start     int // first byte of the prefix marker
	BodyStart int // first byte after the opening delimiter
	BodyEnd   int // offset of the closing delimiter
	End       int // one past the suffix marker

	// Indent is the leading whitespace of the line the fragment starts on.
	Indent string
}

// PrefixText is the prefix marker through the opening delimiter.
func (f Fragment) PrefixText() string { return f.src[f.Start:f.BodyStart] }

// Body is the text strictly between the delimiters.
func (f Fragment) Body() string { return f.src[f.BodyStart:f.BodyEnd] }

// SuffixText is the closing delimiter and the suffix marker.
func (f Fragment) SuffixText() string { return f.src[f.BodyEnd:f.End] }

// Text is the whole matched span.
func (f Fragment) Text() string { return f.src[f.Start:f.End] }

// UnmatchedError reports a prefix occurrence that did not form a fragment.
// Offset is where the prefix marker starts; PrefixEnd is where scanning resumes.
type UnmatchedError struct {
	Offset    int
	PrefixEnd int
	Err       error
}

func (e *UnmatchedError) Error() string {
	return fmt.Sprintf("unmatched fragment at offset %d: %v", e.Offset, e.Err)
}

func (e *UnmatchedError) Unwrap() error { return e.Err }
