package source

import (
	"fmt"

	"fortio.org/safecast"
)

// Span is a half-open byte range inside one file.
type Span struct {
	File  FileID
	Start uint32 // в байтах включительно
	End   uint32 // в байтах не включительно
}

// SpanOf builds a span from int offsets as produced by the scanner.
func SpanOf(file FileID, start, end int) (Span, error) {
	s, err := safecast.Conv[uint32](start)
	if err != nil {
		return Span{}, fmt.Errorf("span start overflow: %w", err)
	}
	e, err := safecast.Conv[uint32](end)
	if err != nil {
		return Span{}, fmt.Errorf("span end overflow: %w", err)
	}
	if e < s {
		return Span{}, fmt.Errorf("span end %d before start %d", e, s)
	}
	return Span{File: file, Start: s, End: e}, nil
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// Overlaps reports whether two spans of the same file share at least one byte.
// Zero-length spans overlap a non-empty span only when they sit strictly inside it.
func (s Span) Overlaps(other Span) bool {
	if s.File != other.File {
		return false
	}
	if s.Empty() && other.Empty() {
		return false
	}
	if s.Empty() {
		return other.Start < s.Start && s.Start < other.End
	}
	if other.Empty() {
		return s.Start < other.Start && other.Start < s.End
	}
	return s.Start < other.End && other.Start < s.End
}
