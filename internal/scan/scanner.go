package scan

import (
	"iter"
	"strings"
)

// Scanner finds Fragments of one Shape. It holds no per-text state, so one
// Scanner may be shared between goroutines.
type Scanner struct {
	shape Shape
}

// New validates shape and returns a Scanner for it.
func New(shape Shape) (*Scanner, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{shape: shape}, nil
}

// Shape returns the shape the scanner looks for.
func (s *Scanner) Shape() Shape { return s.shape }

// All yields fragments left to right. A prefix occurrence that does not form
// a fragment is yielded as an *UnmatchedError and scanning resumes right
// after that prefix marker, so nothing past it is consumed. After a fragment
// scanning resumes at its end, which keeps fragments non-overlapping.
// Every call restarts from the beginning of text.
func (s *Scanner) All(text string) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		pos := 0
		for pos <= len(text) {
			rel := strings.Index(text[pos:], s.shape.Prefix)
			if rel < 0 {
				return
			}
			at := pos + rel
			frag, err := s.matchAt(text, at)
			if err != nil {
				if !yield(Fragment{}, err) {
					return
				}
				pos = at + len(s.shape.Prefix)
				continue
			}
			if !yield(frag, nil) {
				return
			}
			pos = frag.End
		}
	}
}

// Collect drains All into slices.
func (s *Scanner) Collect(text string) ([]Fragment, []*UnmatchedError) {
	var frags []Fragment
	var unmatched []*UnmatchedError
	for frag, err := range s.All(text) {
		if err != nil {
			if ue, ok := err.(*UnmatchedError); ok {
				unmatched = append(unmatched, ue)
			}
			continue
		}
		frags = append(frags, frag)
	}
	return frags, unmatched
}

func (s *Scanner) matchAt(text string, at int) (Fragment, error) {
	prefixEnd := at + len(s.shape.Prefix)
	unmatched := func(err error) (Fragment, error) {
		return Fragment{}, &UnmatchedError{Offset: at, PrefixEnd: prefixEnd, Err: err}
	}

	open := prefixEnd
	for open < len(text) && isSpace(text[open]) {
		open++
	}
	if open >= len(text) || text[open] != s.shape.Open {
		return unmatched(ErrNoOpening)
	}

	closeAt, ok := s.balance(text, open+1)
	if !ok {
		return unmatched(ErrUnbalanced)
	}
	if !strings.HasPrefix(text[closeAt+1:], s.shape.Suffix) {
		return unmatched(ErrSuffixMismatch)
	}

	return Fragment{
		src:       text,
		Start:     at,
		BodyStart: open + 1,
		BodyEnd:   closeAt,
		End:       closeAt + 1 + len(s.shape.Suffix),
		Indent:    lineIndent(text, at),
	}, nil
}

// balance walks from start (just after the opening delimiter, depth 1) and
// returns the offset of the closing delimiter that brings depth to zero.
func (s *Scanner) balance(text string, start int) (int, bool) {
	depth := 1
	var quote byte
	inComment := false
	lc := s.shape.LineComment

	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case inComment:
			if c == '\n' {
				inComment = false
			}
			continue
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}

		if lc != "" && strings.HasPrefix(text[i:], lc) {
			inComment = true
			i += len(lc) - 1
			continue
		}
		if s.shape.Quotes != "" && strings.IndexByte(s.shape.Quotes, c) >= 0 {
			quote = c
			continue
		}

		switch c {
		case s.shape.Open:
			depth++
		case s.shape.Close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func lineIndent(text string, at int) string {
	lineStart := strings.LastIndexByte(text[:at], '\n') + 1
	end := lineStart
	for end < at && (text[end] == ' ' || text[end] == '\t') {
		end++
	}
	return text[lineStart:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
