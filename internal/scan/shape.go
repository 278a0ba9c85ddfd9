package scan

import (
	"errors"
	"fmt"
	"strings"
)

// Shape describes the call-like construct to look for: a literal prefix
// marker, a delimited body and a literal suffix marker that must follow the
// closing delimiter immediately.
//
// Quotes and LineComment are optional. When set, delimiter characters inside
// quoted strings (backslash escapes honoured) or after a line-comment marker
// are not counted. With both empty the scanner counts every delimiter byte.
type Shape struct {
	Prefix      string
	Open        byte
	Close       byte
	Suffix      string
	Quotes      string
	LineComment string
}

// Validate reports configuration mistakes that would make scanning meaningless.
func (s Shape) Validate() error {
	var errs []error
	if s.Prefix == "" {
		errs = append(errs, errors.New("prefix marker is empty"))
	}
	if s.Open == 0 || s.Close == 0 {
		errs = append(errs, errors.New("opening and closing delimiters are required"))
	}
	if s.Open == s.Close && s.Open != 0 {
		errs = append(errs, fmt.Errorf("opening and closing delimiters must differ (both %q)", s.Open))
	}
	if strings.IndexByte(s.Quotes, s.Open) >= 0 || strings.IndexByte(s.Quotes, s.Close) >= 0 {
		errs = append(errs, errors.New("quote characters must not include a delimiter"))
	}
	if s.LineComment != "" && strings.ContainsAny(s.LineComment, string([]byte{s.Open, s.Close})) {
		errs = append(errs, errors.New("line comment marker must not contain a delimiter"))
	}
	return errors.Join(errs...)
}

func (s Shape) String() string {
	return fmt.Sprintf("%s%c…%c%s", s.Prefix, s.Open, s.Close, s.Suffix)
}
