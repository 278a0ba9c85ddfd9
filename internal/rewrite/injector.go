package rewrite

import (
	"strings"

	"fieldfix/internal/scan"
)

const (
	DefaultSeparator  = ","
	DefaultIndentUnit = "  "
)

// FieldAssignment is one `name: value` entry appended to a body.
// Value is inserted verbatim as source text.
type FieldAssignment struct {
	Name  string
	Value string
}

func (f FieldAssignment) String() string {
	return f.Name + ": " + f.Value
}

// Injector appends field assignments at the end of a fragment body, on new
// lines, matching the indentation of the surrounding code.
type Injector struct {
	Fields     []FieldAssignment
	Separator  string
	IndentUnit string
	// Quotes and LineComment let the injector recognise a trailing line
	// comment on the last body line; separators are placed before it.
	Quotes      string
	LineComment string
}

// Injection is the rewritten body and the rewritten full fragment text.
type Injection struct {
	Body string
	Text string
}

func (in Injector) sep() string {
	if in.Separator == "" {
		return DefaultSeparator
	}
	return in.Separator
}

func (in Injector) unit() string {
	if in.IndentUnit == "" {
		return DefaultIndentUnit
	}
	return in.IndentUnit
}

// Inject rewrites f. The existing body content is preserved apart from its
// trailing whitespace and at most one trailing separator; a separator is
// re-added when anything remains, then every field follows on its own line.
// The closing delimiter goes on a fresh line at the fragment's indentation.
func (in Injector) Inject(f scan.Fragment) Injection {
	body := f.Body()
	sep := in.sep()

	closeIndent := f.Indent
	if nl := strings.LastIndexByte(body, '\n'); nl >= 0 && isBlank(body[nl+1:]) {
		closeIndent = body[nl+1:]
	}

	trimmed := strings.TrimRight(body, " \t\r\n")
	fieldIndent := closeIndent + in.unit()
	if nl := strings.LastIndexByte(trimmed, '\n'); nl >= 0 {
		fieldIndent = leadingSpace(trimmed[nl+1:])
	}

	head, tail := in.splitTrailingComments(trimmed)
	head = strings.TrimRight(head, " \t\r\n")
	head = strings.TrimSuffix(head, sep)
	head = strings.TrimRight(head, " \t\r\n")

	var b strings.Builder
	b.Grow(len(body) + 64)
	b.WriteString(head)
	if strings.TrimSpace(head) != "" {
		b.WriteString(sep)
	}
	b.WriteString(tail)
	for _, field := range in.Fields {
		b.WriteByte('\n')
		b.WriteString(fieldIndent)
		b.WriteString(field.String())
		b.WriteString(sep)
	}
	newBody := b.String()

	return Injection{
		Body: newBody,
		Text: f.PrefixText() + newBody + "\n" + closeIndent + f.SuffixText(),
	}
}

// splitTrailingComments separates trailing comment text from the code before
// it. Whole comment lines at the end and a comment trailing the last code line
// both go to tail, with their original spacing.
func (in Injector) splitTrailingComments(trimmed string) (head, tail string) {
	if in.LineComment == "" {
		return trimmed, ""
	}
	head = trimmed
	for head != "" {
		nl := strings.LastIndexByte(head, '\n')
		line := head[nl+1:]
		idx := commentStart(line, in.LineComment, in.Quotes)
		if idx < 0 {
			return head, tail
		}
		code := strings.TrimRight(line[:idx], " \t")
		if strings.TrimSpace(code) != "" {
			cut := nl + 1 + len(code)
			return head[:cut], head[cut:] + tail
		}
		// строка целиком комментарий
		if nl < 0 {
			return "", head + tail
		}
		tail = head[nl:] + tail
		head = strings.TrimRight(head[:nl], " \t\r\n")
	}
	return head, tail
}

// commentStart returns the offset of marker in line outside quoted strings, or -1.
func commentStart(line, marker, quotes string) int {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		if strings.HasPrefix(line[i:], marker) {
			return i
		}
		if quotes != "" && strings.IndexByte(quotes, c) >= 0 {
			quote = c
		}
	}
	return -1
}

func leadingSpace(s string) string {
	end := 0
	for end < len(s) && (s[end] == ' ' || s[end] == '\t') {
		end++
	}
	return s[:end]
}

func isBlank(s string) bool {
	return strings.Trim(s, " \t\r") == ""
}
