package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const contextLines = 3

var (
	addLine  = color.New(color.FgGreen).SprintFunc()
	delLine  = color.New(color.FgRed).SprintFunc()
	hunkHead = color.New(color.FgCyan).SprintFunc()
)

type lineOp struct {
	kind byte // ' ', '-', '+'
	text string
	old  int // строк старого текста до этой
	new  int // строк нового текста до этой
}

func lineOps(before, after string) []lineOp {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var ops []lineOp
	oldN, newN := 0, 0
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if d.Text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			op := lineOp{text: line, old: oldN, new: newN}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				op.kind = ' '
				oldN++
				newN++
			case diffmatchpatch.DiffDelete:
				op.kind = '-'
				oldN++
			case diffmatchpatch.DiffInsert:
				op.kind = '+'
				newN++
			}
			ops = append(ops, op)
		}
	}
	return ops
}

// WriteDiff prints a unified-style line diff of one file. Nothing is written
// when before equals after.
func WriteDiff(w io.Writer, path, before, after string) error {
	if before == after {
		return nil
	}
	ops := lineOps(before, after)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", delLine("--- a/"+path), addLine("+++ b/"+path))
	for i := 0; i < len(ops); {
		if ops[i].kind == ' ' {
			i++
			continue
		}
		start := max(0, i-contextLines)
		end := i
		// склеиваем изменения, между которыми мало контекста
		for j := i; j < len(ops); j++ {
			if ops[j].kind != ' ' {
				end = j
			} else if j-end > 2*contextLines {
				break
			}
		}
		end = min(len(ops), end+contextLines+1)

		oldCount, newCount := 0, 0
		for _, op := range ops[start:end] {
			if op.kind != '+' {
				oldCount++
			}
			if op.kind != '-' {
				newCount++
			}
		}
		b.WriteString(hunkHead(fmt.Sprintf("@@ -%d,%d +%d,%d @@", ops[start].old+1, oldCount, ops[start].new+1, newCount)))
		b.WriteByte('\n')
		for _, op := range ops[start:end] {
			line := string(op.kind) + op.text
			switch op.kind {
			case '+':
				line = addLine(line)
			case '-':
				line = delLine(line)
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		i = end
	}
	_, err := io.WriteString(w, b.String())
	return err
}
