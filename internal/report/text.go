// Package report renders batch and migration reports for people (text) and
// machines (JSON, YAML), plus line previews of pending changes.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"fieldfix/internal/batch"
	"fieldfix/internal/migrate"
)

var (
	okMark    = color.New(color.FgGreen).SprintFunc()
	errMark   = color.New(color.FgRed).SprintFunc()
	warnMark  = color.New(color.FgYellow).SprintFunc()
	dimText   = color.New(color.Faint).SprintFunc()
	headStyle = color.New(color.Bold).SprintFunc()

	numbers = message.NewPrinter(language.English)
)

// TextOptions controls the text renderer.
type TextOptions struct {
	// Quiet prints only the summary block.
	Quiet bool
	// Verbose also lists unchanged files and fragment counts.
	Verbose bool
}

// WriteText prints one line per changed or failed file followed by the
// summary block.
func WriteText(w io.Writer, r *batch.BatchReport, opts TextOptions) error {
	var err error
	p := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	if !opts.Quiet {
		for _, f := range r.Files {
			switch {
			case f.Err != nil || f.Error != "":
				p("%s %s: %s\n", errMark("✗"), f.Path, f.Error)
			case f.Changed:
				p("%s %s\n", okMark("✓"), f.Path)
			case opts.Verbose:
				note := "unchanged"
				if f.Cached {
					note = "cached"
				}
				p("%s %s %s\n", dimText("·"), f.Path, dimText(note))
			}
			for _, fd := range f.Findings {
				p("  %s %s:%d:%d [%s] %s\n", warnMark("!"), f.Path, fd.Line, fd.Col, fd.Code, fd.Message)
				if fd.Source != "" {
					p("    %s %s\n", dimText("|"), fd.Source)
					p("    %s %s%s\n", dimText("|"), caretPad(fd.Source, fd.Col), warnMark("^"))
				}
			}
			if opts.Verbose {
				for _, rc := range f.Rules {
					p("    %s modified=%d unchanged=%d unmatched=%d\n", dimText(rc.Rule), rc.Modified, rc.Unchanged, rc.Unmatched)
				}
			}
		}
		p("\n")
	}

	fixedLabel := "Fixed"
	if r.DryRun {
		fixedLabel = "Would fix"
	}
	p("%s\n", headStyle("Summary"))
	p("  %-10s %s\n", fixedLabel+":", numbers.Sprintf("%d", r.Fixed))
	p("  %-10s %s\n", "Unchanged:", numbers.Sprintf("%d", r.Skipped))
	p("  %-10s %s\n", "Errors:", numbers.Sprintf("%d", r.Errored))
	p("  %-10s %s\n", "Total:", numbers.Sprintf("%d", r.Total))
	return err
}

// caretPad returns the indentation that puts a caret under byte column col
// of line. Tabs are kept so the caret lines up in any tab width.
func caretPad(line string, col uint32) string {
	if col <= 1 {
		return ""
	}
	prefix := line
	if int(col-1) < len(line) {
		prefix = line[:col-1]
	}
	var b strings.Builder
	for _, r := range prefix {
		if r == '\t' {
			b.WriteByte('\t')
			continue
		}
		b.WriteString(strings.Repeat(" ", runewidth.RuneWidth(r)))
	}
	return b.String()
}

// WriteMigrationText prints the outcome of a patch table run.
func WriteMigrationText(w io.Writer, r *migrate.Report, quiet bool) error {
	var err error
	p := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	if !quiet {
		for _, f := range r.Files {
			switch {
			case f.Error != "":
				p("%s %s: %s\n", errMark("✗"), f.Path, f.Error)
			case f.Manual != "":
				p("%s %s (%s)\n", warnMark("!"), f.Path, f.Manual)
			case f.Changed:
				p("%s %s\n", okMark("✓"), f.Path)
			default:
				p("%s %s %s\n", dimText("·"), f.Path, dimText("nothing to patch"))
			}
			for _, pr := range f.Patches {
				switch pr.Status {
				case migrate.StatusApplied:
					p("    %s %s ×%d\n", okMark("+"), pr.Label, pr.Count)
				case migrate.StatusNoMatch:
					p("    %s %s [%s]\n", dimText("-"), pr.Label, pr.Code)
				}
			}
		}
		p("\n")
	}
	label := "Patched"
	if r.DryRun {
		label = "Would patch"
	}
	p("%s\n", headStyle("Summary"))
	p("  %-12s %s\n", label+":", numbers.Sprintf("%d", r.Applied))
	p("  %-12s %s\n", "No match:", numbers.Sprintf("%d", r.NoMatch))
	p("  %-12s %s\n", "Manual:", numbers.Sprintf("%d", r.Manual))
	p("  %-12s %s\n", "Errors:", numbers.Sprintf("%d", r.Errored))
	return err
}
