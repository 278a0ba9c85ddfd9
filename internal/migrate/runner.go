// Package migrate runs the one-off, file-specific patch table that moves
// tests off `insertId`. It is deliberately narrow: each patch names the one
// file it applies to and nothing is generalised into rules.
package migrate

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"

	"fieldfix/internal/batch"
	"fieldfix/internal/diag"
	"fieldfix/internal/fix"
	"fieldfix/internal/source"
)

// Status of one patch against its file.
type Status string

const (
	StatusApplied Status = "applied"
	StatusNoMatch Status = "no-match"
	StatusManual  Status = "manual"
	StatusError   Status = "error"
)

// PatchResult records what one patch did.
type PatchResult struct {
	Label  string `json:"label" yaml:"label"`
	Status Status `json:"status" yaml:"status"`
	Count  int    `json:"count" yaml:"count"`
	Code   string `json:"code,omitempty" yaml:"code,omitempty"`
}

// FileResult records what happened to one file of the table.
type FileResult struct {
	Path    string        `json:"path" yaml:"path"`
	Changed bool          `json:"changed" yaml:"changed"`
	Manual  string        `json:"manual,omitempty" yaml:"manual,omitempty"`
	Patches []PatchResult `json:"patches,omitempty" yaml:"patches,omitempty"`
	Err     error         `json:"-" yaml:"-"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`

	Before string `json:"-" yaml:"-"`
	After  string `json:"-" yaml:"-"`
}

// Report aggregates a migration run; Files are ordered by path.
type Report struct {
	DryRun  bool         `json:"dry_run" yaml:"dry_run"`
	Applied int          `json:"applied" yaml:"applied"`
	NoMatch int          `json:"no_match" yaml:"no_match"`
	Manual  int          `json:"manual" yaml:"manual"`
	Changed int          `json:"changed" yaml:"changed"`
	Errored int          `json:"errored" yaml:"errored"`
	Files   []FileResult `json:"files" yaml:"files"`
}

// HasErrors reports whether any file failed.
func (r *Report) HasErrors() bool { return r.Errored > 0 }

// Runner applies a Table below a root directory.
type Runner struct {
	FS      batch.FileSystem
	Logger  *zap.Logger
	DryRun  bool
	Preview bool
}

type compiled struct {
	patch Patch
	re    *regexp.Regexp
}

// Compile checks every search pattern of t. Run calls it before touching any
// file.
func Compile(t Table) error {
	_, err := compile(t)
	return err
}

func compile(t Table) (map[string][]compiled, error) {
	byPath := make(map[string][]compiled)
	for _, p := range t.Patches {
		if p.Path == "" {
			return nil, fmt.Errorf("patch %q: empty path", p.Label)
		}
		re, err := regexp.Compile(p.Search)
		if err != nil {
			return nil, fmt.Errorf("%s: patch %q: %w", diag.PatchBadPattern.ID(), p.Label, err)
		}
		key := filepath.ToSlash(filepath.Clean(p.Path))
		byPath[key] = append(byPath[key], compiled{patch: p, re: re})
	}
	return byPath, nil
}

// Run applies the table. A missing or unreadable file is recorded on its
// FileResult; a pattern that does not match counts as zero applications.
// Patches for one file run in table order, each seeing the previous output.
func (r Runner) Run(ctx context.Context, root string, t Table) (*Report, error) {
	byPath, err := compile(t)
	if err != nil {
		return nil, err
	}
	fsys := r.FS
	if fsys == nil {
		fsys = batch.OSFileSystem{}
	}
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	manual := make(map[string]string, len(t.Manual))
	for _, m := range t.Manual {
		key := filepath.ToSlash(filepath.Clean(m.Path))
		if _, ok := byPath[key]; !ok {
			paths = append(paths, key)
		}
		manual[key] = m.Note
	}
	sort.Strings(paths)

	report := &Report{DryRun: r.DryRun, Files: make([]FileResult, 0, len(paths))}
	for _, rel := range paths {
		res := FileResult{Path: rel, Manual: manual[rel]}
		switch {
		case ctx.Err() != nil:
			res.Err = ctx.Err()
		case len(byPath[rel]) > 0:
			r.applyFile(fsys, filepath.Join(root, filepath.FromSlash(rel)), byPath[rel], &res)
		}
		if res.Err != nil {
			res.Error = res.Err.Error()
			report.Errored++
			log.Warn("patch file failed", zap.String("path", rel), zap.Error(res.Err))
		}
		if res.Manual != "" {
			report.Manual++
		}
		if res.Changed {
			report.Changed++
		}
		for _, p := range res.Patches {
			switch p.Status {
			case StatusApplied:
				report.Applied += p.Count
			case StatusNoMatch:
				report.NoMatch++
			}
		}
		log.Debug("patch file done", zap.String("path", rel), zap.Bool("changed", res.Changed))
		report.Files = append(report.Files, res)
	}
	return report, nil
}

func (r Runner) applyFile(fsys batch.FileSystem, path string, patches []compiled, res *FileResult) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", batch.ErrRead, err)
		return
	}
	content, flags := source.Decode(raw)
	if !utf8.Valid(content) {
		res.Err = fmt.Errorf("%w: %s: %w", batch.ErrRead, path, source.ErrNotUTF8)
		return
	}

	original := string(content)
	text := original
	for _, c := range patches {
		edits := make([]diag.TextEdit, 0, 1)
		for _, loc := range c.re.FindAllStringIndex(text, -1) {
			span, err := source.SpanOf(0, loc[0], loc[1])
			if err != nil {
				res.Err = err
				return
			}
			edits = append(edits, fix.ReplaceSpan(span, c.patch.Replace, text[loc[0]:loc[1]]))
		}
		pr := PatchResult{Label: c.patch.Label, Status: StatusNoMatch, Code: diag.PatchNoMatch.ID()}
		if len(edits) > 0 {
			spliced := fix.Splice([]byte(text), edits)
			text = string(spliced.Content)
			pr = PatchResult{Label: c.patch.Label, Status: StatusApplied, Count: spliced.Applied}
		}
		res.Patches = append(res.Patches, pr)
	}

	res.Changed = text != original
	if !res.Changed {
		return
	}
	if r.Preview {
		res.Before, res.After = original, text
	}
	if r.DryRun {
		return
	}
	if err := fsys.WriteFile(path, source.Encode([]byte(text), flags)); err != nil {
		res.Err = fmt.Errorf("%w: %w", batch.ErrWrite, err)
		res.Changed = false
	}
}
