package batch

import (
	"fieldfix/internal/observ"
)

// RuleCounts are the fragment counts one rule produced in one file.
type RuleCounts struct {
	Rule      string `json:"rule" yaml:"rule"`
	Modified  int    `json:"modified" yaml:"modified"`
	Unchanged int    `json:"unchanged" yaml:"unchanged"`
	Unmatched int    `json:"unmatched" yaml:"unmatched"`
}

// Finding is a diagnostic resolved to a line and column.
type Finding struct {
	Rule     string `json:"rule,omitempty" yaml:"rule,omitempty"`
	Code     string `json:"code" yaml:"code"`
	Severity string `json:"severity" yaml:"severity"`
	Message  string `json:"message" yaml:"message"`
	Line     uint32 `json:"line" yaml:"line"`
	Col      uint32 `json:"col" yaml:"col"`
	// Source is the text of Line as the reporting rule saw it.
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
}

// FileOutcome is recorded exactly once per processed file.
type FileOutcome struct {
	Path     string       `json:"path" yaml:"path"`
	Changed  bool         `json:"changed" yaml:"changed"`
	Cached   bool         `json:"cached,omitempty" yaml:"cached,omitempty"`
	Err      error        `json:"-" yaml:"-"`
	Error    string       `json:"error,omitempty" yaml:"error,omitempty"`
	Rules    []RuleCounts `json:"rules,omitempty" yaml:"rules,omitempty"`
	Findings []Finding    `json:"findings,omitempty" yaml:"findings,omitempty"`

	// Before and After are kept only when previews are requested and the
	// file changed.
	Before string `json:"-" yaml:"-"`
	After  string `json:"-" yaml:"-"`
}

func (o *FileOutcome) fail(err error) {
	o.Err = err
	o.Error = err.Error()
	o.Changed = false
}

// BatchReport aggregates a run. Files are ordered by path and
// Fixed + Skipped + Errored == Total.
type BatchReport struct {
	RunID   string        `json:"run_id" yaml:"run_id"`
	DryRun  bool          `json:"dry_run" yaml:"dry_run"`
	Rules   []string      `json:"rules" yaml:"rules"`
	Fixed   int           `json:"fixed" yaml:"fixed"`
	Skipped int           `json:"skipped" yaml:"skipped"`
	Errored int           `json:"errored" yaml:"errored"`
	Total   int           `json:"total" yaml:"total"`
	Files   []FileOutcome `json:"files" yaml:"files"`
	Timing  observ.Report `json:"timing,omitzero" yaml:"timing,omitempty"`
}

// HasErrors reports whether any file errored.
func (r *BatchReport) HasErrors() bool { return r.Errored > 0 }

// ChangedFiles returns outcomes that changed (or would change in a dry run).
func (r *BatchReport) ChangedFiles() []FileOutcome {
	out := make([]FileOutcome, 0, r.Fixed)
	for _, f := range r.Files {
		if f.Changed {
			out = append(out, f)
		}
	}
	return out
}

func (r *BatchReport) tally() {
	r.Fixed, r.Errored = 0, 0
	for _, f := range r.Files {
		switch {
		case f.Err != nil:
			r.Errored++
		case f.Changed:
			r.Fixed++
		}
	}
	r.Total = len(r.Files)
	r.Skipped = r.Total - r.Fixed - r.Errored
}
