package batch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fieldfix/internal/diag"
	"fieldfix/internal/observ"
	"fieldfix/internal/rewrite"
	"fieldfix/internal/source"
)

var (
	// ErrRead wraps every failure to obtain a file's text.
	ErrRead = errors.New("read failure")
	// ErrWrite wraps every failure to store a rewritten file.
	ErrWrite = errors.New("write failure")
	// ErrNoRules is returned by New when no rule is configured.
	ErrNoRules = errors.New("no rewrite rules configured")
)

// Cache remembers files known to need no rewrite under a given rule set.
type Cache interface {
	IsClean(path string, hash [32]byte, digest string) bool
	MarkClean(path string, hash [32]byte, digest string)
}

// Options configures an Orchestrator.
type Options struct {
	Rules []*rewrite.Rule
	// DryRun computes outcomes without writing any file.
	DryRun bool
	// Preview keeps before/after text on changed outcomes.
	Preview bool
	// Jobs bounds concurrency; 1 is sequential, <=0 uses GOMAXPROCS.
	Jobs int
	// BaseDir, when set, makes reported paths relative to it.
	BaseDir        string
	MaxDiagnostics int

	FS     FileSystem
	Cache  Cache
	Sink   ProgressSink
	Logger *zap.Logger
	Timer  *observ.Timer
}

// Orchestrator applies rules across a set of files.
type Orchestrator struct {
	opts    Options
	files   *source.FileSet
	digest  string
	ruleIDs []string
}

// New validates opts and fills defaults.
func New(opts Options) (*Orchestrator, error) {
	if len(opts.Rules) == 0 {
		return nil, ErrNoRules
	}
	if opts.FS == nil {
		opts.FS = OSFileSystem{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}
	names := make([]string, len(opts.Rules))
	for i, r := range opts.Rules {
		names[i] = r.Name()
	}
	return &Orchestrator{
		opts:    opts,
		files:   source.NewFileSet(),
		digest:  rewrite.Fingerprint(opts.Rules),
		ruleIDs: names,
	}, nil
}

// FileSet exposes the loaded file versions (used to resolve positions).
func (o *Orchestrator) FileSet() *source.FileSet { return o.files }

// DisplayNames returns the names Run will use in events and outcomes for
// paths, in processing order.
func (o *Orchestrator) DisplayNames(paths []string) []string {
	files := uniqueSorted(paths)
	out := make([]string, len(files))
	for i, p := range files {
		out[i] = o.display(p)
	}
	return out
}

// Run processes paths and returns the aggregate report. Per-file failures
// are recorded on that file's outcome; Run itself does not fail. When ctx is
// canceled, files not yet processed are recorded with the context error.
func (o *Orchestrator) Run(ctx context.Context, paths []string) *BatchReport {
	done := o.opts.Timer.Track("process")
	files := uniqueSorted(paths)
	report := &BatchReport{
		RunID:  uuid.NewString(),
		DryRun: o.opts.DryRun,
		Rules:  o.ruleIDs,
		Files:  make([]FileOutcome, len(files)),
	}
	log := o.opts.Logger.With(zap.String("run_id", report.RunID))
	log.Debug("run started",
		zap.Int("files", len(files)),
		zap.Int("jobs", o.opts.Jobs),
		zap.Bool("dry_run", o.opts.DryRun),
		zap.Strings("rules", o.ruleIDs))

	for _, path := range files {
		o.emit(Event{File: o.display(path), Status: StatusQueued})
	}

	// каждый индекс пишется ровно одной горутиной, мьютекс не нужен
	finished := make([]bool, len(files))
	if o.opts.Jobs == 1 || len(files) < 2 {
		for i, path := range files {
			if ctx.Err() != nil {
				break
			}
			report.Files[i] = o.processFile(log, path)
			finished[i] = true
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(o.opts.Jobs, len(files)))
		for i, path := range files {
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				report.Files[i] = o.processFile(log, path)
				finished[i] = true
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, path := range files {
		if finished[i] {
			continue
		}
		out := FileOutcome{Path: o.display(path)}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		out.fail(err)
		report.Files[i] = out
		o.emit(Event{File: out.Path, Status: StatusError, Err: err})
	}

	report.tally()
	done(fmt.Sprintf("%d files", report.Total))
	report.Timing = o.opts.Timer.Report()
	log.Info("run finished",
		zap.Int("fixed", report.Fixed),
		zap.Int("skipped", report.Skipped),
		zap.Int("errored", report.Errored),
		zap.Int("total", report.Total))
	return report
}

// processFile never panics and never returns an error: every failure is
// recorded on the outcome.
func (o *Orchestrator) processFile(log *zap.Logger, path string) (out FileOutcome) {
	start := time.Now()
	out = FileOutcome{Path: o.display(path)}
	o.emit(Event{File: out.Path, Status: StatusWorking})

	defer func() {
		if r := recover(); r != nil {
			out.fail(fmt.Errorf("internal error: %v", r))
			log.Error("panic while processing file", zap.String("path", path), zap.Any("panic", r))
		}
		evt := Event{File: out.Path, Status: StatusDone, Changed: out.Changed, Elapsed: time.Since(start)}
		if out.Err != nil {
			evt.Status = StatusError
			evt.Err = out.Err
			log.Warn("file failed", zap.String("path", path), zap.Error(out.Err))
		} else {
			log.Debug("file processed",
				zap.String("path", path),
				zap.Bool("changed", out.Changed),
				zap.Bool("cached", out.Cached),
				zap.Duration("elapsed", evt.Elapsed))
		}
		o.emit(evt)
	}()

	raw, err := o.opts.FS.ReadFile(path)
	if err != nil {
		out.fail(fmt.Errorf("%w: %w", ErrRead, err))
		return out
	}
	id, err := o.files.AddRaw(path, raw)
	if err != nil {
		out.fail(fmt.Errorf("%w: %w", ErrRead, err))
		return out
	}
	file := o.files.Get(id)

	if o.opts.Cache != nil && o.opts.Cache.IsClean(path, file.Hash, o.digest) {
		out.Cached = true
		return out
	}

	bag := diag.NewBag(o.opts.MaxDiagnostics)
	original := string(file.Content)
	text := original
	for _, rule := range o.opts.Rules {
		res, err := rule.Apply(id, text)
		if err != nil {
			out.fail(err)
			return out
		}
		out.Rules = append(out.Rules, RuleCounts{
			Rule:      rule.Name(),
			Modified:  res.Modified,
			Unchanged: res.Unchanged,
			Unmatched: res.Unmatched,
		})
		// диагностики ссылаются на текст, который видело правило
		ruleFile := file
		if text != original {
			ruleFile = o.files.Get(o.files.AddVirtual(path, []byte(text)))
		}
		for _, d := range res.Diagnostics {
			d.Primary.File = ruleFile.ID
			bag.Add(d)
		}
		text = res.Text
	}
	bag.Sort()
	out.Findings = o.findings(bag.Items())
	out.Changed = text != original

	if out.Changed {
		if o.opts.Preview {
			out.Before, out.After = original, text
		}
		if !o.opts.DryRun {
			if err := o.opts.FS.WriteFile(path, source.Encode([]byte(text), file.Flags)); err != nil {
				out.fail(fmt.Errorf("%w: %w", ErrWrite, err))
				return out
			}
		}
	}

	if o.opts.Cache != nil && (!out.Changed || !o.opts.DryRun) {
		o.opts.Cache.MarkClean(path, sha256.Sum256([]byte(text)), o.digest)
	}
	return out
}

func (o *Orchestrator) findings(items []diag.Diagnostic) []Finding {
	if len(items) == 0 {
		return nil
	}
	out := make([]Finding, 0, len(items))
	for _, d := range items {
		pos, _ := o.files.Resolve(d.Primary)
		var line string
		if f := o.files.Get(d.Primary.File); f != nil {
			line = f.GetLine(pos.Line)
		}
		out = append(out, Finding{
			Rule:     d.Rule,
			Code:     d.Code.ID(),
			Severity: d.Severity.String(),
			Message:  d.Message,
			Line:     pos.Line,
			Col:      pos.Col,
			Source:   line,
		})
	}
	return out
}

func (o *Orchestrator) emit(evt Event) {
	if o.opts.Sink != nil {
		o.opts.Sink.OnEvent(evt)
	}
}

func (o *Orchestrator) display(path string) string {
	return source.RelPath(path, o.opts.BaseDir)
}

func uniqueSorted(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		clean := filepath.Clean(p)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	sort.Strings(out)
	return out
}
