package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fieldfix/internal/batch"
	"fieldfix/internal/cache"
	"fieldfix/internal/config"
	"fieldfix/internal/discover"
	"fieldfix/internal/observ"
	"fieldfix/internal/report"
	"fieldfix/internal/rewrite"
)

const appName = "fieldfix"

// runSettings is what run, check and watch agree on after layering flags
// over the manifest.
type runSettings struct {
	manifest *config.Manifest
	matcher  discover.Matcher
	rules    []*rewrite.Rule
	jobs     int
	cache    bool
	format   report.Format
	quiet    bool
	verbose  bool
	timings  bool
	timer    *observ.Timer
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("pattern", discover.DefaultPattern, "glob of files to rewrite, relative to root")
	cmd.Flags().StringSlice("exclude", discover.DefaultExclude, "directory names to skip")
	cmd.Flags().StringArray("rule", nil, "apply only the named rule (repeatable)")
	cmd.Flags().Int("jobs", 0, "max parallel files (0=auto)")
	cmd.Flags().Bool("cache", false, "skip files recorded clean by a previous run")
	cmd.Flags().BoolP("verbose", "v", false, "also list unchanged files and per-rule fragment counts")
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().String("format", "text", "output format (text|json|yaml)")
}

// loadManifest resolves --config or the nearest fieldfix.toml above start.
// A missing manifest is not an error.
func loadManifest(cmd *cobra.Command, start string) (*config.Manifest, error) {
	explicit, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, err
	}
	m, ok, err := config.Discover(start, explicit)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Debug("no manifest found, using built-in rules", zap.String("start", start))
		return nil, nil
	}
	logger.Debug("manifest loaded", zap.String("path", m.Path))
	return m, nil
}

func resolveRunSettings(cmd *cobra.Command, args []string) (*runSettings, error) {
	start := "."
	if len(args) > 0 {
		start = args[0]
	}
	manifest, err := loadManifest(cmd, start)
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if manifest != nil {
		cfg = manifest.Config
	}

	root := start
	if len(args) == 0 && manifest != nil {
		root = manifest.RunRoot()
	}

	flags := cmd.Flags()
	pattern := cfg.Pattern()
	if flags.Changed("pattern") {
		if pattern, err = flags.GetString("pattern"); err != nil {
			return nil, err
		}
	}
	exclude := cfg.Exclude()
	if flags.Changed("exclude") {
		if exclude, err = flags.GetStringSlice("exclude"); err != nil {
			return nil, err
		}
	}
	matcher, err := discover.NewMatcher(root, pattern, exclude)
	if err != nil {
		return nil, err
	}

	names, err := flags.GetStringArray("rule")
	if err != nil {
		return nil, err
	}
	rules, err := selectRules(cfg, names)
	if err != nil {
		return nil, err
	}

	s := &runSettings{manifest: manifest, matcher: matcher, rules: rules, jobs: cfg.Run.Jobs, cache: cfg.Run.Cache}
	if flags.Changed("jobs") {
		if s.jobs, err = flags.GetInt("jobs"); err != nil {
			return nil, err
		}
		if s.jobs < 0 {
			return nil, fmt.Errorf("--jobs must not be negative")
		}
	}
	if flags.Changed("cache") {
		if s.cache, err = flags.GetBool("cache"); err != nil {
			return nil, err
		}
	}
	if err := readOutputFlags(cmd, &s.format, &s.quiet, &s.timings); err != nil {
		return nil, err
	}
	if s.verbose, err = flags.GetBool("verbose"); err != nil {
		return nil, err
	}
	if s.timings {
		s.timer = observ.NewTimer()
	}
	return s, nil
}

func readOutputFlags(cmd *cobra.Command, format *report.Format, quiet, timings *bool) error {
	*format = report.FormatText
	if cmd.Flags().Lookup("format") != nil {
		raw, err := cmd.Flags().GetString("format")
		if err != nil {
			return err
		}
		if *format, err = report.ParseFormat(raw); err != nil {
			return err
		}
	}
	var err error
	if *quiet, err = cmd.Root().PersistentFlags().GetBool("quiet"); err != nil {
		return err
	}
	*timings, err = cmd.Root().PersistentFlags().GetBool("timings")
	return err
}

// selectRules builds the configured rules, keeping only names when given.
// Unknown names are an error listing what is available.
func selectRules(cfg config.Config, names []string) ([]*rewrite.Rule, error) {
	specs, err := cfg.RuleSpecs()
	if err != nil {
		return nil, err
	}
	available := make([]string, len(specs))
	for i, s := range specs {
		available[i] = s.Name
	}
	for _, n := range names {
		if !slices.Contains(available, n) {
			return nil, fmt.Errorf("unknown rule %q (available: %s)", n, strings.Join(available, ", "))
		}
	}
	rules := make([]*rewrite.Rule, 0, len(specs))
	for _, spec := range specs {
		if len(names) > 0 && !slices.Contains(names, spec.Name) {
			continue
		}
		r, err := rewrite.NewRule(spec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (s *runSettings) listFiles(ctx context.Context) ([]string, error) {
	done := s.timer.Track("discover")
	files, err := s.matcher.Files(ctx)
	if err != nil {
		return nil, err
	}
	done(fmt.Sprintf("%d files", len(files)))
	logger.Debug("files discovered",
		zap.String("root", s.matcher.Root),
		zap.String("pattern", s.matcher.Pattern),
		zap.Int("count", len(files)))
	return files, nil
}

// batchOptions builds orchestrator options; the returned store is nil unless
// caching is enabled and must be saved after the run.
func (s *runSettings) batchOptions(dryRun, preview bool) (batch.Options, *cache.Store, error) {
	opts := batch.Options{
		Rules:   s.rules,
		DryRun:  dryRun,
		Preview: preview,
		Jobs:    s.jobs,
		BaseDir: s.matcher.Root,
		Logger:  logger,
		Timer:   s.timer,
	}
	if !s.cache {
		return opts, nil, nil
	}
	path, err := cache.DefaultPath(appName, s.matcher.Root)
	if err != nil {
		return opts, nil, err
	}
	store, err := cache.Open(path)
	if err != nil {
		// испорченный кеш не должен ломать запуск
		logger.Warn("cache unreadable, running without it", zap.String("path", path), zap.Error(err))
		return opts, nil, nil
	}
	opts.Cache = store
	return opts, store, nil
}

func saveCache(store *cache.Store) {
	if store == nil {
		return
	}
	if err := store.Save(); err != nil {
		logger.Warn("cache not saved", zap.String("path", store.Path()), zap.Error(err))
	}
}

// textOptions maps the output flags onto the text renderer; --quiet wins
// over --verbose.
func (s *runSettings) textOptions() report.TextOptions {
	return report.TextOptions{Quiet: s.quiet, Verbose: s.verbose && !s.quiet}
}

// writeBatchReport prints r in the selected format plus optional diffs.
func (s *runSettings) writeBatchReport(out io.Writer, r *batch.BatchReport, opts report.TextOptions, diff bool) error {
	if s.format != report.FormatText {
		return report.Write(out, s.format, r)
	}
	if diff {
		for _, f := range r.ChangedFiles() {
			if err := report.WriteDiff(out, f.Path, f.Before, f.After); err != nil {
				return err
			}
		}
	}
	if err := report.WriteText(out, r, opts); err != nil {
		return err
	}
	writeTimings(s.timings, s.timer)
	return nil
}

func writeTimings(enabled bool, timer *observ.Timer) {
	if enabled && timer != nil {
		fmt.Fprint(os.Stderr, timer.Summary())
	}
}

// execute runs the batch over files, through the progress view when useUI
// is set, and persists the cache afterwards.
func (s *runSettings) execute(ctx context.Context, files []string, dryRun, preview, useUI bool) (*batch.BatchReport, error) {
	opts, store, err := s.batchOptions(dryRun, preview)
	if err != nil {
		return nil, err
	}
	var rep *batch.BatchReport
	if useUI {
		rep, err = runBatchWithUI(ctx, appName, opts, files)
		if err != nil && rep != nil {
			logger.Warn("progress view failed", zap.Error(err))
			err = nil
		}
	} else {
		var orch *batch.Orchestrator
		if orch, err = batch.New(opts); err == nil {
			rep = orch.Run(ctx, files)
		}
	}
	if err != nil {
		return nil, err
	}
	saveCache(store)
	return rep, nil
}
