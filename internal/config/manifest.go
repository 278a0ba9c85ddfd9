// Package config finds and decodes the fieldfix.toml manifest.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"fieldfix/internal/discover"
	"fieldfix/internal/migrate"
	"fieldfix/internal/rewrite"
	"fieldfix/internal/scan"
)

// FileName is the manifest looked up from the working directory upwards.
const FileName = "fieldfix.toml"

// DefaultLineComment applies to a [[rule]] that sets quotes but not
// line_comment. An explicit empty line_comment disables comment handling.
const DefaultLineComment = "//"

// Manifest is a decoded manifest together with where it was found.
type Manifest struct {
	Path   string
	Root   string
	Config Config

	meta toml.MetaData
}

// Config mirrors the manifest layout.
type Config struct {
	Run     RunConfig     `toml:"run"`
	Rules   []RuleConfig  `toml:"rule"`
	Patches []PatchConfig `toml:"patch"`
}

type RunConfig struct {
	Root    string   `toml:"root"`
	Pattern string   `toml:"pattern"`
	Exclude []string `toml:"exclude"`
	Jobs    int      `toml:"jobs"`
	Cache   bool     `toml:"cache"`
}

type RuleConfig struct {
	Name        string        `toml:"name"`
	Prefix      string        `toml:"prefix"`
	Open        string        `toml:"open"`
	Close       string        `toml:"close"`
	Suffix      string        `toml:"suffix"`
	Marker      string        `toml:"marker"`
	Indent      string        `toml:"indent"`
	Separator   string        `toml:"separator"`
	Quotes      string        `toml:"quotes"`
	LineComment *string       `toml:"line_comment"`
	Fields      []FieldConfig `toml:"field"`
}

type FieldConfig struct {
	Name  string `toml:"name"`
	Value string `toml:"value"`
}

type PatchConfig struct {
	Path    string `toml:"path"`
	Label   string `toml:"label"`
	Search  string `toml:"search"`
	Replace string `toml:"replace"`
}

// Find walks from startDir up to the filesystem root looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads explicit when it is set, otherwise the nearest manifest
// above startDir. ok is false when no manifest exists.
func Discover(startDir, explicit string) (m *Manifest, ok bool, err error) {
	path := explicit
	if path == "" {
		path, ok, err = Find(startDir)
		if err != nil || !ok {
			return nil, ok, err
		}
	}
	m, err = Load(path)
	if err != nil {
		return nil, true, err
	}
	return m, true, nil
}

// Load decodes and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("run", "jobs") && cfg.Run.Jobs < 0 {
		return nil, fmt.Errorf("%s: [run].jobs must not be negative", path)
	}
	if meta.IsDefined("run", "pattern") && strings.TrimSpace(cfg.Run.Pattern) == "" {
		return nil, fmt.Errorf("%s: [run].pattern is empty", path)
	}
	if _, err := cfg.RuleSpecs(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i, p := range cfg.Patches {
		if strings.TrimSpace(p.Path) == "" || p.Search == "" {
			return nil, fmt.Errorf("%s: [[patch]] #%d needs path and search", path, i+1)
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Manifest{Path: abs, Root: filepath.Dir(abs), Config: cfg, meta: meta}, nil
}

// Has reports whether the manifest set key explicitly, e.g. Has("run", "jobs").
func (m *Manifest) Has(key ...string) bool {
	if m == nil {
		return false
	}
	return m.meta.IsDefined(key...)
}

// RunRoot resolves [run].root against the manifest directory.
func (m *Manifest) RunRoot() string {
	if m == nil {
		return "."
	}
	root := strings.TrimSpace(m.Config.Run.Root)
	if root == "" {
		return m.Root
	}
	if filepath.IsAbs(root) {
		return root
	}
	return filepath.Join(m.Root, filepath.FromSlash(root))
}

// Pattern returns the configured glob or the default one.
func (c Config) Pattern() string {
	if p := strings.TrimSpace(c.Run.Pattern); p != "" {
		return p
	}
	return discover.DefaultPattern
}

// Exclude returns the configured directory exclusions or the defaults.
func (c Config) Exclude() []string {
	if c.Run.Exclude != nil {
		return c.Run.Exclude
	}
	return discover.DefaultExclude
}

// RuleSpecs converts [[rule]] tables. Without any, the built-in rules apply.
func (c Config) RuleSpecs() ([]rewrite.Spec, error) {
	if len(c.Rules) == 0 {
		return rewrite.Builtins(), nil
	}
	specs := make([]rewrite.Spec, 0, len(c.Rules))
	seen := make(map[string]bool, len(c.Rules))
	var errs []error
	for i, rc := range c.Rules {
		spec, err := rc.spec()
		if err != nil {
			errs = append(errs, fmt.Errorf("[[rule]] #%d: %w", i+1, err))
			continue
		}
		if seen[spec.Name] {
			errs = append(errs, fmt.Errorf("[[rule]] #%d: duplicate name %q", i+1, spec.Name))
			continue
		}
		seen[spec.Name] = true
		if _, err := rewrite.NewRule(spec); err != nil {
			errs = append(errs, fmt.Errorf("[[rule]] #%d: %w", i+1, err))
			continue
		}
		specs = append(specs, spec)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return specs, nil
}

func (rc RuleConfig) spec() (rewrite.Spec, error) {
	open, err := delimiter("open", rc.Open, '{')
	if err != nil {
		return rewrite.Spec{}, err
	}
	closing, err := delimiter("close", rc.Close, '}')
	if err != nil {
		return rewrite.Spec{}, err
	}
	fields := make([]rewrite.FieldAssignment, len(rc.Fields))
	for i, f := range rc.Fields {
		fields[i] = rewrite.FieldAssignment{Name: f.Name, Value: f.Value}
	}
	marker := rc.Marker
	if marker == "" && len(fields) > 0 {
		marker = fields[0].Name
	}
	// кавычки без явного line_comment: считаем язык C-подобным
	comment := ""
	switch {
	case rc.LineComment != nil:
		comment = *rc.LineComment
	case rc.Quotes != "":
		comment = DefaultLineComment
	}
	return rewrite.Spec{
		Name: rc.Name,
		Shape: scan.Shape{
			Prefix:      rc.Prefix,
			Open:        open,
			Close:       closing,
			Suffix:      rc.Suffix,
			Quotes:      rc.Quotes,
			LineComment: comment,
		},
		Marker:     marker,
		Fields:     fields,
		IndentUnit: rc.Indent,
		Separator:  rc.Separator,
	}, nil
}

func delimiter(key, v string, def byte) (byte, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 1:
		return v[0], nil
	default:
		return 0, fmt.Errorf("%s must be a single ASCII character, got %q", key, v)
	}
}

// PatchTable returns the built-in insertId table extended with [[patch]]
// entries.
func (c Config) PatchTable() migrate.Table {
	extra := make([]migrate.Patch, len(c.Patches))
	for i, p := range c.Patches {
		extra[i] = migrate.Patch{Path: p.Path, Label: p.Label, Search: p.Search, Replace: p.Replace}
		if extra[i].Label == "" {
			extra[i].Label = fmt.Sprintf("patch #%d", i+1)
		}
	}
	return migrate.InsertIDTable().With(extra...)
}
