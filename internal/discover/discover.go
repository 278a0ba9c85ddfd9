// Package discover lists the files a run operates on: everything under a root
// whose slash-separated relative path matches a `**` glob, minus excluded
// directory names.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPattern selects test sources.
const DefaultPattern = "**/*.test.ts"

// DefaultExclude lists directory names never descended into.
var DefaultExclude = []string{"node_modules", ".git", "dist", "build", "coverage"}

// ErrBadPattern is returned for a glob doublestar cannot parse.
var ErrBadPattern = errors.New("invalid glob pattern")

// Matcher decides whether a path under Root is selected.
type Matcher struct {
	Root    string
	Pattern string
	Exclude []string
}

// NewMatcher validates pattern and fills defaults.
func NewMatcher(root, pattern string, exclude []string) (Matcher, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return Matcher{}, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}
	if exclude == nil {
		exclude = DefaultExclude
	}
	if root == "" {
		root = "."
	}
	return Matcher{Root: filepath.Clean(root), Pattern: pattern, Exclude: exclude}, nil
}

// Excluded reports whether a directory with this base name is skipped.
func (m Matcher) Excluded(name string) bool {
	return slices.Contains(m.Exclude, name)
}

// Match reports whether path (absolute or relative to the working directory)
// is selected. Paths outside Root and paths inside excluded directories never
// match.
func (m Matcher) Match(path string) bool {
	rel, err := filepath.Rel(m.Root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || len(rel) >= 3 && rel[:3] == "../" {
		return false
	}
	dir := filepath.Dir(filepath.FromSlash(rel))
	for dir != "." && dir != string(filepath.Separator) {
		if m.Excluded(filepath.Base(dir)) {
			return false
		}
		dir = filepath.Dir(dir)
	}
	ok, err := doublestar.Match(m.Pattern, rel)
	return err == nil && ok
}

// Files walks Root and returns matching regular files in sorted order.
func (m Matcher) Files(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(m.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != m.Root && m.Excluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if m.Match(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Сортируем для детерминированного порядка
	sort.Strings(files)
	return files, nil
}

// Files is a shorthand for NewMatcher followed by Matcher.Files.
func Files(ctx context.Context, root, pattern string, exclude []string) ([]string, error) {
	m, err := NewMatcher(root, pattern, exclude)
	if err != nil {
		return nil, err
	}
	return m.Files(ctx)
}
