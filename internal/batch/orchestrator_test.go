package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fieldfix/internal/rewrite"
	"fieldfix/internal/scan"
	"fieldfix/internal/source"
)

// memFS: файловая система в памяти для тестов оркестратора.
type memFS struct {
	mu       sync.Mutex
	files    map[string][]byte
	failRead map[string]bool
	failW    map[string]bool
	panics   map[string]bool
	writes   int
}

func newMemFS(files map[string]string) *memFS {
	m := &memFS{
		files:    make(map[string][]byte, len(files)),
		failRead: map[string]bool{},
		failW:    map[string]bool{},
		panics:   map[string]bool{},
	}
	for k, v := range files {
		m.files[k] = []byte(v)
	}
	return m
}

func (m *memFS) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panics[path] {
		panic("boom")
	}
	if m.failRead[path] {
		return nil, fs.ErrPermission
	}
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (m *memFS) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failW[path] {
		return fs.ErrPermission
	}
	m.writes++
	m.files[path] = append([]byte(nil), data...)
	return nil
}

func (m *memFS) get(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.files[path])
}

type mapCache struct {
	mu    sync.Mutex
	clean map[string]string
}

func (c *mapCache) key(path string, hash [32]byte) string {
	return fmt.Sprintf("%s|%x", path, hash)
}

func (c *mapCache) IsClean(path string, hash [32]byte, digest string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clean[c.key(path, hash)] == digest
}

func (c *mapCache) MarkClean(path string, hash [32]byte, digest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clean == nil {
		c.clean = map[string]string{}
	}
	c.clean[c.key(path, hash)] = digest
}

const (
	needsFix = "await db.insert(tenants).values({ name: 'Foo', slug: 'foo' });\n"
	fixed    = "await db.insert(tenants).values({ name: 'Foo', slug: 'foo',\n" +
		"  emailVerified: true,\n" +
		"  emailVerifiedAt: new Date(),\n" +
		"});\n"
	clean = "await db.insert(tenants).values({ id: 1, emailVerified: true });\n"
)

func tenantRule(t *testing.T) *rewrite.Rule {
	t.Helper()
	r, err := rewrite.NewRule(rewrite.TenantEmailVerified())
	require.NoError(t, err)
	return r
}

func newOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	if len(opts.Rules) == 0 {
		opts.Rules = []*rewrite.Rule{tenantRule(t)}
	}
	o, err := New(opts)
	require.NoError(t, err)
	return o
}

func TestRunRewritesAndIsolatesErrors(t *testing.T) {
	mfs := newMemFS(map[string]string{
		"a.test.ts": needsFix,
		"b.test.ts": clean,
		"c.test.ts": needsFix,
	})
	mfs.failRead["b.test.ts"] = true

	o := newOrchestrator(t, Options{FS: mfs, Jobs: 1})
	report := o.Run(context.Background(), []string{"c.test.ts", "b.test.ts", "a.test.ts", "missing.test.ts"})

	require.Equal(t, 4, report.Total)
	assert.Equal(t, 2, report.Fixed)
	assert.Equal(t, 2, report.Errored)
	assert.Equal(t, 0, report.Skipped)
	assert.NotEmpty(t, report.RunID)

	paths := make([]string, 0, len(report.Files))
	for _, f := range report.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"a.test.ts", "b.test.ts", "c.test.ts", "missing.test.ts"}, paths)

	assert.ErrorIs(t, report.Files[1].Err, ErrRead)
	assert.ErrorIs(t, report.Files[1].Err, fs.ErrPermission)
	assert.ErrorIs(t, report.Files[3].Err, fs.ErrNotExist)
	assert.Equal(t, fixed, mfs.get("a.test.ts"))
	assert.Equal(t, fixed, mfs.get("c.test.ts"))
	assert.True(t, report.HasErrors())
}

func TestRunIsIdempotent(t *testing.T) {
	mfs := newMemFS(map[string]string{"a.test.ts": needsFix})
	o := newOrchestrator(t, Options{FS: mfs, Jobs: 1})

	first := o.Run(context.Background(), []string{"a.test.ts"})
	require.Equal(t, 1, first.Fixed)

	second := o.Run(context.Background(), []string{"a.test.ts"})
	assert.Equal(t, 0, second.Fixed)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, fixed, mfs.get("a.test.ts"))
	assert.Equal(t, 1, mfs.writes)
}

func TestDryRunNeverWrites(t *testing.T) {
	mfs := newMemFS(map[string]string{"a.test.ts": needsFix, "b.test.ts": clean})
	o := newOrchestrator(t, Options{FS: mfs, DryRun: true, Preview: true})

	report := o.Run(context.Background(), []string{"a.test.ts", "b.test.ts"})
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Fixed)
	assert.Equal(t, 0, mfs.writes)
	assert.Equal(t, needsFix, mfs.get("a.test.ts"))

	changed := report.ChangedFiles()
	require.Len(t, changed, 1)
	assert.Equal(t, needsFix, changed[0].Before)
	assert.Equal(t, fixed, changed[0].After)
}

func TestParallelMatchesSequential(t *testing.T) {
	defer goleak.VerifyNone(t)

	files := map[string]string{}
	var paths []string
	for i := range 40 {
		name := fmt.Sprintf("f%02d.test.ts", i)
		switch i % 3 {
		case 0:
			files[name] = needsFix
		case 1:
			files[name] = clean
		default:
			files[name] = "db.insert(tenants).values([{ id: 1 }]);\n"
		}
		paths = append(paths, name)
	}

	normalize := func(r *BatchReport) *BatchReport {
		r.RunID = ""
		for i := range r.Files {
			r.Files[i].Err = nil
		}
		return r
	}

	seq := newOrchestrator(t, Options{FS: newMemFS(files), Jobs: 1, DryRun: true})
	par := newOrchestrator(t, Options{FS: newMemFS(files), Jobs: 8, DryRun: true})

	want := normalize(seq.Run(context.Background(), paths))
	got := normalize(par.Run(context.Background(), paths))
	require.Equal(t, want, got)
	assert.Equal(t, 14, got.Fixed)
}

func TestRunDeduplicatesPaths(t *testing.T) {
	mfs := newMemFS(map[string]string{"a.test.ts": needsFix})
	o := newOrchestrator(t, Options{FS: mfs})
	report := o.Run(context.Background(), []string{"a.test.ts", "./a.test.ts", "a.test.ts"})
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, mfs.writes)
}

func TestRunPreservesBOMAndCRLF(t *testing.T) {
	in := "\ufeffdb.insert(tenants).values({ id: 1 });\r\n"
	want := "\ufeffdb.insert(tenants).values({ id: 1,\r\n" +
		"  emailVerified: true,\r\n" +
		"  emailVerifiedAt: new Date(),\r\n" +
		"});\r\n"
	mfs := newMemFS(map[string]string{"a.test.ts": in})
	o := newOrchestrator(t, Options{FS: mfs})

	report := o.Run(context.Background(), []string{"a.test.ts"})
	require.Equal(t, 1, report.Fixed)
	assert.Equal(t, want, mfs.get("a.test.ts"))
}

func TestRunRejectsInvalidUTF8(t *testing.T) {
	mfs := newMemFS(map[string]string{"bin.test.ts": "\xff\xfe\x00"})
	o := newOrchestrator(t, Options{FS: mfs})

	report := o.Run(context.Background(), []string{"bin.test.ts"})
	require.Equal(t, 1, report.Errored)
	assert.ErrorIs(t, report.Files[0].Err, ErrRead)
	assert.ErrorIs(t, report.Files[0].Err, source.ErrNotUTF8)
}

func TestRunReportsWriteFailure(t *testing.T) {
	mfs := newMemFS(map[string]string{"a.test.ts": needsFix})
	mfs.failW["a.test.ts"] = true
	o := newOrchestrator(t, Options{FS: mfs})

	report := o.Run(context.Background(), []string{"a.test.ts"})
	require.Equal(t, 1, report.Errored)
	assert.False(t, report.Files[0].Changed)
	assert.ErrorIs(t, report.Files[0].Err, ErrWrite)
}

func TestRunRecoversPanics(t *testing.T) {
	mfs := newMemFS(map[string]string{"a.test.ts": needsFix, "b.test.ts": needsFix})
	mfs.panics["a.test.ts"] = true
	o := newOrchestrator(t, Options{FS: mfs, Jobs: 2})

	report := o.Run(context.Background(), []string{"a.test.ts", "b.test.ts"})
	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, 1, report.Fixed)
	assert.Contains(t, report.Files[0].Error, "boom")
}

func TestRunCanceledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	mfs := newMemFS(map[string]string{"a.test.ts": needsFix, "b.test.ts": needsFix})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, jobs := range []int{1, 4} {
		o := newOrchestrator(t, Options{FS: mfs, Jobs: jobs})
		report := o.Run(ctx, []string{"a.test.ts", "b.test.ts"})
		require.Equal(t, 2, report.Total)
		assert.Equal(t, 2, report.Errored)
		for _, f := range report.Files {
			assert.ErrorIs(t, f.Err, context.Canceled)
		}
	}
	assert.Equal(t, 0, mfs.writes)
}

func TestRunUsesCache(t *testing.T) {
	mfs := newMemFS(map[string]string{"a.test.ts": needsFix, "b.test.ts": clean})
	cache := &mapCache{}
	o := newOrchestrator(t, Options{FS: mfs, Cache: cache})

	first := o.Run(context.Background(), []string{"a.test.ts", "b.test.ts"})
	require.Equal(t, 1, first.Fixed)
	for _, f := range first.Files {
		assert.False(t, f.Cached, f.Path)
	}

	second := o.Run(context.Background(), []string{"a.test.ts", "b.test.ts"})
	for _, f := range second.Files {
		assert.True(t, f.Cached, f.Path)
	}
	assert.Equal(t, 2, second.Skipped)

	// другой набор правил не должен попадать в кэш
	spec := rewrite.TenantEmailVerified()
	spec.Name = "other"
	other, err := rewrite.NewRule(spec)
	require.NoError(t, err)
	o2 := newOrchestrator(t, Options{FS: mfs, Cache: cache, Rules: []*rewrite.Rule{other}})
	third := o2.Run(context.Background(), []string{"b.test.ts"})
	assert.False(t, third.Files[0].Cached)
}

func TestRunFindingsAndCounts(t *testing.T) {
	text := "x.insert(tenants).values({ id: 1 });\n\ny.insert(tenants).values([]);\n"
	mfs := newMemFS(map[string]string{"a.test.ts": text})
	o := newOrchestrator(t, Options{FS: mfs, DryRun: true})

	report := o.Run(context.Background(), []string{"a.test.ts"})
	out := report.Files[0]
	require.Len(t, out.Rules, 1)
	assert.Equal(t, RuleCounts{Rule: "tenant-email-verified", Modified: 1, Unmatched: 1}, out.Rules[0])
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "SCN1002", out.Findings[0].Code)
	assert.Equal(t, uint32(3), out.Findings[0].Line)
	assert.Equal(t, uint32(2), out.Findings[0].Col)
	assert.Equal(t, "y.insert(tenants).values([]);", out.Findings[0].Source)
}

func TestRunChainsRulesInOrder(t *testing.T) {
	shape := func(prefix string) scan.Shape {
		return scan.Shape{Prefix: prefix, Open: '{', Close: '}', Suffix: ");"}
	}
	mustRule := func(spec rewrite.Spec) *rewrite.Rule {
		r, err := rewrite.NewRule(spec)
		require.NoError(t, err)
		return r
	}
	first := mustRule(rewrite.Spec{
		Name:   "a",
		Shape:  shape("X("),
		Marker: "foo",
		Fields: []rewrite.FieldAssignment{{Name: "foo", Value: "1"}, {Name: "bar", Value: "2"}},
	})

	tests := []struct {
		name     string
		second   rewrite.Spec
		in       string
		want     string
		counts   []RuleCounts
		findings []Finding
	}{
		{
			name:   "later rule sees injected marker",
			second: rewrite.Spec{Name: "b", Shape: shape("X("), Marker: "bar", Fields: []rewrite.FieldAssignment{{Name: "bar", Value: "3"}}},
			in:     "X({ id: 1 });\n",
			want:   "X({ id: 1,\n  foo: 1,\n  bar: 2,\n});\n",
			counts: []RuleCounts{{Rule: "a", Modified: 1}, {Rule: "b", Unchanged: 1}},
		},
		{
			name:   "findings point into rewritten text",
			second: rewrite.Spec{Name: "b", Shape: shape("Y("), Marker: "bar", Fields: []rewrite.FieldAssignment{{Name: "bar", Value: "3"}}},
			in:     "X({ id: 1 });\nY([]);\n",
			want:   "X({ id: 1,\n  foo: 1,\n  bar: 2,\n});\nY([]);\n",
			counts: []RuleCounts{{Rule: "a", Modified: 1}, {Rule: "b", Unmatched: 1}},
			// во входном файле Y стоит на второй строке, правило b видит её пятой
			findings: []Finding{{Rule: "b", Code: "SCN1002", Severity: "WARNING", Line: 5, Col: 1, Source: "Y([]);"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mfs := newMemFS(map[string]string{"a.test.ts": tt.in})
			o := newOrchestrator(t, Options{FS: mfs, Rules: []*rewrite.Rule{first, mustRule(tt.second)}})

			report := o.Run(context.Background(), []string{"a.test.ts"})
			out := report.Files[0]
			require.NoError(t, out.Err)
			assert.True(t, out.Changed)
			assert.Equal(t, tt.want, mfs.get("a.test.ts"))
			assert.Equal(t, tt.counts, out.Rules)

			require.Len(t, out.Findings, len(tt.findings))
			for i, want := range tt.findings {
				got := out.Findings[i]
				got.Message = ""
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestRunEmitsEvents(t *testing.T) {
	mfs := newMemFS(map[string]string{"a.test.ts": needsFix, "b.test.ts": clean})
	var mu sync.Mutex
	var events []Event
	sink := SinkFunc(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	o := newOrchestrator(t, Options{FS: mfs, Sink: sink, Jobs: 2})
	o.Run(context.Background(), []string{"a.test.ts", "b.test.ts"})

	var done []string
	for _, e := range events {
		if e.Status == StatusDone {
			done = append(done, e.File)
		}
	}
	sort.Strings(done)
	assert.Equal(t, []string{"a.test.ts", "b.test.ts"}, done)
	assert.Len(t, events, 6)
}

func TestRelativePaths(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "repo")
	path := filepath.Join(root, "server", "a.test.ts")
	mfs := newMemFS(map[string]string{path: clean})
	o := newOrchestrator(t, Options{FS: mfs, BaseDir: root})
	report := o.Run(context.Background(), []string{path})
	assert.Equal(t, "server/a.test.ts", report.Files[0].Path)

	other := filepath.Join(root, "server", "0.test.ts")
	assert.Equal(t, []string{"server/0.test.ts", "server/a.test.ts"}, o.DisplayNames([]string{path, other, path}))
}

func TestNewRequiresRules(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.Is(err, ErrNoRules))
}

func TestOSFileSystemWritePreservesMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "a.test.ts")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	var ofs OSFileSystem
	require.NoError(t, ofs.WriteFile(path, []byte("new")))

	data, err := ofs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}
