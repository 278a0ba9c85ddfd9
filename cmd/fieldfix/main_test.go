package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantFixture = `it('creates tenant', async () => {
  await db.insert(tenants).values({
    name: 'Acme',
    slug: 'acme',
  });
});
`

func init() {
	color.NoColor = true
}

// resetFlags возвращает флаги к значениям по умолчанию между вызовами
// глобального rootCmd.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			def := []string{}
			if trimmed := strings.Trim(f.DefValue, "[]"); trimmed != "" {
				def = strings.Split(trimmed, ",")
			}
			_ = sv.Replace(def)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestCheckThenRunThenCheck(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"__tests__/tenant.test.ts":     tenantFixture,
		"__tests__/other.ts":           tenantFixture,
		"node_modules/pkg/lib.test.ts": tenantFixture,
	})
	target := filepath.Join(dir, "__tests__", "tenant.test.ts")

	out, err := execute(t, "check", dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errWouldChange), "err = %v", err)
	assert.Contains(t, out, "Would fix:")
	assert.Equal(t, tenantFixture, readFile(t, target), "check must not write")

	out, err = execute(t, "run", dir, "--ui", "off")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ __tests__/tenant.test.ts")
	got := readFile(t, target)
	assert.Contains(t, got, "emailVerified: true")
	assert.Contains(t, got, "emailVerifiedAt: new Date()")

	// вне шаблона и в node_modules ничего не меняется
	assert.Equal(t, tenantFixture, readFile(t, filepath.Join(dir, "__tests__", "other.ts")))
	assert.Equal(t, tenantFixture, readFile(t, filepath.Join(dir, "node_modules", "pkg", "lib.test.ts")))

	_, err = execute(t, "check", dir)
	assert.NoError(t, err)
}

func TestRunVerboseListsUnchangedFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.test.ts": tenantFixture,
		"b.test.ts": "it('x', () => {});\n",
	})
	out, err := execute(t, "check", dir, "--verbose")
	require.Error(t, err)
	assert.Contains(t, out, "· b.test.ts unchanged")
	assert.Contains(t, out, "tenant-email-verified modified=1 unchanged=0 unmatched=0")

	out, err = execute(t, "check", dir)
	require.Error(t, err)
	assert.NotContains(t, out, "b.test.ts")

	// --quiet важнее --verbose
	out, err = execute(t, "--quiet", "check", dir, "-v")
	require.Error(t, err)
	assert.NotContains(t, out, "b.test.ts")
	assert.Contains(t, out, "Would fix:")
}

func TestRunDryRunJSON(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.test.ts": tenantFixture})
	out, err := execute(t, "run", dir, "--dry-run", "--format", "json")
	require.NoError(t, err)

	var rep struct {
		DryRun bool `json:"dry_run"`
		Fixed  int  `json:"fixed"`
		Total  int  `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep), out)
	assert.True(t, rep.DryRun)
	assert.Equal(t, 1, rep.Fixed)
	assert.Equal(t, 1, rep.Total)
	assert.Equal(t, tenantFixture, readFile(t, filepath.Join(dir, "a.test.ts")))
}

func TestManifestRule(t *testing.T) {
	manifest := `[run]
pattern = "**/*.seed.ts"

[[rule]]
name = "user-active"
prefix = "createUser("
suffix = ");"
  [[rule.field]]
  name = "active"
  value = "true"
`
	dir := writeTree(t, map[string]string{
		"fieldfix.toml":     manifest,
		"db/users.seed.ts":  "createUser({ name: 'a' });\n",
		"db/tenant.test.ts": tenantFixture,
	})
	cfg := filepath.Join(dir, "fieldfix.toml")

	out, err := execute(t, "--config", cfg, "run", "--ui", "off", "--quiet")
	require.NoError(t, err, out)
	assert.Contains(t, readFile(t, filepath.Join(dir, "db", "users.seed.ts")), "active: true")
	assert.Equal(t, tenantFixture, readFile(t, filepath.Join(dir, "db", "tenant.test.ts")))

	out, err = execute(t, "--config", cfg, "rules", "--format", "json")
	require.NoError(t, err)
	var rules []ruleInfo
	require.NoError(t, json.Unmarshal([]byte(out), &rules), out)
	require.Len(t, rules, 1)
	assert.Equal(t, "user-active", rules[0].Name)
	assert.Equal(t, "active", rules[0].Marker)

	_, err = execute(t, "--config", cfg, "run", "--rule", "missing", "--ui", "off")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown rule "missing"`)
}

func TestRunReportsFileErrors(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"ok.test.ts":  tenantFixture,
		"bad.test.ts": "\xff\xfe broken",
	})
	out, err := execute(t, "run", dir, "--ui", "off")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	assert.Contains(t, out, "✗ bad.test.ts")
	assert.Contains(t, readFile(t, filepath.Join(dir, "ok.test.ts")), "emailVerified: true")
}

func TestMigrateReportsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "migrate", dir, "--dry-run")
	require.Error(t, err)
	assert.Contains(t, out, "Would patch:")
	assert.Contains(t, out, "timeclock.fixes.test.ts")
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var p versionPayload
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "fieldfix", p.Tool)
	assert.NotEmpty(t, p.Version)
}

func TestInvalidGlobalFlags(t *testing.T) {
	_, err := execute(t, "--color", "sometimes", "rules")
	assert.ErrorContains(t, err, "invalid --color")
	_, err = execute(t, "--log-level", "loud", "rules")
	assert.ErrorContains(t, err, "invalid --log-level")
}

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in      string
		want    uiMode
		wantErr bool
	}{
		{"", uiModeAuto, false},
		{"AUTO", uiModeAuto, false},
		{" on ", uiModeOn, false},
		{"off", uiModeOff, false},
		{"maybe", "", true},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("readUIMode(%q) = %q, %v", tt.in, got, err)
		}
	}
	if shouldUseTUI(uiModeOn, false) {
		t.Error("machine-readable output must not use the TUI")
	}
	if !shouldUseTUI(uiModeOn, true) || shouldUseTUI(uiModeOff, true) {
		t.Error("explicit modes not honored")
	}
}
