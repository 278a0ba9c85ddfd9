package fuzztests

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

const (
	maxSeedBytes = 64 << 10 // 64 KiB, ограничение для тестового корпуса
)

func addCorpusSeeds(f *testing.F) {
	addTestdataSeeds(f)
	addShapeSeeds(f)
}

func addTestdataSeeds(f *testing.F) {
	root := filepath.Join("..", "..", "testdata")
	if _, err := os.Stat(root); err != nil {
		return
	}
	// проходим по дереву testdata, добавляем все *.ts файлы
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || filepath.Ext(path) != ".ts" {
			return nil
		}
		// #nosec G304 -- path comes from repository testdata walk
		src, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		f.Add(clampSeed(src))
		return nil
	})
}

// addShapeSeeds covers the edge cases of the balanced scan directly.
func addShapeSeeds(f *testing.F) {
	for _, s := range []string{
		"",
		".insert(tenants).values({});",
		".insert(tenants).values({ a: 1 });",
		".insert(tenants).values({\n  a: { b: 1 },\n});",
		".insert(tenants).values({ a: '}' });",
		".insert(tenants).values({ a: 1, // }\n});",
		".insert(tenants).values({ a: 1 }",
		".insert(tenants).values({ a: { b: 1 });",
		".insert(tenants).values(x);",
		".insert(tenants).values({ emailVerified: true });",
		".insert(tenants).values({ s: `${\"}\"}` });",
		".insert(tenants).values(.insert(tenants).values({}));",
	} {
		f.Add([]byte(s))
	}
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}
