package cache

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "clean.mp")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h := sha256.Sum256([]byte("content"))
	if s.IsClean("a.ts", h, "d1") {
		t.Fatal("empty cache reports clean")
	}
	s.MarkClean("a.ts", h, "d1")
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.IsClean("a.ts", h, "d1") {
		t.Error("entry lost after reopen")
	}
	if reopened.IsClean("a.ts", h, "d2") {
		t.Error("different rule digest must miss")
	}
	if reopened.IsClean("a.ts", sha256.Sum256([]byte("other")), "d1") {
		t.Error("different content must miss")
	}
	if reopened.Len() != 1 {
		t.Errorf("Len = %d", reopened.Len())
	}
}

func TestStoreSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clean.mp")
	data, err := msgpack.Marshal(&payload{Schema: schemaVersion + 1, Entries: map[string]entry{"a": {Digest: "x"}}})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("entries from a foreign schema were kept: %d", s.Len())
	}
}

func TestStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clean.mp")
	if err := os.WriteFile(path, []byte{0xc1}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSaveSkipsCleanStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clean.mp")
	s, _ := Open(path)
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("unchanged cache was written: %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)
	p1, err := DefaultPath("fieldfix", "/a")
	if err != nil {
		t.Fatal(err)
	}
	p2, _ := DefaultPath("fieldfix", "/b")
	if p1 == p2 {
		t.Error("different roots share a cache file")
	}
	if !strings.HasPrefix(p1, filepath.Join(dir, "fieldfix")) {
		t.Errorf("path %q not under XDG_CACHE_HOME", p1)
	}
}
