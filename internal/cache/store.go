package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when payload format changes
const schemaVersion uint16 = 1

type entry struct {
	Hash   [32]byte `msgpack:"hash"`
	Digest string   `msgpack:"digest"`
	Seen   int64    `msgpack:"seen"`
}

type payload struct {
	Schema  uint16           `msgpack:"schema"`
	Entries map[string]entry `msgpack:"entries"`
}

// Store remembers, per path, the content hash last seen clean and the
// fingerprint of the rule set that found it clean. Thread-safe for
// concurrent access.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]entry
	dirty   bool
}

// DefaultPath returns the cache file for a project root under
// $XDG_CACHE_HOME (or ~/.cache).
func DefaultPath(app, root string) (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(abs))
	// один файл на корень проекта
	return filepath.Join(base, app, "clean", hex.EncodeToString(sum[:8])+".mp"), nil
}

// Open loads the cache at path. A missing file or a payload written by a
// different schema version yields an empty cache.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]entry)}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()

	var p payload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", path, err)
	}
	if p.Schema == schemaVersion && p.Entries != nil {
		s.entries = p.Entries
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// IsClean reports whether path was last seen clean with this exact content
// hash under the same rule fingerprint.
func (s *Store) IsClean(path string, hash [32]byte, digest string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[path]
	return ok && e.Hash == hash && e.Digest == digest
}

// MarkClean records path as clean.
func (s *Store) MarkClean(path string, hash [32]byte, digest string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[path] = entry{Hash: hash, Digest: digest, Seen: time.Now().Unix()}
	s.dirty = true
}

// Len returns the number of remembered paths.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear forgets every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
	s.dirty = true
}

// Save writes the cache back if it changed since it was opened.
func (s *Store) Save() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(s.path), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	err = msgpack.NewEncoder(f).Encode(&payload{Schema: schemaVersion, Entries: s.entries})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// Атомарная замена
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.dirty = false
	return nil
}
