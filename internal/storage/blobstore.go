// Package storage is the per-identity persistent blob store (C2):
// a rooted directory of JSON files, one per logical path, written
// atomically via temp-file-and-rename.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
)

// BlobStore is a single node's data/<ip-port>/ directory.
type BlobStore struct {
	root string
}

// Open roots a BlobStore at baseDir/<user's filename form>, creating it
// if necessary.
func Open(baseDir string, owner identity.User) (*BlobStore, error) {
	root := filepath.Join(baseDir, owner.Filename())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &BlobStore{root: root}, nil
}

func (s *BlobStore) path(parts ...string) string {
	return filepath.Join(append([]string{s.root}, parts...)...)
}

// Exists reports whether a blob exists at the given relative path.
func (s *BlobStore) Exists(parts ...string) bool {
	_, err := os.Stat(s.path(parts...))
	return err == nil
}

// CreateDir ensures a relative subdirectory exists.
func (s *BlobStore) CreateDir(parts ...string) error {
	return os.MkdirAll(s.path(parts...), 0o755)
}

// Read unmarshals the JSON blob at the given relative path into v.
func (s *BlobStore) Read(v interface{}, parts ...string) error {
	data, err := os.ReadFile(s.path(parts...))
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Join(parts...), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Join(parts...), err)
	}
	return nil
}

// Write marshals v as JSON and writes it atomically (temp file + rename)
// to the given relative path.
func (s *BlobStore) Write(v interface{}, parts ...string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Join(parts...), err)
	}

	target := s.path(parts...)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", target, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", target, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename into place %s: %w", target, err)
	}
	return nil
}

// Delete removes the blob at the given path. A missing blob is not an error.
func (s *BlobStore) Delete(parts ...string) error {
	err := os.Remove(s.path(parts...))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", filepath.Join(parts...), err)
	}
	return nil
}
