// Package store persists string-keyed record maps as whole JSON files.
// Every save replaces the backing file atomically (temp file in the same
// directory, fsync, rename), so a crash mid-write never leaves a partial
// or truncated database on disk.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// File is a single JSON database file.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

// Load unmarshals the file into v. A missing file is not an error: v is
// left untouched so callers start from an empty map on first run.
func (f *File) Load(v any) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Save marshals v and atomically replaces the backing file.
func (f *File) Save(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
