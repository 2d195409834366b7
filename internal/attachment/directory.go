// Package attachment manages the per-experiment file directories and keeps
// the cached file count in the metadata store consistent with what is
// actually on disk.
package attachment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// NotesFilename is the free-text notes file present in every attachment
// directory. It is never counted as an uploaded file.
const NotesFilename = "READ_ME.txt"

// Directory is the filesystem layer: one subdirectory per experiment key
// under a configured root.
type Directory struct {
	root string
}

func NewDirectory(root string) (*Directory, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Directory{root: root}, nil
}

func (d *Directory) Root() string { return d.root }

// path resolves the directory for key, rejecting anything that could
// escape the root.
func (d *Directory) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid experiment key %q", key)
	}
	return filepath.Join(d.root, key), nil
}

// EnsureInitialized creates the experiment's directory and a default notes
// file if either is missing. Idempotent.
func (d *Directory) EnsureInitialized(key string) error {
	dir, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	notes := filepath.Join(dir, NotesFilename)
	if _, err := os.Stat(notes); os.IsNotExist(err) {
		return writeFileAtomic(notes, []byte("Auto-generated blank read_me for "+key))
	}
	return nil
}

// Files lists the uploaded files for key in sorted order, excluding the
// notes file. A missing directory lists as empty.
func (d *Directory) Files(key string) ([]string, error) {
	dir, err := d.path(key)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == NotesFilename {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether filename is present in the experiment directory.
func (d *Directory) Exists(key, filename string) (bool, error) {
	dir, err := d.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(dir, filename))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Write stores a file under the experiment directory with an atomic
// replace, so a crash mid-upload never leaves a partial file.
func (d *Directory) Write(key, filename string, data []byte) error {
	dir, err := d.path(key)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, filename), data)
}

// Read returns a file's content.
func (d *Directory) Read(key, filename string) ([]byte, error) {
	dir, err := d.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(dir, filename))
}

// Delete removes a single file. os.IsNotExist errors pass through so the
// caller can map them.
func (d *Directory) Delete(key, filename string) error {
	dir, err := d.path(key)
	if err != nil {
		return err
	}
	return os.Remove(filepath.Join(dir, filename))
}

// Remove deletes the whole experiment directory. Missing is fine.
func (d *Directory) Remove(key string) error {
	dir, err := d.path(key)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
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
	return os.Rename(tmp.Name(), path)
}

// SanitizeFilename reduces an uploaded filename to a portable basename.
// Path separators, traversal sequences and control characters are
// stripped; anything outside [A-Za-z0-9._-] becomes an underscore. This is
// the security boundary for every filesystem operation below.
func SanitizeFilename(name string) string {
	// drop any path component the client sent
	name = filepath.Base(filepath.ToSlash(name))
	name = strings.ReplaceAll(name, "..", "")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "." || out == ".." {
		return ""
	}
	return out
}
