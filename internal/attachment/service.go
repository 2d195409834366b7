package attachment

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	apiError "stg-database/internal/errors"
	"stg-database/internal/experiment"
)

// RecordStore is the slice of the experiment repository the attachment
// layer needs to keep the cached file count in sync.
type RecordStore interface {
	Get(key string) (*experiment.Experiment, error)
	SetFileCount(key string, count int) error
	AdjustFileCount(key string, delta int) error
}

// Service defines the attachment-directory business logic
type Service interface {
	EnsureInitialized(key string) error
	Files(key string) ([]string, error)
	Upload(key, filename string, data []byte) (string, error)
	Delete(key, filename string) error
	PackageForDownload(key string) (string, func(), error)
	ReadNotes(key string) (string, error)
	WriteNotes(key, text string) error
	Reconcile(key string) (int, error)
	Remove(key string) error
}

// DefaultService implements Service
//
// keys serializes mutations per experiment directory, so a check-then-write
// sequence (quota, collision, write, counter bump) cannot interleave with
// another mutation on the same experiment.
type DefaultService struct {
	dir           *Directory
	records       RecordStore
	keys          keyMutex
	maxFiles      int
	maxBytes      int
	notesMaxBytes int
	allowedExts   []string
}

// keyMutex hands out one mutex per experiment key.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func NewService(dir *Directory, records RecordStore, maxFiles, maxFilesizeMB, notesMaxBytes int, allowedExts []string) *DefaultService {
	return &DefaultService{
		dir:           dir,
		records:       records,
		maxFiles:      maxFiles,
		maxBytes:      maxFilesizeMB * 1_000_000,
		notesMaxBytes: notesMaxBytes,
		allowedExts:   allowedExts,
	}
}

func (s *DefaultService) EnsureInitialized(key string) error {
	if _, err := s.records.Get(key); err != nil {
		return err
	}
	return s.dir.EnsureInitialized(key)
}

func (s *DefaultService) Files(key string) ([]string, error) {
	if _, err := s.records.Get(key); err != nil {
		return nil, err
	}
	return s.dir.Files(key)
}

func (s *DefaultService) allowedFile(filename string) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 || i == len(filename)-1 {
		return false
	}
	ext := strings.ToLower(filename[i+1:])
	for _, allowed := range s.allowedExts {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Upload validates, writes the file, and bumps the cached file count.
// Returns the sanitized filename actually stored.
func (s *DefaultService) Upload(key, filename string, data []byte) (string, error) {
	unlock := s.keys.Lock(key)
	defer unlock()

	exp, err := s.records.Get(key)
	if err != nil {
		return "", err
	}
	if exp.FileCount >= s.maxFiles {
		return "", apiError.QuotaExceeded("Cannot upload more files, reached maximum for this experiment")
	}
	if len(data) > s.maxBytes {
		return "", apiError.TooLarge("Cannot upload, file too large")
	}

	name := SanitizeFilename(filename)
	if name == "" {
		return "", apiError.InvalidName("Invalid filename")
	}
	if !s.allowedFile(name) {
		return "", apiError.DisallowedType("File type is not allowed")
	}
	if name == NotesFilename {
		return "", apiError.NameCollision("Filename already used")
	}

	if err := s.dir.EnsureInitialized(key); err != nil {
		return "", err
	}
	exists, err := s.dir.Exists(key, name)
	if err != nil {
		return "", err
	}
	if exists {
		return "", apiError.NameCollision("Filename already used")
	}

	if err := s.dir.Write(key, name, data); err != nil {
		return "", err
	}
	// If this write fails the directory and the cached count diverge; the
	// next Reconcile heals it from the directory listing.
	if err := s.records.AdjustFileCount(key, 1); err != nil {
		return "", err
	}
	return name, nil
}

// Delete removes one uploaded file and decrements the cached count.
func (s *DefaultService) Delete(key, filename string) error {
	unlock := s.keys.Lock(key)
	defer unlock()

	if _, err := s.records.Get(key); err != nil {
		return err
	}
	name := SanitizeFilename(filename)
	if name == "" || name == NotesFilename {
		return apiError.NotFound("File not found", nil)
	}
	if err := s.dir.Delete(key, name); err != nil {
		if os.IsNotExist(err) {
			return apiError.NotFound("File not found", nil)
		}
		return err
	}
	return s.records.AdjustFileCount(key, -1)
}

// PackageForDownload zips the experiment's directory (notes file included)
// into a fresh scratch area and returns the archive path with a cleanup
// function. Entries are written in sorted order with zeroed timestamps so
// the same directory always produces the same archive.
func (s *DefaultService) PackageForDownload(key string) (string, func(), error) {
	count, err := s.Reconcile(key)
	if err != nil {
		return "", nil, err
	}
	if count == 0 {
		return "", nil, apiError.EmptyDirectory("No files to download")
	}

	names, err := s.dir.Files(key)
	if err != nil {
		return "", nil, err
	}
	names = append(names, NotesFilename)
	sort.Strings(names)

	scratch, err := os.MkdirTemp("", "stgdb-archive-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(scratch) }

	zipPath := filepath.Join(scratch, key+".zip")
	if err := s.writeArchive(zipPath, key, names); err != nil {
		cleanup()
		return "", nil, err
	}
	return zipPath, cleanup, nil
}

func (s *DefaultService) writeArchive(zipPath, key string, names []string) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range names {
		data, err := s.dir.Read(key, name)
		if err != nil {
			if os.IsNotExist(err) {
				continue // deleted since listing
			}
			return err
		}
		header := &zip.FileHeader{
			Name:   key + "/" + name,
			Method: zip.Deflate,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return zw.Close()
}

func (s *DefaultService) ReadNotes(key string) (string, error) {
	if err := s.EnsureInitialized(key); err != nil {
		return "", err
	}
	data, err := s.dir.Read(key, NotesFilename)
	if err != nil {
		return "", err
	}
	if len(data) > s.notesMaxBytes {
		data = data[:s.notesMaxBytes]
	}
	return string(data), nil
}

func (s *DefaultService) WriteNotes(key, text string) error {
	if len(text) > s.notesMaxBytes {
		return apiError.TooLarge("Notes exceed the maximum length")
	}
	if err := s.EnsureInitialized(key); err != nil {
		return err
	}
	return s.dir.Write(key, NotesFilename, []byte(text))
}

// Reconcile recomputes the file count from the directory listing and heals
// the cached value in the metadata record. The filesystem is ground truth;
// the cached counter is only a denormalized view of it.
func (s *DefaultService) Reconcile(key string) (int, error) {
	unlock := s.keys.Lock(key)
	defer unlock()

	exp, err := s.records.Get(key)
	if err != nil {
		return 0, err
	}
	names, err := s.dir.Files(key)
	if err != nil {
		return 0, err
	}
	count := len(names)
	if count != exp.FileCount {
		if err := s.records.SetFileCount(key, count); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// Remove deletes the experiment's attachment directory. Called from the
// experiment-deletion cascade after both stores are persisted.
func (s *DefaultService) Remove(key string) error {
	return s.dir.Remove(key)
}
