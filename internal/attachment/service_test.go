package attachment

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	apiError "stg-database/internal/errors"
	"stg-database/internal/experiment"
)

func newTestService(t *testing.T) (*DefaultService, *experiment.FileRepository, string) {
	t.Helper()
	root := t.TempDir()
	repo, err := experiment.NewFileRepository(t.TempDir())
	assert.NoError(t, err)
	dir, err := NewDirectory(root)
	assert.NoError(t, err)
	svc := NewService(dir, repo, 3, 1, 100, []string{"abf", "txt", "csv"})
	return svc, repo, root
}

func seedExperiment(t *testing.T, repo *experiment.FileRepository) string {
	t.Helper()
	exp := &experiment.Experiment{Owner: "alice", ExpID: "exp1", ExpDate: "2024-03-01"}
	assert.NoError(t, repo.Insert(exp, 0))
	return exp.Key()
}

func TestUploadStoresFileAndBumpsCount(t *testing.T) {
	svc, repo, root := newTestService(t)
	key := seedExperiment(t, repo)

	name, err := svc.Upload(key, "trace01.abf", []byte("raw data"))
	assert.NoError(t, err)
	assert.Equal(t, "trace01.abf", name)

	exp, _ := repo.Get(key)
	assert.Equal(t, 1, exp.FileCount)

	data, err := os.ReadFile(filepath.Join(root, key, "trace01.abf"))
	assert.NoError(t, err)
	assert.Equal(t, "raw data", string(data))

	// the notes file was auto-created but is not counted
	files, err := svc.Files(key)
	assert.NoError(t, err)
	assert.Equal(t, []string{"trace01.abf"}, files)
	_, err = os.Stat(filepath.Join(root, key, NotesFilename))
	assert.NoError(t, err)
}

func TestUploadQuota(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := svc.Upload(key, name, []byte("x"))
		assert.NoError(t, err)
	}

	_, err := svc.Upload(key, "d.txt", []byte("x"))
	assert.True(t, apiError.IsKind(err, apiError.KindQuotaExceeded))
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)

	big := make([]byte, 1_000_001)
	_, err := svc.Upload(key, "big.abf", big)
	assert.True(t, apiError.IsKind(err, apiError.KindTooLarge))
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)

	for _, name := range []string{"run.exe", "noext", "trailingdot."} {
		_, err := svc.Upload(key, name, []byte("x"))
		assert.True(t, apiError.IsKind(err, apiError.KindDisallowedType), "filename %q", name)
	}
}

func TestUploadRejectsCollisions(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)

	_, err := svc.Upload(key, "trace.abf", []byte("x"))
	assert.NoError(t, err)
	_, err = svc.Upload(key, "trace.abf", []byte("y"))
	assert.True(t, apiError.IsKind(err, apiError.KindNameCollision))
}

func TestUploadSanitizesFilename(t *testing.T) {
	svc, repo, root := newTestService(t)
	key := seedExperiment(t, repo)

	name, err := svc.Upload(key, "../../etc/pass wd.txt", []byte("x"))
	assert.NoError(t, err)
	assert.Equal(t, "pass_wd.txt", name)

	// nothing escaped the experiment directory
	_, err = os.Stat(filepath.Join(root, key, "pass_wd.txt"))
	assert.NoError(t, err)
}

func TestUploadUnknownExperiment(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Upload("nobody-exp0", "a.txt", []byte("x"))
	assert.True(t, apiError.IsKind(err, apiError.KindNotFound))
}

func TestDeleteFileDecrementsCount(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)

	_, err := svc.Upload(key, "a.txt", []byte("x"))
	assert.NoError(t, err)

	assert.NoError(t, svc.Delete(key, "a.txt"))
	exp, _ := repo.Get(key)
	assert.Equal(t, 0, exp.FileCount)

	assert.True(t, apiError.IsKind(svc.Delete(key, "a.txt"), apiError.KindNotFound))
}

func TestNotesFileIsNotDeletable(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)
	assert.NoError(t, svc.EnsureInitialized(key))

	assert.True(t, apiError.IsKind(svc.Delete(key, NotesFilename), apiError.KindNotFound))
}

func TestReconcileHealsDriftedCount(t *testing.T) {
	svc, repo, root := newTestService(t)
	key := seedExperiment(t, repo)

	_, err := svc.Upload(key, "a.txt", []byte("x"))
	assert.NoError(t, err)

	// simulate a crash window: file landed on disk but the count write
	// never happened
	assert.NoError(t, os.WriteFile(filepath.Join(root, key, "b.txt"), []byte("y"), 0o644))

	count, err := svc.Reconcile(key)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)

	exp, _ := repo.Get(key)
	assert.Equal(t, 2, exp.FileCount)
}

func TestPackageForDownload(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)

	_, err := svc.Upload(key, "a.txt", []byte("alpha"))
	assert.NoError(t, err)
	_, err = svc.Upload(key, "b.csv", []byte("1,2"))
	assert.NoError(t, err)

	zipPath, cleanup, err := svc.PackageForDownload(key)
	assert.NoError(t, err)
	defer cleanup()

	zr, err := zip.OpenReader(zipPath)
	assert.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{key + "/" + NotesFilename, key + "/a.txt", key + "/b.csv"}, names)

	cleanup()
	_, err = os.Stat(zipPath)
	assert.True(t, os.IsNotExist(err))
}

func TestPackageForDownloadEmptyDirectory(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)

	_, _, err := svc.PackageForDownload(key)
	assert.True(t, apiError.IsKind(err, apiError.KindEmptyDirectory))
}

func TestNotesRoundtrip(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)

	// auto-generated placeholder on first read
	notes, err := svc.ReadNotes(key)
	assert.NoError(t, err)
	assert.Contains(t, notes, key)

	assert.NoError(t, svc.WriteNotes(key, "temperature ramp at 10:30"))
	notes, err = svc.ReadNotes(key)
	assert.NoError(t, err)
	assert.Equal(t, "temperature ramp at 10:30", notes)
}

func TestWriteNotesTooLong(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'n'
	}
	err := svc.WriteNotes(key, string(long))
	assert.True(t, apiError.IsKind(err, apiError.KindTooLarge))
}

func TestRemoveDeletesDirectory(t *testing.T) {
	svc, repo, root := newTestService(t)
	key := seedExperiment(t, repo)
	_, err := svc.Upload(key, "a.txt", []byte("x"))
	assert.NoError(t, err)

	assert.NoError(t, svc.Remove(key))
	_, err = os.Stat(filepath.Join(root, key))
	assert.True(t, os.IsNotExist(err))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "trace.abf", SanitizeFilename("trace.abf"))
	assert.Equal(t, "passwd", SanitizeFilename("../../passwd"))
	assert.Equal(t, "my_file.txt", SanitizeFilename("my file.txt"))
	assert.Equal(t, "", SanitizeFilename("..."))
	assert.Equal(t, "", SanitizeFilename(""))
}

func TestConcurrentUploadSameName(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Upload(key, "data.csv", []byte("payload"))
		}(i)
	}
	close(start)
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.True(t, apiError.IsKind(err, apiError.KindNameCollision))
		}
	}
	assert.Equal(t, 1, ok)

	files, err := svc.Files(key)
	assert.NoError(t, err)
	assert.Equal(t, []string{"data.csv"}, files)

	exp, _ := repo.Get(key)
	assert.Equal(t, 1, exp.FileCount)
}

func TestConcurrentUploadAndDeleteKeepCountConsistent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	key := seedExperiment(t, repo)
	_, err := svc.Upload(key, "a.txt", []byte("x"))
	assert.NoError(t, err)

	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, _ = svc.Upload(key, "b.txt", []byte("y"))
	}()
	go func() {
		defer wg.Done()
		<-start
		_ = svc.Delete(key, "a.txt")
	}()
	close(start)
	wg.Wait()

	files, err := svc.Files(key)
	assert.NoError(t, err)
	exp, _ := repo.Get(key)
	assert.Equal(t, len(files), exp.FileCount)
	assert.Equal(t, []string{"b.txt"}, files)
}
