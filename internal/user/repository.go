package user

import (
	"path/filepath"
	"sort"
	"sync"

	apiError "stg-database/internal/errors"
	"stg-database/internal/store"
)

// Repository defines access to the user directory and the credential store.
type Repository interface {
	Get(username string) (*User, error)
	List() []User
	Create(user *User, passwordHash string, maxUsers int) error
	UpdateProfile(user *User) error
	Delete(username string) error
	SetUploadsEnabled(username string, enabled bool) error
	PasswordHash(username string) (string, error)
	SetPasswordHash(username, hash string) error
}

// FileRepository keeps both stores in memory, mirrored to
// user_database.json and user_pdatabase.json on every mutation.
type FileRepository struct {
	mu        sync.RWMutex
	persistMu sync.Mutex

	profiles map[string]*profileRecord
	hashes   map[string]string

	userFile *store.File
	credFile *store.File
}

func NewFileRepository(dataDir string) (*FileRepository, error) {
	r := &FileRepository{
		profiles: make(map[string]*profileRecord),
		hashes:   make(map[string]string),
		userFile: store.NewFile(filepath.Join(dataDir, "user_database.json")),
		credFile: store.NewFile(filepath.Join(dataDir, "user_pdatabase.json")),
	}
	if err := r.userFile.Load(&r.profiles); err != nil {
		return nil, err
	}
	if err := r.credFile.Load(&r.hashes); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRepository) toUser(username string, rec *profileRecord) *User {
	return &User{
		Username:       username,
		Email:          rec.Email,
		Surname:        rec.Surname,
		Lab:            rec.Lab,
		UploadsEnabled: rec.UploadsEnabled,
	}
}

func (r *FileRepository) Get(username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.profiles[username]
	if !ok {
		return nil, apiError.NotFound("User not found", nil)
	}
	return r.toUser(username, rec), nil
}

func (r *FileRepository) List() []User {
	r.mu.RLock()
	out := make([]User, 0, len(r.profiles))
	for username, rec := range r.profiles {
		out = append(out, *r.toUser(username, rec))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Create inserts a new user into both stores. Fails with QuotaExceeded once
// maxUsers accounts exist (zero or negative disables the cap); the cap is
// checked under the map lock so concurrent registrations cannot both slip
// past it. Neither store is modified when the username is taken, the cap is
// reached, or the write fails.
func (r *FileRepository) Create(user *User, passwordHash string, maxUsers int) error {
	r.mu.Lock()
	if maxUsers > 0 && len(r.profiles) >= maxUsers {
		r.mu.Unlock()
		return apiError.QuotaExceeded("No more users can be registered (reached maximum)")
	}
	if _, ok := r.profiles[user.Username]; ok {
		r.mu.Unlock()
		return apiError.DuplicateKey("Username already taken")
	}
	r.profiles[user.Username] = &profileRecord{
		Email:          user.Email,
		Surname:        user.Surname,
		Lab:            user.Lab,
		UploadsEnabled: user.UploadsEnabled,
	}
	r.hashes[user.Username] = passwordHash
	r.mu.Unlock()

	if err := r.saveBoth(); err != nil {
		r.mu.Lock()
		delete(r.profiles, user.Username)
		delete(r.hashes, user.Username)
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *FileRepository) UpdateProfile(user *User) error {
	r.mu.Lock()
	old, ok := r.profiles[user.Username]
	if !ok {
		r.mu.Unlock()
		return apiError.NotFound("User not found", nil)
	}
	r.profiles[user.Username] = &profileRecord{
		Email:          user.Email,
		Surname:        user.Surname,
		Lab:            user.Lab,
		UploadsEnabled: old.UploadsEnabled, // flag changes go through SetUploadsEnabled
	}
	r.mu.Unlock()

	if err := r.saveUsers(); err != nil {
		r.mu.Lock()
		r.profiles[user.Username] = old
		r.mu.Unlock()
		return err
	}
	return nil
}

// Delete removes the user from both stores. Experiments owned by the user
// are deliberately left in place.
func (r *FileRepository) Delete(username string) error {
	r.mu.Lock()
	oldProfile, ok := r.profiles[username]
	if !ok {
		r.mu.Unlock()
		return apiError.NotFound("User not found", nil)
	}
	oldHash := r.hashes[username]
	delete(r.profiles, username)
	delete(r.hashes, username)
	r.mu.Unlock()

	if err := r.saveBoth(); err != nil {
		r.mu.Lock()
		r.profiles[username] = oldProfile
		r.hashes[username] = oldHash
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *FileRepository) SetUploadsEnabled(username string, enabled bool) error {
	r.mu.Lock()
	rec, ok := r.profiles[username]
	if !ok {
		r.mu.Unlock()
		return apiError.NotFound("User not found", nil)
	}
	old := rec.UploadsEnabled
	rec.UploadsEnabled = enabled
	r.mu.Unlock()

	if err := r.saveUsers(); err != nil {
		r.mu.Lock()
		if cur, ok := r.profiles[username]; ok {
			cur.UploadsEnabled = old
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *FileRepository) PasswordHash(username string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hash, ok := r.hashes[username]
	if !ok {
		return "", apiError.NotFound("User not found", nil)
	}
	return hash, nil
}

func (r *FileRepository) SetPasswordHash(username, hash string) error {
	r.mu.Lock()
	old, ok := r.hashes[username]
	if !ok {
		r.mu.Unlock()
		return apiError.NotFound("User not found", nil)
	}
	r.hashes[username] = hash
	r.mu.Unlock()

	if err := r.saveCredentials(); err != nil {
		r.mu.Lock()
		r.hashes[username] = old
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *FileRepository) saveUsers() error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userFile.Save(r.profiles)
}

func (r *FileRepository) saveCredentials() error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.credFile.Save(r.hashes)
}

func (r *FileRepository) saveBoth() error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.userFile.Save(r.profiles); err != nil {
		return err
	}
	return r.credFile.Save(r.hashes)
}
