package user

import (
	"crypto/rand"
	"math/big"

	apiError "stg-database/internal/errors"

	"golang.org/x/crypto/bcrypt"
)

// AdminUsername is the distinguished administrator account, which cannot
// be deleted.
const AdminUsername = "Admin"

// Service defines the interface for user business logic
type Service interface {
	Register(user *User, password string) error
	Login(username, password string) (*User, error)
	Get(username string) (*User, error)
	List() []User
	UpdateProfile(user *User) error
	ChangePassword(username, oldPassword, newPassword string) error
	ResetPassword(username string) (string, error)
	Delete(username string) error
	SetUploadsEnabled(username string, enabled bool) error
	UploadsEnabled(username string) (bool, error)
}

// DefaultService implements Service
type DefaultService struct {
	repository Repository
	maxUsers   int
}

// NewService creates a new user service
func NewService(repository Repository, maxUsers int) Service {
	return &DefaultService{repository: repository, maxUsers: maxUsers}
}

// Register registers a new user. New accounts start with uploads disabled
// until an administrator activates them.
func (s *DefaultService) Register(user *User, password string) error {
	if !ValidUsername(user.Username) {
		return apiError.InvalidName("Username must be 1-20 alphanumeric characters (underscore ok)")
	}
	if password == "" {
		return apiError.InvalidField("Password must not be empty", nil)
	}

	// Hash the password before saving
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apiError.Internal(err)
	}
	user.UploadsEnabled = false

	return s.repository.Create(user, string(hashedPassword), s.maxUsers)
}

// Login authenticates a user
func (s *DefaultService) Login(username, password string) (*User, error) {
	hash, err := s.repository.PasswordHash(username)
	if err != nil {
		return nil, apiError.Unauthorized("Invalid username or password", err)
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, apiError.Unauthorized("Invalid username or password", err)
	}

	return s.repository.Get(username)
}

func (s *DefaultService) Get(username string) (*User, error) {
	return s.repository.Get(username)
}

func (s *DefaultService) List() []User {
	return s.repository.List()
}

func (s *DefaultService) UpdateProfile(user *User) error {
	return s.repository.UpdateProfile(user)
}

// ChangePassword verifies the old password before storing the new hash.
func (s *DefaultService) ChangePassword(username, oldPassword, newPassword string) error {
	hash, err := s.repository.PasswordHash(username)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)); err != nil {
		return apiError.Unauthorized("Wrong password", err)
	}
	if newPassword == "" {
		return apiError.InvalidField("Password must not be empty", nil)
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apiError.Internal(err)
	}
	return s.repository.SetPasswordHash(username, string(newHash))
}

// ResetPassword sets a random 8-character password and returns it so the
// administrator can relay it to the user.
func (s *DefaultService) ResetPassword(username string) (string, error) {
	if _, err := s.repository.Get(username); err != nil {
		return "", err
	}

	password, err := randomPassword(8)
	if err != nil {
		return "", apiError.Internal(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apiError.Internal(err)
	}
	if err := s.repository.SetPasswordHash(username, string(hash)); err != nil {
		return "", err
	}
	return password, nil
}

// Delete removes a user. The Admin account is protected, and the user's
// experiments are left untouched.
func (s *DefaultService) Delete(username string) error {
	if username == AdminUsername {
		return apiError.Forbidden("You cannot delete Admin, Admin.")
	}
	return s.repository.Delete(username)
}

func (s *DefaultService) SetUploadsEnabled(username string, enabled bool) error {
	return s.repository.SetUploadsEnabled(username, enabled)
}

func (s *DefaultService) UploadsEnabled(username string) (bool, error) {
	u, err := s.repository.Get(username)
	if err != nil {
		return false, err
	}
	return u.UploadsEnabled, nil
}

const passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomPassword(length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordCharset))))
		if err != nil {
			return "", err
		}
		out[i] = passwordCharset[n.Int64()]
	}
	return string(out), nil
}
