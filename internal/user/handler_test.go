package user

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redisLib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"stg-database/internal/config"
	apiError "stg-database/internal/errors"
	"stg-database/internal/middleware"
	"stg-database/redis"
)

var miniRedis *miniredis.Miniredis

// MockService is a mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) Register(user *User, password string) error {
	args := m.Called(user, password)
	return args.Error(0)
}

func (m *MockService) Login(username, password string) (*User, error) {
	args := m.Called(username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockService) Get(username string) (*User, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockService) List() []User {
	args := m.Called()
	return args.Get(0).([]User)
}

func (m *MockService) UpdateProfile(user *User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockService) ChangePassword(username, oldPassword, newPassword string) error {
	args := m.Called(username, oldPassword, newPassword)
	return args.Error(0)
}

func (m *MockService) ResetPassword(username string) (string, error) {
	args := m.Called(username)
	return args.String(0), args.Error(1)
}

func (m *MockService) Delete(username string) error {
	args := m.Called(username)
	return args.Error(0)
}

func (m *MockService) SetUploadsEnabled(username string, enabled bool) error {
	args := m.Called(username, enabled)
	return args.Error(0)
}

func (m *MockService) UploadsEnabled(username string) (bool, error) {
	args := m.Called(username)
	return args.Bool(0), args.Error(1)
}

type fakeCounter struct {
	counts map[string]int
}

func (f *fakeCounter) CountByOwner(owner string) int { return f.counts[owner] }

type fakeSessions struct {
	cleared []string
}

func (f *fakeSessions) SetExperiment(ctx context.Context, username, key string) error { return nil }
func (f *fakeSessions) SetCondition(ctx context.Context, username string, index int, name string) error {
	return nil
}
func (f *fakeSessions) Experiment(ctx context.Context, username string) (string, error) {
	return "", apiError.NoActiveSelection("No experiment selected")
}
func (f *fakeSessions) Condition(ctx context.Context, username string) (int, string, error) {
	return 0, "", apiError.NoActiveSelection("No condition selected")
}
func (f *fakeSessions) Clear(ctx context.Context, username string) error {
	f.cleared = append(f.cleared, username)
	return nil
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandler())

	// Initialize miniredis for testing if not already done
	if miniRedis == nil {
		var err error
		miniRedis, err = miniredis.Run()
		if err != nil {
			panic(err)
		}
	}
	if redis.RedisClient == nil {
		redis.RedisClient = redisLib.NewClient(&redisLib.Options{
			Addr: miniRedis.Addr(),
		})
	}
	config.AppConfig.JWTSecret = "test-secret"
	config.AppConfig.SessionTTL = time.Hour

	return router
}

func performJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterHandler_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, &fakeCounter{}, &fakeSessions{})
	router := setupRouter()
	router.POST("/register", handler.Register)

	mockService.On("Register", mock.MatchedBy(func(u *User) bool {
		return u.Username == "alice" && u.Email == "alice@lab.edu"
	}), "password123").Return(nil)

	w := performJSON(router, http.MethodPost, "/register", FormRegister{
		Username: "alice",
		Email:    "alice@lab.edu",
		Surname:  "Smith",
		Lab:      "Marder",
		Password: "password123",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

func TestRegisterHandler_InvalidBody(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, &fakeCounter{}, &fakeSessions{})
	router := setupRouter()
	router.POST("/register", handler.Register)

	// missing email and too-short password
	w := performJSON(router, http.MethodPost, "/register", gin.H{
		"username": "alice",
		"password": "pw",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "Register")
}

func TestLoginHandler_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, &fakeCounter{}, &fakeSessions{})
	router := setupRouter()
	router.POST("/login", handler.Login)

	mockService.On("Login", "alice", "password123").
		Return(&User{Username: "alice", Email: "alice@lab.edu"}, nil)

	w := performJSON(router, http.MethodPost, "/login", FormLogin{
		Username: "alice",
		Password: "password123",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
		User        User   `json:"user"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "alice", resp.User.Username)

	// the token landed on the allow-list
	assert.True(t, miniRedis.Exists("token:"+resp.AccessToken))
	mockService.AssertExpectations(t)
}

func TestLoginHandler_BadCredentials(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, &fakeCounter{}, &fakeSessions{})
	router := setupRouter()
	router.POST("/login", handler.Login)

	mockService.On("Login", "alice", "wrong").
		Return(nil, apiError.Unauthorized("Invalid username or password", nil))

	w := performJSON(router, http.MethodPost, "/login", FormLogin{
		Username: "alice",
		Password: "wrong",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutHandler_ClearsSession(t *testing.T) {
	mockService := new(MockService)
	sessions := &fakeSessions{}
	handler := NewHandler(mockService, &fakeCounter{}, sessions)
	router := setupRouter()

	if err := miniRedis.Set("token:sometoken", "1"); err != nil {
		t.Fatal(err)
	}
	router.DELETE("/logout", func(c *gin.Context) {
		c.Set("username", "alice")
		c.Set("jwt_token", "sometoken")
		handler.Logout(c)
	})

	w := performJSON(router, http.MethodDelete, "/logout", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, miniRedis.Exists("token:sometoken"))
	assert.Equal(t, []string{"alice"}, sessions.cleared)
}

func TestListUsersHandler_IncludesExperimentCounts(t *testing.T) {
	mockService := new(MockService)
	counter := &fakeCounter{counts: map[string]int{"alice": 3}}
	handler := NewHandler(mockService, counter, &fakeSessions{})
	router := setupRouter()
	router.GET("/admin/users", handler.ListUsers)

	mockService.On("List").Return([]User{
		{Username: "alice"},
		{Username: "bob"},
	})

	w := performJSON(router, http.MethodGet, "/admin/users", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Users []struct {
			Username    string `json:"username"`
			Experiments int    `json:"experiments"`
		} `json:"users"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if assert.Len(t, resp.Users, 2) {
		assert.Equal(t, 3, resp.Users[0].Experiments)
		assert.Equal(t, 0, resp.Users[1].Experiments)
	}
}

func TestAdminResetPasswordHandler(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, &fakeCounter{}, &fakeSessions{})
	router := setupRouter()
	router.POST("/admin/users/:username/reset-password", handler.AdminResetPassword)

	mockService.On("ResetPassword", "alice").Return("n3wPass12", nil)
	mockService.On("Get", "alice").Return(&User{Username: "alice", Email: "alice@lab.edu"}, nil)

	w := performJSON(router, http.MethodPost, "/admin/users/alice/reset-password", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "n3wPass12", resp["password"])
	assert.Equal(t, "alice@lab.edu", resp["email"])
}

func TestAdminSetUploadsHandler(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, &fakeCounter{}, &fakeSessions{})
	router := setupRouter()
	router.PUT("/admin/users/:username/uploads", handler.AdminSetUploads)

	mockService.On("SetUploadsEnabled", "alice", true).Return(nil)

	w := performJSON(router, http.MethodPut, "/admin/users/alice/uploads", gin.H{"enabled": true})
	assert.Equal(t, http.StatusNoContent, w.Code)
	mockService.AssertExpectations(t)
}
