package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeUploadFlags struct {
	enabled map[string]bool
}

func (f *fakeUploadFlags) UploadsEnabled(username string) (bool, error) {
	return f.enabled[username], nil
}

func gateRouter(username string, editsAllowed *bool, flags *fakeUploadFlags) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("username", username)
		c.Next()
	})
	router.Use(ErrorHandler())

	editsOpen := RequireFeature("edits", func() bool { return *editsAllowed })
	uploaderOnly := RequireUploadsEnabled(flags)
	router.DELETE("/files/:filename", editsOpen, uploaderOnly, func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestFeatureToggleClosesRoute(t *testing.T) {
	editsAllowed := false
	flags := &fakeUploadFlags{enabled: map[string]bool{"alice": true}}
	router := gateRouter("alice", &editsAllowed, flags)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/files/a.txt", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// the toggle is read per request
	editsAllowed = true
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodDelete, "/files/a.txt", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestUploadFlagGatesMutations(t *testing.T) {
	editsAllowed := true
	flags := &fakeUploadFlags{enabled: map[string]bool{}}
	router := gateRouter("bob", &editsAllowed, flags)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/files/a.txt", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	flags.enabled["bob"] = true
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodDelete, "/files/a.txt", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAdminOnlyRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		username string
		want     int
	}{
		{"Admin", http.StatusOK},
		{"alice", http.StatusForbidden},
	} {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			c.Set("username", tc.username)
			c.Next()
		})
		router.Use(ErrorHandler())
		router.GET("/users", RequireAdmin(), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/users", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, tc.username)
	}
}
