package attachment

import (
	"context"
	"io"
	"net/http"

	apiError "stg-database/internal/errors"
	"stg-database/internal/experiment"
	"stg-database/internal/middleware"
	"stg-database/internal/session"
	"stg-database/internal/worker"

	"github.com/gin-gonic/gin"
)

// ExperimentLookup re-checks ownership against the record store, since a
// session selection can outlive a permission change.
type ExperimentLookup interface {
	Get(key string) (*experiment.Experiment, error)
}

// Handler serves the file routes. They all operate on the experiment the
// user selected earlier in the session; an unset selection is rejected
// instead of defaulting.
type Handler struct {
	service     Service
	experiments ExperimentLookup
	sessions    session.Store
	pool        *worker.WorkerPool
}

func NewHandler(service Service, experiments ExperimentLookup, sessions session.Store, pool *worker.WorkerPool) *Handler {
	return &Handler{service: service, experiments: experiments, sessions: sessions, pool: pool}
}

// currentKey resolves the session-selected experiment and enforces
// ownership for mutating routes.
func (h *Handler) currentKey(c *gin.Context, requireOwner bool) (string, bool) {
	username := c.GetString("username")
	key, err := h.sessions.Experiment(c.Request.Context(), username)
	if err != nil {
		c.Error(err)
		return "", false
	}
	exp, err := h.experiments.Get(key)
	if err != nil {
		c.Error(err)
		return "", false
	}
	if requireOwner && username != middleware.AdminUsername && exp.Owner != username {
		c.Error(apiError.Forbidden("Not your experiment"))
		return "", false
	}
	return key, true
}

// ListFiles shows the uploaded files for the selected experiment.
func (h *Handler) ListFiles(c *gin.Context) {
	key, ok := h.currentKey(c, false)
	if !ok {
		return
	}

	count, err := h.service.Reconcile(key)
	if err != nil {
		c.Error(err)
		return
	}
	files, err := h.service.Files(key)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"experiment": key, "files": files, "file_count": count})
}

// Upload stores one multipart file on the selected experiment.
func (h *Handler) Upload(c *gin.Context) {
	key, ok := h.currentKey(c, true)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.Error(apiError.Internal(err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.Error(apiError.Internal(err))
		return
	}

	name, err := h.service.Upload(key, fileHeader.Filename, data)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"filename": name})
}

// DeleteFile removes one uploaded file from the selected experiment.
func (h *Handler) DeleteFile(c *gin.Context) {
	key, ok := h.currentKey(c, true)
	if !ok {
		return
	}

	if err := h.service.Delete(key, c.Param("filename")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Download streams a ZIP of the selected experiment's directory. The
// scratch area is cleaned up off the request path.
func (h *Handler) Download(c *gin.Context) {
	key, ok := h.currentKey(c, false)
	if !ok {
		return
	}

	zipPath, cleanup, err := h.service.PackageForDownload(key)
	if err != nil {
		c.Error(err)
		return
	}

	c.FileAttachment(zipPath, key+".zip")

	if err := h.pool.Submit(func(context.Context) error {
		cleanup()
		return nil
	}); err != nil {
		cleanup()
	}
}

// GetNotes returns the experiment's notes file.
func (h *Handler) GetNotes(c *gin.Context) {
	key, ok := h.currentKey(c, false)
	if !ok {
		return
	}

	notes, err := h.service.ReadNotes(key)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiment": key, "notes": notes})
}

type FormNotes struct {
	Notes string `json:"notes"`
}

// PutNotes replaces the experiment's notes file.
func (h *Handler) PutNotes(c *gin.Context) {
	key, ok := h.currentKey(c, true)
	if !ok {
		return
	}

	var form FormNotes
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	if err := h.service.WriteNotes(key, form.Notes); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReconcileAll sweeps every experiment once at startup so counters drift
// from a crash get healed before the first read. Records deleted since the
// key list was taken are skipped.
func ReconcileAll(service Service, keys []string) worker.Task {
	return func(context.Context) error {
		for _, key := range keys {
			if _, err := service.Reconcile(key); err != nil && !apiError.IsKind(err, apiError.KindNotFound) {
				return err
			}
		}
		return nil
	}
}
