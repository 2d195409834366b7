package user

import (
	"net/http"

	"stg-database/auth"
	"stg-database/internal/config"
	apiError "stg-database/internal/errors"
	"stg-database/internal/session"
	"stg-database/redis"

	"github.com/gin-gonic/gin"
)

// ExperimentCounter reports how many experiments a user owns, for the
// admin overview.
type ExperimentCounter interface {
	CountByOwner(owner string) int
}

// Handler handles HTTP requests for users
type Handler struct {
	service     Service
	experiments ExperimentCounter
	sessions    session.Store
}

// NewHandler creates a new user handler
func NewHandler(service Service, experiments ExperimentCounter, sessions session.Store) *Handler {
	return &Handler{service: service, experiments: experiments, sessions: sessions}
}

// FormLogin represents login form data
type FormLogin struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// FormRegister represents registration form data
type FormRegister struct {
	Username string `json:"username" binding:"required,max=20"`
	Email    string `json:"email" binding:"required,email"`
	Surname  string `json:"surname" binding:"required,max=25"`
	Lab      string `json:"lab" binding:"required,max=20"`
	Password string `json:"password" binding:"required,min=6"`
}

// FormProfile represents profile edit form data
type FormProfile struct {
	Email   string `json:"email" binding:"required,email"`
	Surname string `json:"surname" binding:"required,max=25"`
	Lab     string `json:"lab" binding:"required,max=20"`
}

// FormPasswordChange represents password change form data
type FormPasswordChange struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

type FormUploadFlag struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// Register handles user registration
func (h *Handler) Register(c *gin.Context) {
	var form FormRegister
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	u := &User{
		Username: form.Username,
		Email:    form.Email,
		Surname:  form.Surname,
		Lab:      form.Lab,
	}

	if err := h.service.Register(u, form.Password); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": u})
}

// Login handles user login
func (h *Handler) Login(c *gin.Context) {
	var form FormLogin
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	u, err := h.service.Login(form.Username, form.Password)
	if err != nil {
		c.Error(err)
		return
	}

	accessToken, err := auth.GenerateJWT(u.Username)
	if err != nil {
		c.Error(apiError.Internal(err))
		return
	}
	if err := redis.StoreToken(accessToken, config.AppConfig.SessionTTL); err != nil {
		c.Error(apiError.Internal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"user":         u,
	})
}

// Logout revokes the token and drops any editing selection.
func (h *Handler) Logout(c *gin.Context) {
	username := c.GetString("username")
	token := c.GetString("jwt_token")

	if err := redis.RevokeToken(token); err != nil {
		c.Error(apiError.Internal(err))
		return
	}
	if err := h.sessions.Clear(c.Request.Context(), username); err != nil {
		c.Error(apiError.Internal(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// GetProfile handles getting the current user's profile
func (h *Handler) GetProfile(c *gin.Context) {
	username := c.GetString("username")

	u, err := h.service.Get(username)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, u)
}

// UpdateProfile edits the current user's directory entry.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var form FormProfile
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	u := &User{
		Username: c.GetString("username"),
		Email:    form.Email,
		Surname:  form.Surname,
		Lab:      form.Lab,
	}
	if err := h.service.UpdateProfile(u); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChangePassword lets a user set a new password after confirming the old one.
func (h *Handler) ChangePassword(c *gin.Context) {
	var form FormPasswordChange
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	username := c.GetString("username")
	if err := h.service.ChangePassword(username, form.OldPassword, form.NewPassword); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListUsers is the admin overview: every account with its experiment count.
func (h *Handler) ListUsers(c *gin.Context) {
	users := h.service.List()

	type row struct {
		User
		Experiments int `json:"experiments"`
	}
	out := make([]row, 0, len(users))
	for _, u := range users {
		out = append(out, row{User: u, Experiments: h.experiments.CountByOwner(u.Username)})
	}

	c.JSON(http.StatusOK, gin.H{"users": out})
}

// AdminUpdateProfile lets the administrator edit any user's profile.
func (h *Handler) AdminUpdateProfile(c *gin.Context) {
	var form FormProfile
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	u := &User{
		Username: c.Param("username"),
		Email:    form.Email,
		Surname:  form.Surname,
		Lab:      form.Lab,
	}
	if err := h.service.UpdateProfile(u); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AdminDelete removes a user account. Their experiments stay.
func (h *Handler) AdminDelete(c *gin.Context) {
	if err := h.service.Delete(c.Param("username")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AdminResetPassword sets a random password and returns it so the admin
// can email it to the user.
func (h *Handler) AdminResetPassword(c *gin.Context) {
	username := c.Param("username")
	password, err := h.service.ResetPassword(username)
	if err != nil {
		c.Error(err)
		return
	}

	u, err := h.service.Get(username)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"password": password,
		"email":    u.Email,
	})
}

// AdminSetUploads toggles a user's upload-enabled flag.
func (h *Handler) AdminSetUploads(c *gin.Context) {
	var form FormUploadFlag
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(apiError.NewValidationError(err))
		return
	}

	if err := h.service.SetUploadsEnabled(c.Param("username"), *form.Enabled); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
