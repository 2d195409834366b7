package middleware

import (
	"stg-database/internal/errors"

	"github.com/gin-gonic/gin"
)

// AdminUsername is the distinguished administrator account.
const AdminUsername = "Admin"

// RequireFeature aborts with FeatureDisabled when the toggle evaluates false.
// The toggle is read per request so config changes apply without re-routing.
func RequireFeature(name string, enabled func() bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !enabled() {
			ctx.Error(errors.FeatureDisabled(name + " are currently disabled"))
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// UploadFlagProvider reports whether a user account has uploads enabled.
type UploadFlagProvider interface {
	UploadsEnabled(username string) (bool, error)
}

// RequireUploadsEnabled gates mutating experiment routes on the per-user
// upload flag. Must run after the auth middleware.
func RequireUploadsEnabled(users UploadFlagProvider) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		username := ctx.GetString("username")
		enabled, err := users.UploadsEnabled(username)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid user!", err))
			ctx.Abort()
			return
		}
		if !enabled {
			ctx.Error(errors.Forbidden("Uploads are not enabled for your account"))
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// RequireAdmin restricts a route to the Admin account. Must run after the
// auth middleware.
func RequireAdmin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.GetString("username") != AdminUsername {
			ctx.Error(errors.Forbidden("Administrator access required"))
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
