package auth

import (
	"strings"

	"stg-database/internal/errors"
	"stg-database/redis"

	"github.com/gin-gonic/gin"
)

// AuthMiddleWare verifies the bearer token and checks it against the Redis
// allow-list populated on login. The acting username is stored on the
// context for downstream handlers.
func AuthMiddleWare() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			ctx.Error(errors.Unauthorized("Authorization is not found!", nil))
			ctx.Abort()
			return
		}

		// verify token
		token := strings.TrimPrefix(authHeader, "Bearer ")
		parsedToken, err := VerifyJWT(token)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid token!", err))
			ctx.Abort()
			return
		}

		username, err := UsernameFromToken(parsedToken)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid token!", err))
			ctx.Abort()
			return
		}

		// check on redis
		if redis.RedisClient == nil {
			ctx.Error(errors.Internal(nil))
			ctx.Abort()
			return
		}
		exists, err := redis.RedisClient.Exists(redis.Ctx, "token:"+token).Result()
		if err != nil || exists == 0 {
			ctx.Error(errors.Unauthorized("Token expired or not found", err))
			ctx.Abort()
			return
		}

		ctx.Set("username", username)
		ctx.Set("jwt_token", token)
		ctx.Next()
	}
}
