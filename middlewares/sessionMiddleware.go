package middlewares

import (
	"context"
	"net/http"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the caller identity from the "token" header.
// A token is first looked up as a redis session ("Token:<token>" -> username);
// if no session exists it is validated as a signed JWT. Requests without a
// token pass through unauthenticated; handlers decide whether that is fatal.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		username, exists, err := config.GetRedisValue("Token:" + token)
		if err == nil && exists {
			ctx := context.WithValue(c.Request.Context(), utils.ContextKeyToken, token)
			ctx = context.WithValue(ctx, utils.ContextKeyUsername, username)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		validated, jwtErr := utils.JwtValidate(token)
		if jwtErr != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		claim, ok := validated.Claims.(*utils.JwtCustomClaim)
		if !ok || claim.Username == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), utils.ContextKeyToken, token)
		ctx = context.WithValue(ctx, utils.ContextKeyUsername, claim.Username)
		ctx = context.WithValue(ctx, utils.ContextKeyUserId, claim.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
