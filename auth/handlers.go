package auth

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CompanyId string `json:"companyId"`
}

func sessionTTL() time.Duration {
	hours, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// LoginHandler verifies credentials and issues a signed JWT. The token is also
// registered as a redis session so the middleware can resolve it without
// re-parsing; when redis is down the JWT alone still authenticates.
func LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "username and password are required",
				"fields": utils.ValidationErrorMap(err),
			})
			return
		}

		var user models.User
		err := config.GetDB().WithContext(c.Request.Context()).
			Where("username = ? AND is_active = ?", req.Username, true).
			Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := utils.ComparePassword(user.Password, req.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := utils.JwtGenerate(user.ID, user.Username, string(user.Role))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = config.SetRedisValue("Token:"+token, user.Username, sessionTTL())
		_ = config.SetRedisObject("User:"+user.Username, user, sessionTTL())

		c.JSON(http.StatusOK, LoginResponse{
			Token:     token,
			Username:  user.Username,
			Name:      user.Name,
			Role:      string(user.Role),
			CompanyId: user.CompanyId,
		})
	}
}

// LogoutHandler drops the caller's redis session. The JWT itself expires on
// its own schedule.
func LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.GetTokenFromContext(c.Request.Context())
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		username, _ := utils.GetUsernameFromContext(c.Request.Context())
		keys := []string{"Token:" + token}
		if username != "" {
			keys = append(keys, "User:"+username)
		}
		_ = config.RemoveRedisKey(keys...)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
