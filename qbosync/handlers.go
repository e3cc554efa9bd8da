package qbosync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

// SyncHandler triggers a full QuickBooks sync for the requested company. The
// run executes inline and the response carries the per-module counts.
func SyncHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "companyId is required"})
			return
		}

		companyId, err := resolveCompanyID(c, req.CompanyId)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
			return
		}
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)

		// One sync per company at a time. Lock failures fall through to a 409
		// rather than queueing: the caller just retries after the running sync.
		if locker := config.GetRedisLock(); locker != nil {
			lock, err := locker.Obtain(ctx, "QboSyncLock:"+companyId, 5*time.Minute, nil)
			if err == redislock.ErrNotObtained {
				c.JSON(http.StatusConflict, gin.H{"success": false, "error": "a sync is already running for this company"})
				return
			}
			if err == nil {
				defer lock.Release(config.GetRedisContext())
			}
		}

		resp, err := deps.RunSync(ctx, companyId, models.SyncTriggeredManual)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// StatusHandler returns the connection state for the caller's company.
func StatusHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c, c.Query("companyId"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)

		conn, err := deps.Connections.GetActiveByCompany(ctx, companyId)
		var notFound *ConnectionNotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusOK, StatusResponse{
				Connection: ConnectionResponse{Status: "disconnected"},
			})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		createdAt := conn.CreatedAt
		tokenExpiresAt := conn.TokenExpiresAt
		c.JSON(http.StatusOK, StatusResponse{
			Connection: ConnectionResponse{
				Status:  "connected",
				RealmId: conn.RealmId,
			},
			LastSyncAt:     formatTime(conn.LastSyncAt),
			TokenExpiresAt: formatTime(&tokenExpiresAt),
			CreatedAt:      formatTime(&createdAt),
		})
	}
}

// ConnectHandler stores the OAuth material handed over by the frontend after
// the Intuit authorization redirect.
func ConnectHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "companyId, realmId, accessToken and refreshToken are required",
				"fields": utils.ValidationErrorMap(err),
			})
			return
		}

		companyId, err := resolveCompanyID(c, req.CompanyId)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)

		expiresIn := req.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = 3600
		}
		conn := &models.QboConnection{
			CompanyId:      companyId,
			RealmId:        strings.TrimSpace(req.RealmId),
			AccessToken:    req.AccessToken,
			RefreshToken:   req.RefreshToken,
			TokenExpiresAt: deps.Now().Add(time.Duration(expiresIn) * time.Second),
			IsActive:       utils.NewTrue(),
		}
		if err := deps.Connections.Upsert(ctx, conn); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func DisconnectHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "companyId is required"})
			return
		}

		companyId, err := resolveCompanyID(c, req.CompanyId)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)

		if err := deps.Connections.Deactivate(ctx, companyId); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func SyncHistoryHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c, c.Query("companyId"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)

		limit, _ := strconv.Atoi(c.Query("limit"))
		runs, err := deps.Runs.ListByCompany(ctx, companyId, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c, c.Query("companyId"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)

		runId, err := strconv.Atoi(c.Param("id"))
		if err != nil || runId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		run, err := deps.Runs.GetById(ctx, companyId, runId)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		syncErrors, err := deps.Runs.ListErrors(ctx, runId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(*run),
			Errors:          mapErrors(syncErrors),
		})
	}
}

// RetrySyncRunHandler starts a fresh run for the company a finished run
// belongs to. Runs are not resumable, so retry means run again.
func RetrySyncRunHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c, c.Query("companyId"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)

		runId, err := strconv.Atoi(c.Param("id"))
		if err != nil || runId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}
		if _, err := deps.Runs.GetById(ctx, companyId, runId); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync run not found"})
			return
		}

		resp, err := deps.RunSync(ctx, companyId, models.SyncTriggeredRetry)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// resolveCompanyID authenticates the caller and authorizes access to the
// requested company. Admin users may act on any company; everyone else is
// pinned to their own.
func resolveCompanyID(c *gin.Context, requested string) (string, error) {
	username, ok := utils.GetUsernameFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(username) == "" {
		return "", &AuthenticationError{}
	}

	user, err := lookupUser(c.Request.Context(), username)
	if err != nil {
		return "", &AuthenticationError{}
	}

	requested = strings.TrimSpace(requested)
	if requested == "" {
		requested = user.CompanyId
	}
	if requested == "" {
		return "", &AuthenticationError{Reason: "companyId is required"}
	}
	if user.Role != models.UserRoleAdmin && requested != user.CompanyId {
		return "", &AuthenticationError{Reason: "not authorized for this company"}
	}
	return requested, nil
}

func lookupUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err == nil && exists {
		return &user, nil
	}

	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := db.WithContext(ctx).
		Where("username = ?", username).
		Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
