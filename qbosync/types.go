package qbosync

import (
	"time"

	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

type SyncRequest struct {
	CompanyId string `json:"companyId" binding:"required"`
}

// EntityRef is the diagnostic shape returned for every item/account processed.
type EntityRef struct {
	Name string `json:"name"`
	Id   string `json:"id"`
	Type string `json:"type"`
}

type SyncResponse struct {
	Success       bool        `json:"success"`
	ItemsCount    int         `json:"itemsCount"`
	AccountsCount int         `json:"accountsCount"`
	PlDataCount   int         `json:"plDataCount"`
	Message       string      `json:"message"`
	ItemsFound    []EntityRef `json:"itemsFound"`
	AccountsFound []EntityRef `json:"accountsFound"`
}

type ConnectRequest struct {
	CompanyId    string `json:"companyId" binding:"required"`
	RealmId      string `json:"realmId" binding:"required"`
	AccessToken  string `json:"accessToken" binding:"required"`
	RefreshToken string `json:"refreshToken" binding:"required"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type StatusResponse struct {
	Connection     ConnectionResponse `json:"connection"`
	LastSyncAt     *string            `json:"lastSyncAt"`
	TokenExpiresAt *string            `json:"tokenExpiresAt"`
	CreatedAt      *string            `json:"createdAt"`
}

type ConnectionResponse struct {
	Status  string `json:"status"`
	RealmId string `json:"realmId"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID            uint    `json:"id"`
	Status        string  `json:"status"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	ItemsCount    int     `json:"itemsCount"`
	AccountsCount int     `json:"accountsCount"`
	PlDataCount   int     `json:"plDataCount"`
	PlDataSource  string  `json:"plDataSource"`
	ErrorCount    int     `json:"errorCount"`
	TriggeredBy   string  `json:"triggeredBy"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID         uint   `json:"id"`
	EntityType string `json:"entityType"`
	QboId      string `json:"qboId"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		Status:        run.Status,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		ItemsCount:    run.ItemsCount,
		AccountsCount: run.AccountsCount,
		PlDataCount:   run.PlDataCount,
		PlDataSource:  run.PlDataSource,
		ErrorCount:    run.ErrorCount,
		TriggeredBy:   run.TriggeredBy,
	}
}

func mapErrors(errorsList []models.SyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:         errItem.ID,
			EntityType: errItem.EntityType,
			QboId:      errItem.QboId,
			Message:    errItem.Message,
			Retryable:  errItem.Retryable,
		})
	}
	return out
}
