package models

import "time"

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
)

type SyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	CompanyId     string     `gorm:"index;size:36;not null" json:"company_id"`
	ConnectionId  uint       `gorm:"index;not null" json:"connection_id"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	ItemsCount    int        `json:"items_count"`
	AccountsCount int        `json:"accounts_count"`
	PlDataCount   int        `json:"pl_data_count"`
	PlDataSource  string     `gorm:"size:20" json:"pl_data_source"`
	ErrorCount    int        `json:"error_count"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncError struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	SyncRunId  uint      `gorm:"index;not null" json:"sync_run_id"`
	CompanyId  string    `gorm:"index;size:36;not null" json:"company_id"`
	EntityType string    `gorm:"size:50" json:"entity_type"`
	QboId      string    `gorm:"size:64" json:"qbo_id"`
	ErrorCode  string    `gorm:"size:64" json:"error_code"`
	Message    string    `gorm:"type:text" json:"message"`
	Retryable  bool      `gorm:"default:false" json:"retryable"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
