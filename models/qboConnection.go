package models

import "time"

const (
	QboProvider = "quickbooks"
)

// QboConnection holds the stored OAuth material and connection status for a
// company's QuickBooks Online link. The access/refresh tokens are written only
// by the connect flow and the token refresher; the access token must never be
// used past TokenExpiresAt without a refresh attempt first.
type QboConnection struct {
	ID             uint       `gorm:"primary_key" json:"id"`
	CompanyId      string     `gorm:"uniqueIndex;size:36;not null" json:"company_id"`
	RealmId        string     `gorm:"index;size:64;not null" json:"realm_id"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	TokenExpiresAt time.Time  `json:"token_expires_at"`
	IsActive       *bool      `gorm:"not null;default:true" json:"is_active"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
