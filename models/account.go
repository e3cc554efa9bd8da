package models

import "time"

// Account is one chart-of-accounts row synced from QuickBooks. Reconciliation
// identity is (company_id, qbo_id); sync overwrites all mapped fields and never
// deletes.
type Account struct {
	ID          int         `gorm:"primary_key" json:"id"`
	CompanyId   string      `gorm:"uniqueIndex:idx_accounts_company_qbo,priority:1;size:36;not null" json:"company_id"`
	AccountCode string      `gorm:"index;size:100" json:"account_code"`
	AccountName string      `gorm:"index;size:255;not null" json:"account_name"`
	AccountType AccountType `gorm:"type:enum('asset','liability','equity','revenue','expense');default:'asset';size:10;not null" json:"account_type"`
	IsActive    *bool       `gorm:"not null;default:true" json:"is_active"`
	QboId       string      `gorm:"uniqueIndex:idx_accounts_company_qbo,priority:2;size:64;not null" json:"qbo_id"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}
