package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product mirrors a QuickBooks item. Reconciliation identity is
// (company_id, qbo_id); sync overwrites all mapped fields and never deletes.
type Product struct {
	ID          int              `gorm:"primary_key" json:"id"`
	CompanyId   string           `gorm:"uniqueIndex:idx_products_company_qbo,priority:1;size:36;not null" json:"company_id"`
	Name        string           `gorm:"index;size:255;not null" json:"name"`
	Description *string          `gorm:"type:text" json:"description"`
	ProductType ProductType      `gorm:"type:enum('product','service');default:'service';size:10;not null" json:"product_type"`
	UnitPrice   *decimal.Decimal `gorm:"type:decimal(20,6)" json:"unit_price"`
	IsActive    *bool            `gorm:"not null;default:true" json:"is_active"`
	QboId       string           `gorm:"uniqueIndex:idx_products_company_qbo,priority:2;size:64;not null" json:"qbo_id"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}
