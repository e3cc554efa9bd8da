package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PlDataSourceReport       = "report"
	PlDataSourceTrialBalance = "trial_balance"
	PlDataSourceEstimate     = "estimate"
	PlDataSourceSample       = "sample"
)

// ProfitLossEntry is one account's activity for a fiscal period. Rows for a
// (company_id, fiscal_year) scope are fully replaced on every sync run: period
// allocations are derived, so upserting would accumulate stale estimates.
type ProfitLossEntry struct {
	ID           int         `gorm:"primary_key" json:"id"`
	CompanyId    string      `gorm:"index:idx_pl_company_year,priority:1;size:36;not null" json:"company_id"`
	AccountId    *int        `gorm:"index" json:"account_id"`
	AccountName  string      `gorm:"size:255;not null" json:"account_name"`
	AccountType  AccountType `gorm:"size:20;not null" json:"account_type"`
	QboAccountId *string     `gorm:"size:64" json:"qbo_account_id"`

	ReportDate    time.Time `json:"report_date"`
	FiscalYear    int       `gorm:"index:idx_pl_company_year,priority:2;not null" json:"fiscal_year"`
	FiscalQuarter int       `gorm:"not null" json:"fiscal_quarter"`
	FiscalMonth   int       `gorm:"not null" json:"fiscal_month"`

	CurrentMonth  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"current_month"`
	QuarterToDate decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"quarter_to_date"`
	YearToDate    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"year_to_date"`

	BudgetCurrentMonth  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"budget_current_month"`
	BudgetQuarterToDate decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"budget_quarter_to_date"`
	BudgetYearToDate    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"budget_year_to_date"`

	VarianceCurrentMonth  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"variance_current_month"`
	VarianceQuarterToDate decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"variance_quarter_to_date"`
	VarianceYearToDate    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"variance_year_to_date"`

	// DataSource records which fallback tier produced the row so consumers can
	// distinguish real report figures from estimates.
	DataSource  string    `gorm:"size:20;not null;default:'report'" json:"data_source"`
	IsEstimated *bool     `gorm:"not null;default:false" json:"is_estimated"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
