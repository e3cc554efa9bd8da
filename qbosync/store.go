package qbosync

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

// UpsertOutcome is the per-record result of a batch upsert. One bad record
// must not abort the batch, so failures come back here instead of as a
// batch-level error.
type UpsertOutcome struct {
	QboId   string
	Created bool
	Err     error
}

type ConnectionStore interface {
	GetActiveByCompany(ctx context.Context, companyId string) (*models.QboConnection, error)
	Upsert(ctx context.Context, conn *models.QboConnection) error
	UpdateTokens(ctx context.Context, conn *models.QboConnection) error
	UpdateLastSync(ctx context.Context, companyId string, at time.Time) error
	Deactivate(ctx context.Context, companyId string) error
}

type ProductStore interface {
	UpsertBatch(ctx context.Context, products []models.Product) []UpsertOutcome
}

type AccountStore interface {
	UpsertBatch(ctx context.Context, accounts []models.Account) []UpsertOutcome
	ListByCompany(ctx context.Context, companyId string) ([]models.Account, error)
}

type ProfitLossStore interface {
	ReplaceForYear(ctx context.Context, companyId string, fiscalYear int, entries []models.ProfitLossEntry) error
}

type RunStore interface {
	Create(ctx context.Context, run *models.SyncRun) error
	Update(ctx context.Context, run *models.SyncRun) error
	AddError(ctx context.Context, syncError *models.SyncError) error
	ListByCompany(ctx context.Context, companyId string, limit int) ([]models.SyncRun, error)
	GetById(ctx context.Context, companyId string, id int) (*models.SyncRun, error)
	ListErrors(ctx context.Context, runId int) ([]models.SyncError, error)
}

// The gorm stores resolve the database per call: the HTTP server starts
// listening before the first connection attempt, and the readiness gate keeps
// handlers out until config.GetDB() is non-nil.
func dbFor(ctx context.Context) *gorm.DB {
	return config.GetDB().WithContext(ctx)
}

type gormConnectionStore struct{}

func NewConnectionStore() ConnectionStore {
	return &gormConnectionStore{}
}

func (s *gormConnectionStore) GetActiveByCompany(ctx context.Context, companyId string) (*models.QboConnection, error) {
	var conn models.QboConnection
	err := dbFor(ctx).
		Where("company_id = ? AND is_active = ?", companyId, true).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ConnectionNotFoundError{CompanyId: companyId}
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s *gormConnectionStore) Upsert(ctx context.Context, conn *models.QboConnection) error {
	return dbFor(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "company_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"realm_id", "access_token", "refresh_token", "token_expires_at", "is_active",
			}),
		}).
		Create(conn).Error
}

func (s *gormConnectionStore) UpdateTokens(ctx context.Context, conn *models.QboConnection) error {
	return dbFor(ctx).
		Model(&models.QboConnection{}).
		Where("company_id = ?", conn.CompanyId).
		Updates(map[string]any{
			"access_token":     conn.AccessToken,
			"refresh_token":    conn.RefreshToken,
			"token_expires_at": conn.TokenExpiresAt,
		}).Error
}

func (s *gormConnectionStore) UpdateLastSync(ctx context.Context, companyId string, at time.Time) error {
	return dbFor(ctx).
		Model(&models.QboConnection{}).
		Where("company_id = ?", companyId).
		Update("last_sync_at", at).Error
}

func (s *gormConnectionStore) Deactivate(ctx context.Context, companyId string) error {
	return dbFor(ctx).
		Model(&models.QboConnection{}).
		Where("company_id = ?", companyId).
		Update("is_active", false).Error
}

type gormProductStore struct{}

func NewProductStore() ProductStore {
	return &gormProductStore{}
}

var productUpsertConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "company_id"}, {Name: "qbo_id"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"name", "description", "product_type", "unit_price", "is_active",
	}),
}

func (s *gormProductStore) UpsertBatch(ctx context.Context, products []models.Product) []UpsertOutcome {
	outcomes := make([]UpsertOutcome, 0, len(products))
	for i := range products {
		product := products[i]
		result := dbFor(ctx).Clauses(productUpsertConflict).Create(&product)
		outcomes = append(outcomes, UpsertOutcome{
			QboId: product.QboId,
			// MySQL reports one affected row for an insert, two for a
			// duplicate-key update.
			Created: result.Error == nil && result.RowsAffected == 1,
			Err:     result.Error,
		})
	}
	return outcomes
}

type gormAccountStore struct{}

func NewAccountStore() AccountStore {
	return &gormAccountStore{}
}

var accountUpsertConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "company_id"}, {Name: "qbo_id"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"account_code", "account_name", "account_type", "is_active",
	}),
}

func (s *gormAccountStore) UpsertBatch(ctx context.Context, accounts []models.Account) []UpsertOutcome {
	outcomes := make([]UpsertOutcome, 0, len(accounts))
	for i := range accounts {
		account := accounts[i]
		result := dbFor(ctx).Clauses(accountUpsertConflict).Create(&account)
		outcomes = append(outcomes, UpsertOutcome{
			QboId:   account.QboId,
			Created: result.Error == nil && result.RowsAffected == 1,
			Err:     result.Error,
		})
	}
	return outcomes
}

func (s *gormAccountStore) ListByCompany(ctx context.Context, companyId string) ([]models.Account, error) {
	var accounts []models.Account
	err := dbFor(ctx).
		Where("company_id = ?", companyId).
		Find(&accounts).Error
	return accounts, err
}

type gormProfitLossStore struct{}

func NewProfitLossStore() ProfitLossStore {
	return &gormProfitLossStore{}
}

// ReplaceForYear deletes and reinserts the company's rows for one fiscal year
// in a single transaction, so readers never observe a half-written year.
func (s *gormProfitLossStore) ReplaceForYear(ctx context.Context, companyId string, fiscalYear int, entries []models.ProfitLossEntry) error {
	return dbFor(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where("company_id = ? AND fiscal_year = ?", companyId, fiscalYear).
			Delete(&models.ProfitLossEntry{}).Error
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.CreateInBatches(entries, 100).Error
	})
}

type gormRunStore struct{}

func NewRunStore() RunStore {
	return &gormRunStore{}
}

func (s *gormRunStore) Create(ctx context.Context, run *models.SyncRun) error {
	return dbFor(ctx).Create(run).Error
}

func (s *gormRunStore) Update(ctx context.Context, run *models.SyncRun) error {
	return dbFor(ctx).Save(run).Error
}

func (s *gormRunStore) AddError(ctx context.Context, syncError *models.SyncError) error {
	return dbFor(ctx).Create(syncError).Error
}

func (s *gormRunStore) ListByCompany(ctx context.Context, companyId string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []models.SyncRun
	err := dbFor(ctx).
		Where("company_id = ?", companyId).
		Order("id desc").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func (s *gormRunStore) GetById(ctx context.Context, companyId string, id int) (*models.SyncRun, error) {
	var run models.SyncRun
	err := dbFor(ctx).
		Where("company_id = ? AND id = ?", companyId, id).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *gormRunStore) ListErrors(ctx context.Context, runId int) ([]models.SyncError, error) {
	var syncErrors []models.SyncError
	err := dbFor(ctx).
		Where("sync_run_id = ?", runId).
		Order("id asc").
		Find(&syncErrors).Error
	return syncErrors, err
}
