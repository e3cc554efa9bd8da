package qbosync

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
	"bitbucket.org/mmdatafocus/qbsync_backend/utils"
)

// reportClient is the remote API surface the reconcilers need. qboClient is
// the real implementation; tests substitute their own.
type reportClient interface {
	QueryItems(ctx context.Context) ([]qboItem, error)
	QueryAccounts(ctx context.Context, includeInactive bool) ([]qboAccount, error)
	FetchProfitAndLoss(ctx context.Context, start time.Time, end time.Time) (*reportPayload, error)
	FetchTrialBalance(ctx context.Context, start time.Time, end time.Time) (*reportPayload, error)
}

// Deps bundles everything a sync run touches. Handlers build one from the
// live database; tests build one from fakes.
type Deps struct {
	Config      config.QboConfig
	Connections ConnectionStore
	Products    ProductStore
	Accounts    AccountStore
	ProfitLoss  ProfitLossStore
	Runs        RunStore
	Logger      *logrus.Logger
	HTTPClient  *http.Client
	Now         func() time.Time
	NewClient   func(cfg config.QboConfig, realmId string, accessToken string) reportClient
}

func NewDeps() *Deps {
	return &Deps{
		Config:      config.LoadQboConfig(),
		Connections: NewConnectionStore(),
		Products:    NewProductStore(),
		Accounts:    NewAccountStore(),
		ProfitLoss:  NewProfitLossStore(),
		Runs:        NewRunStore(),
		Logger:      config.GetLogger(),
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Now:         time.Now,
		NewClient: func(cfg config.QboConfig, realmId string, accessToken string) reportClient {
			return newQboClient(cfg, realmId, accessToken)
		},
	}
}

// RunSync executes one full sync for a company: items, then accounts, then
// profit and loss. A failed reconciler is recorded and the run continues;
// only missing connections and token refresh failures abort the whole run.
func (d *Deps) RunSync(ctx context.Context, companyId string, triggeredBy string) (*SyncResponse, error) {
	conn, err := d.Connections.GetActiveByCompany(ctx, companyId)
	if err != nil {
		return nil, err
	}

	now := d.Now()
	if tokenExpired(conn, now) {
		if err := refreshTokens(ctx, d.Config, d.HTTPClient, d.Connections, conn, now); err != nil {
			config.LogError(d.Logger, "qbosync", "RunSync", "token refresh", logrus.Fields{"companyId": companyId}, err)
			return nil, err
		}
	}

	startedAt := d.Now()
	run := &models.SyncRun{
		CompanyId:    companyId,
		ConnectionId: conn.ID,
		Status:       models.SyncRunStatusRunning,
		TriggeredBy:  triggeredBy,
		StartedAt:    &startedAt,
	}
	if err := d.Runs.Create(ctx, run); err != nil {
		return nil, err
	}

	client := d.NewClient(d.Config, conn.RealmId, conn.AccessToken)
	errorCount := 0

	itemsCount, itemsFound, err := d.syncItems(ctx, run, companyId, client)
	if err != nil {
		errorCount++
		d.recordSyncError(ctx, run, companyId, "items", "", "sync_failed", err.Error(), true)
	}

	accountsCount, accountsFound, err := d.syncAccounts(ctx, run, companyId, client)
	if err != nil {
		errorCount++
		d.recordSyncError(ctx, run, companyId, "accounts", "", "sync_failed", err.Error(), true)
	}

	plCount, plSource, err := d.syncProfitLoss(ctx, run, companyId, client, now)
	if err != nil {
		errorCount++
		d.recordSyncError(ctx, run, companyId, "profit_loss", "", "sync_failed", err.Error(), true)
	}

	finishedAt := d.Now()
	status := models.SyncRunStatusSuccess
	if errorCount > 0 && itemsCount+accountsCount+plCount == 0 {
		status = models.SyncRunStatusFailed
	} else if errorCount > 0 {
		status = models.SyncRunStatusPartial
	}

	run.Status = status
	run.ItemsCount = itemsCount
	run.AccountsCount = accountsCount
	run.PlDataCount = plCount
	run.PlDataSource = plSource
	run.ErrorCount += errorCount
	run.FinishedAt = &finishedAt
	run.DurationMs = finishedAt.Sub(startedAt).Milliseconds()
	if err := d.Runs.Update(ctx, run); err != nil {
		config.LogError(d.Logger, "qbosync", "RunSync", "finalize run", logrus.Fields{"runId": run.ID}, err)
	}

	// A failed run synced nothing, so the connection keeps its previous
	// last-sync timestamp.
	if status != models.SyncRunStatusFailed {
		if err := d.Connections.UpdateLastSync(ctx, companyId, finishedAt); err != nil {
			config.LogError(d.Logger, "qbosync", "RunSync", "update last sync", logrus.Fields{"companyId": companyId}, err)
		}
	}

	message := fmt.Sprintf("QuickBooks sync completed: %d items, %d accounts, %d profit and loss entries", itemsCount, accountsCount, plCount)
	if status == models.SyncRunStatusPartial {
		message = fmt.Sprintf("QuickBooks sync completed with %d error(s): %d items, %d accounts, %d profit and loss entries", errorCount, itemsCount, accountsCount, plCount)
	} else if status == models.SyncRunStatusFailed {
		message = "QuickBooks sync failed: no records were synced"
	}

	return &SyncResponse{
		Success:       status != models.SyncRunStatusFailed,
		ItemsCount:    itemsCount,
		AccountsCount: accountsCount,
		PlDataCount:   plCount,
		Message:       message,
		ItemsFound:    itemsFound,
		AccountsFound: accountsFound,
	}, nil
}

func (d *Deps) recordSyncError(ctx context.Context, run *models.SyncRun, companyId string, entityType string, qboId string, code string, message string, retryable bool) {
	syncError := &models.SyncError{
		SyncRunId:  run.ID,
		CompanyId:  companyId,
		EntityType: entityType,
		QboId:      qboId,
		ErrorCode:  code,
		Message:    message,
		Retryable:  retryable,
	}
	if err := d.Runs.AddError(ctx, syncError); err != nil {
		config.LogError(d.Logger, "qbosync", "recordSyncError", entityType, logrus.Fields{"runId": run.ID}, err)
	}
}

// mapItemType translates the QBO item taxonomy. Inventory and NonInventory
// items are goods; everything else (Service, Category, Bundle) sells as a
// service.
func mapItemType(qboType string) models.ProductType {
	switch qboType {
	case "Inventory", "NonInventory":
		return models.ProductTypeProduct
	}
	return models.ProductTypeService
}

func (d *Deps) syncItems(ctx context.Context, run *models.SyncRun, companyId string, client reportClient) (int, []EntityRef, error) {
	items, err := client.QueryItems(ctx)
	if err != nil {
		return 0, nil, err
	}

	found := make([]EntityRef, 0, len(items))
	products := make([]models.Product, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Id) == "" {
			d.recordSyncError(ctx, run, companyId, "item", "", "missing_id", "item id missing", false)
			continue
		}
		found = append(found, EntityRef{Name: item.Name, Id: item.Id, Type: item.Type})

		product := models.Product{
			CompanyId:   companyId,
			Name:        strings.TrimSpace(item.Name),
			ProductType: mapItemType(item.Type),
			IsActive:    boolPtr(item.Active),
			QboId:       item.Id,
		}
		if desc := strings.TrimSpace(item.Description); desc != "" {
			product.Description = &desc
		}
		if price, err := decimal.NewFromString(item.UnitPrice.String()); err == nil {
			product.UnitPrice = &price
		}
		products = append(products, product)
	}

	count := 0
	for _, outcome := range d.Products.UpsertBatch(ctx, products) {
		if outcome.Err != nil {
			d.recordSyncError(ctx, run, companyId, "item", outcome.QboId, "upsert_failed", outcome.Err.Error(), true)
			continue
		}
		count++
	}
	return count, found, nil
}

// mapAccountType translates the QBO account taxonomy to the local enum. The
// Classification field is authoritative when present; AccountType is the
// fallback. Unknown types land on asset rather than failing the record.
func mapAccountType(qboType string, classification string) models.AccountType {
	switch classification {
	case "Asset":
		return models.AccountTypeAsset
	case "Liability":
		return models.AccountTypeLiability
	case "Equity":
		return models.AccountTypeEquity
	case "Revenue":
		return models.AccountTypeRevenue
	case "Expense":
		return models.AccountTypeExpense
	}
	switch qboType {
	case "Asset", "Bank", "Fixed Asset", "Other Asset", "Other Current Asset", "Accounts Receivable":
		return models.AccountTypeAsset
	case "Liability", "Credit Card", "Long Term Liability", "Other Current Liability", "Accounts Payable":
		return models.AccountTypeLiability
	case "Equity":
		return models.AccountTypeEquity
	case "Income", "Revenue", "Other Income":
		return models.AccountTypeRevenue
	case "Expense", "Other Expense", "Cost of Goods Sold":
		return models.AccountTypeExpense
	}
	return models.AccountTypeAsset
}

func (d *Deps) syncAccounts(ctx context.Context, run *models.SyncRun, companyId string, client reportClient) (int, []EntityRef, error) {
	remoteAccounts, err := client.QueryAccounts(ctx, true)
	if err != nil {
		return 0, nil, err
	}

	found := make([]EntityRef, 0, len(remoteAccounts))
	accounts := make([]models.Account, 0, len(remoteAccounts))
	for _, remote := range remoteAccounts {
		if strings.TrimSpace(remote.Id) == "" {
			d.recordSyncError(ctx, run, companyId, "account", "", "missing_id", "account id missing", false)
			continue
		}
		found = append(found, EntityRef{Name: remote.Name, Id: remote.Id, Type: remote.AccountType})

		accounts = append(accounts, models.Account{
			CompanyId:   companyId,
			AccountCode: strings.TrimSpace(remote.AcctNum),
			AccountName: strings.TrimSpace(remote.Name),
			AccountType: mapAccountType(remote.AccountType, remote.Classification),
			IsActive:    boolPtr(remote.Active),
			QboId:       remote.Id,
		})
	}

	count := 0
	for _, outcome := range d.Accounts.UpsertBatch(ctx, accounts) {
		if outcome.Err != nil {
			d.recordSyncError(ctx, run, companyId, "account", outcome.QboId, "upsert_failed", outcome.Err.Error(), true)
			continue
		}
		count++
	}
	return count, found, nil
}

// syncProfitLoss builds this fiscal year's entries from the best available
// source: the P&L report, then the trial balance, then zero-amount estimate
// rows per revenue/expense account, then - only when the primary report
// fetch itself failed - a fixed sample set. A trial-balance fetch failure
// is not fatal; the run falls through to estimation. Whatever tier fires,
// the year's rows are replaced in full so reruns never accumulate stale
// entries.
func (d *Deps) syncProfitLoss(ctx context.Context, run *models.SyncRun, companyId string, client reportClient, now time.Time) (int, string, error) {
	fiscalYear := now.Year()
	yearStart := time.Date(fiscalYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := time.Date(fiscalYear, time.December, 31, 0, 0, 0, 0, time.UTC)

	accounts, err := d.Accounts.ListByCompany(ctx, companyId)
	if err != nil {
		return 0, "", err
	}
	index := newAccountIndex(accounts)

	var entries []models.ProfitLossEntry
	source := models.PlDataSourceReport
	primaryFailed := false

	payload, err := client.FetchProfitAndLoss(ctx, yearStart, yearEnd)
	if err != nil {
		primaryFailed = true
		reportErr := &ReportUnavailableError{Report: "ProfitAndLoss", Err: err}
		config.LogError(d.Logger, "qbosync", "syncProfitLoss", "falling back", logrus.Fields{"companyId": companyId}, reportErr)
	} else {
		entries = d.entriesFromReport(companyId, payload, index, now, fiscalYear)
	}

	if len(entries) == 0 && !primaryFailed {
		tbPayload, err := client.FetchTrialBalance(ctx, yearStart, yearEnd)
		if err != nil {
			reportErr := &ReportUnavailableError{Report: "TrialBalance", Err: err}
			config.LogError(d.Logger, "qbosync", "syncProfitLoss", "falling back", logrus.Fields{"companyId": companyId}, reportErr)
		} else {
			entries = d.entriesFromTrialBalance(companyId, tbPayload, index, now, fiscalYear)
			source = models.PlDataSourceTrialBalance
		}
	}

	if len(entries) == 0 && !primaryFailed {
		entries = d.estimateEntries(companyId, accounts, now, fiscalYear)
		source = models.PlDataSourceEstimate
	}

	if len(entries) == 0 && primaryFailed {
		entries = sampleEntries(companyId, now, fiscalYear)
		source = models.PlDataSourceSample
	}

	if err := d.ProfitLoss.ReplaceForYear(ctx, companyId, fiscalYear, entries); err != nil {
		return 0, "", err
	}
	return len(entries), source, nil
}

// accountIndex resolves report lines to chart-of-accounts rows, by QBO id
// first and case-insensitive name second.
type accountIndex struct {
	byQboId map[string]*models.Account
	byName  map[string]*models.Account
}

func newAccountIndex(accounts []models.Account) *accountIndex {
	index := &accountIndex{
		byQboId: make(map[string]*models.Account, len(accounts)),
		byName:  make(map[string]*models.Account, len(accounts)),
	}
	for i := range accounts {
		account := &accounts[i]
		if account.QboId != "" {
			index.byQboId[account.QboId] = account
		}
		index.byName[strings.ToLower(account.AccountName)] = account
	}
	return index
}

func (idx *accountIndex) resolve(line plLine) *models.Account {
	if line.QboAccountId != "" {
		if account, ok := idx.byQboId[line.QboAccountId]; ok {
			return account
		}
	}
	if account, ok := idx.byName[strings.ToLower(line.Label)]; ok {
		return account
	}
	return nil
}

// newPlEntry allocates a YTD amount across the periods. The report gives no
// per-period breakdown, so current month is YTD/12 and quarter-to-date is
// YTD/4, both rounded to cents. Amounts are stored as positive magnitudes.
// Budgets are not synced from QBO, so the budget columns stay zero and
// variance (actual minus budget) equals the actual figures.
func newPlEntry(companyId string, accountType models.AccountType, line plLine, account *models.Account, now time.Time, fiscalYear int, source string, estimated bool) models.ProfitLossEntry {
	yearToDate := line.Amount.Abs().Round(2)
	currentMonth := yearToDate.Div(decimal.NewFromInt(12)).Round(2)
	quarterToDate := yearToDate.Div(decimal.NewFromInt(4)).Round(2)
	entry := models.ProfitLossEntry{
		CompanyId:     companyId,
		AccountName:   line.Label,
		AccountType:   accountType,
		ReportDate:    now,
		FiscalYear:    fiscalYear,
		FiscalQuarter: (int(now.Month())-1)/3 + 1,
		FiscalMonth:   int(now.Month()),
		CurrentMonth:  currentMonth,
		QuarterToDate: quarterToDate,
		YearToDate:    yearToDate,

		VarianceCurrentMonth:  currentMonth,
		VarianceQuarterToDate: quarterToDate,
		VarianceYearToDate:    yearToDate,

		DataSource:  source,
		IsEstimated: boolPtr(estimated),
	}
	if line.QboAccountId != "" {
		qboId := line.QboAccountId
		entry.QboAccountId = &qboId
	}
	if account != nil {
		accountId := account.ID
		entry.AccountId = &accountId
		// The chart of accounts is authoritative for typing once the line is
		// matched to an account.
		entry.AccountType = account.AccountType
	}
	return entry
}

func (d *Deps) entriesFromReport(companyId string, payload *reportPayload, index *accountIndex, now time.Time, fiscalYear int) []models.ProfitLossEntry {
	var entries []models.ProfitLossEntry
	for _, section := range parseProfitAndLoss(payload) {
		for _, line := range section.Rows {
			account := index.resolve(line)
			entries = append(entries, newPlEntry(companyId, section.Type, line, account, now, fiscalYear, models.PlDataSourceReport, false))
		}
	}
	return entries
}

func (d *Deps) entriesFromTrialBalance(companyId string, payload *reportPayload, index *accountIndex, now time.Time, fiscalYear int) []models.ProfitLossEntry {
	var entries []models.ProfitLossEntry
	for _, line := range parseTrialBalance(payload) {
		account := index.resolve(line)
		accountType := models.AccountTypeExpense
		if account != nil {
			accountType = account.AccountType
		}
		// The trial balance covers the whole chart; only income-statement
		// accounts belong in a P&L.
		if accountType != models.AccountTypeRevenue && accountType != models.AccountTypeExpense {
			continue
		}
		entries = append(entries, newPlEntry(companyId, accountType, line, account, now, fiscalYear, models.PlDataSourceTrialBalance, false))
	}
	return entries
}

// estimateEntries emits one zero-amount row per revenue/expense account so a
// connected but sparse company still renders a P&L shape. Rows are flagged
// estimated and carry no invented figures.
func (d *Deps) estimateEntries(companyId string, accounts []models.Account, now time.Time, fiscalYear int) []models.ProfitLossEntry {
	var entries []models.ProfitLossEntry
	for i := range accounts {
		account := &accounts[i]
		if account.AccountType != models.AccountTypeRevenue && account.AccountType != models.AccountTypeExpense {
			continue
		}
		line := plLine{Label: account.AccountName, QboAccountId: account.QboId}
		entries = append(entries, newPlEntry(companyId, account.AccountType, line, account, now, fiscalYear, models.PlDataSourceEstimate, true))
	}
	return entries
}

// sampleEntries is the last-resort dataset used only when the primary report
// fetch itself failed. Flagged estimated so consumers can tell it apart from
// real figures.
func sampleEntries(companyId string, now time.Time, fiscalYear int) []models.ProfitLossEntry {
	samples := []struct {
		name   string
		typ    models.AccountType
		amount int64
	}{
		{"Sales Revenue", models.AccountTypeRevenue, 120000},
		{"Service Revenue", models.AccountTypeRevenue, 45000},
		{"Cost of Goods Sold", models.AccountTypeExpense, 52000},
		{"Payroll Expenses", models.AccountTypeExpense, 38000},
		{"Rent Expense", models.AccountTypeExpense, 24000},
		{"Utilities Expense", models.AccountTypeExpense, 6000},
	}

	entries := make([]models.ProfitLossEntry, 0, len(samples))
	for _, sample := range samples {
		line := plLine{Label: sample.name, Amount: decimal.NewFromInt(sample.amount)}
		entry := newPlEntry(companyId, sample.typ, line, nil, now, fiscalYear, models.PlDataSourceSample, true)
		entries = append(entries, entry)
	}
	return entries
}

func boolPtr(v bool) *bool {
	if v {
		return utils.NewTrue()
	}
	return utils.NewFalse()
}
