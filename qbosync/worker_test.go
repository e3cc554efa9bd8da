package qbosync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

// The store fakes mirror the database unique key on (company_id, qbo_id):
// a second upsert of the same remote record updates in place instead of
// appending, so rerun tests see the real record sets.
type fakeProductStore struct {
	upserted []models.Product
}

func (s *fakeProductStore) UpsertBatch(ctx context.Context, products []models.Product) []UpsertOutcome {
	outcomes := make([]UpsertOutcome, 0, len(products))
	for _, product := range products {
		replaced := false
		for i, existing := range s.upserted {
			if existing.CompanyId == product.CompanyId && existing.QboId == product.QboId {
				s.upserted[i] = product
				replaced = true
				break
			}
		}
		if !replaced {
			s.upserted = append(s.upserted, product)
		}
		outcomes = append(outcomes, UpsertOutcome{QboId: product.QboId, Created: !replaced})
	}
	return outcomes
}

type fakeAccountStore struct {
	accounts []models.Account
	listErr  error
}

func (s *fakeAccountStore) UpsertBatch(ctx context.Context, accounts []models.Account) []UpsertOutcome {
	outcomes := make([]UpsertOutcome, 0, len(accounts))
	for _, account := range accounts {
		replaced := false
		for i, existing := range s.accounts {
			if existing.CompanyId == account.CompanyId && existing.QboId == account.QboId {
				account.ID = existing.ID
				s.accounts[i] = account
				replaced = true
				break
			}
		}
		if !replaced {
			account.ID = len(s.accounts) + 1
			s.accounts = append(s.accounts, account)
		}
		outcomes = append(outcomes, UpsertOutcome{QboId: account.QboId, Created: !replaced})
	}
	return outcomes
}

func (s *fakeAccountStore) ListByCompany(ctx context.Context, companyId string) ([]models.Account, error) {
	return s.accounts, s.listErr
}

type fakeProfitLossStore struct {
	replaceCalls int
	fiscalYear   int
	entries      []models.ProfitLossEntry
	replaceErr   error
}

func (s *fakeProfitLossStore) ReplaceForYear(ctx context.Context, companyId string, fiscalYear int, entries []models.ProfitLossEntry) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.replaceCalls++
	s.fiscalYear = fiscalYear
	s.entries = entries
	return nil
}

type fakeRunStore struct {
	runs      []*models.SyncRun
	runErrors []models.SyncError
}

func (s *fakeRunStore) Create(ctx context.Context, run *models.SyncRun) error {
	run.ID = uint(len(s.runs) + 1)
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeRunStore) Update(ctx context.Context, run *models.SyncRun) error { return nil }

func (s *fakeRunStore) AddError(ctx context.Context, syncError *models.SyncError) error {
	s.runErrors = append(s.runErrors, *syncError)
	return nil
}

func (s *fakeRunStore) ListByCompany(ctx context.Context, companyId string, limit int) ([]models.SyncRun, error) {
	out := make([]models.SyncRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, *run)
	}
	return out, nil
}

func (s *fakeRunStore) GetById(ctx context.Context, companyId string, id int) (*models.SyncRun, error) {
	for _, run := range s.runs {
		if int(run.ID) == id {
			return run, nil
		}
	}
	return nil, errors.New("not found")
}

func (s *fakeRunStore) ListErrors(ctx context.Context, runId int) ([]models.SyncError, error) {
	return s.runErrors, nil
}

type fakeReportClient struct {
	items       []qboItem
	itemsErr    error
	accounts    []qboAccount
	accountsErr error
	pl          *reportPayload
	plErr       error
	tb          *reportPayload
	tbErr       error
	tbCalls     int
}

func (c *fakeReportClient) QueryItems(ctx context.Context) ([]qboItem, error) {
	return c.items, c.itemsErr
}

func (c *fakeReportClient) QueryAccounts(ctx context.Context, includeInactive bool) ([]qboAccount, error) {
	return c.accounts, c.accountsErr
}

func (c *fakeReportClient) FetchProfitAndLoss(ctx context.Context, start time.Time, end time.Time) (*reportPayload, error) {
	return c.pl, c.plErr
}

func (c *fakeReportClient) FetchTrialBalance(ctx context.Context, start time.Time, end time.Time) (*reportPayload, error) {
	c.tbCalls++
	return c.tb, c.tbErr
}

type testEnv struct {
	deps        *Deps
	connections *fakeConnectionStore
	products    *fakeProductStore
	accounts    *fakeAccountStore
	profitLoss  *fakeProfitLossStore
	runs        *fakeRunStore
	client      *fakeReportClient
}

var testNow = time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC)

func newTestEnv() *testEnv {
	env := &testEnv{
		connections: &fakeConnectionStore{},
		products:    &fakeProductStore{},
		accounts:    &fakeAccountStore{},
		profitLoss:  &fakeProfitLossStore{},
		runs:        &fakeRunStore{},
		client:      &fakeReportClient{pl: emptyReport(), tb: emptyReport()},
	}
	env.connections.conn = &models.QboConnection{
		ID:             1,
		CompanyId:      "company-1",
		RealmId:        "realm-1",
		AccessToken:    "access",
		RefreshToken:   "refresh",
		TokenExpiresAt: testNow.Add(time.Hour),
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	env.deps = &Deps{
		Connections: env.connections,
		Products:    env.products,
		Accounts:    env.accounts,
		ProfitLoss:  env.profitLoss,
		Runs:        env.runs,
		Logger:      logger,
		Now:         func() time.Time { return testNow },
		NewClient: func(cfg config.QboConfig, realmId string, accessToken string) reportClient {
			return env.client
		},
	}
	return env
}

func emptyReport() *reportPayload {
	return &reportPayload{}
}

func TestRunSync_ItemTypeMapping(t *testing.T) {
	env := newTestEnv()
	env.client.items = []qboItem{
		{Id: "1", Name: "Widget", Type: "Inventory", Active: true},
		{Id: "2", Name: "Gadget", Type: "NonInventory", Active: true},
		{Id: "3", Name: "Consulting", Type: "Service", Active: false},
	}

	resp, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.ItemsCount != 3 || len(resp.ItemsFound) != 3 {
		t.Fatalf("itemsCount=%d found=%d", resp.ItemsCount, len(resp.ItemsFound))
	}

	types := map[string]models.ProductType{}
	actives := map[string]bool{}
	for _, product := range env.products.upserted {
		types[product.QboId] = product.ProductType
		actives[product.QboId] = *product.IsActive
	}
	if types["1"] != models.ProductTypeProduct || types["2"] != models.ProductTypeProduct {
		t.Fatalf("inventory items must map to product: %+v", types)
	}
	if types["3"] != models.ProductTypeService {
		t.Fatalf("service item mapped to %s", types["3"])
	}
	if !actives["1"] || actives["3"] {
		t.Fatalf("is_active must mirror the remote flag: %+v", actives)
	}
}

func TestMapAccountType_Completeness(t *testing.T) {
	cases := []struct {
		qboType        string
		classification string
		expected       models.AccountType
	}{
		{"Asset", "", models.AccountTypeAsset},
		{"Bank", "Asset", models.AccountTypeAsset},
		{"Liability", "", models.AccountTypeLiability},
		{"Credit Card", "Liability", models.AccountTypeLiability},
		{"Equity", "", models.AccountTypeEquity},
		{"Income", "", models.AccountTypeRevenue},
		{"Revenue", "", models.AccountTypeRevenue},
		{"Other Income", "", models.AccountTypeRevenue},
		{"Expense", "", models.AccountTypeExpense},
		{"Other Expense", "", models.AccountTypeExpense},
		{"Cost of Goods Sold", "", models.AccountTypeExpense},
		{"Something Future", "", models.AccountTypeAsset},
		{"Something Future", "Revenue", models.AccountTypeRevenue},
	}
	for _, tc := range cases {
		got := mapAccountType(tc.qboType, tc.classification)
		if got != tc.expected {
			t.Fatalf("mapAccountType(%q, %q) = %s, expected %s", tc.qboType, tc.classification, got, tc.expected)
		}
	}
}

func TestRunSync_MissingConnection(t *testing.T) {
	env := newTestEnv()
	env.connections.conn = nil

	_, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	var notFound *ConnectionNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ConnectionNotFoundError, got %v", err)
	}
	if len(env.runs.runs) != 0 {
		t.Fatal("no run should be created without a connection")
	}
}

func TestRunSync_RefreshesExpiredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh-access","refresh_token":"fresh-refresh","expires_in":3600}`))
	}))
	defer server.Close()

	env := newTestEnv()
	// Boundary case: expiring exactly now counts as expired.
	env.connections.conn.TokenExpiresAt = testNow
	env.deps.Config = config.QboConfig{ClientID: "id", ClientSecret: "secret", TokenURL: server.URL}
	env.deps.HTTPClient = server.Client()

	var clientToken string
	env.deps.NewClient = func(cfg config.QboConfig, realmId string, accessToken string) reportClient {
		clientToken = accessToken
		return env.client
	}

	if _, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual); err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if clientToken != "fresh-access" {
		t.Fatalf("sync must use the refreshed token, got %q", clientToken)
	}
	if env.connections.updatedTokens == nil {
		t.Fatal("refreshed tokens were not persisted")
	}
}

func TestRunSync_TokenRefreshFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	env := newTestEnv()
	env.connections.conn.TokenExpiresAt = testNow.Add(-time.Minute)
	env.deps.Config = config.QboConfig{TokenURL: server.URL}
	env.deps.HTTPClient = server.Client()

	_, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	var refreshErr *TokenRefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("expected TokenRefreshError, got %v", err)
	}
	if len(env.runs.runs) != 0 {
		t.Fatal("no run should start after a refresh failure")
	}
	if env.profitLoss.replaceCalls != 0 {
		t.Fatal("no data should be written after a refresh failure")
	}
}

func TestRunSync_PartialWhenOneModuleFails(t *testing.T) {
	env := newTestEnv()
	env.client.itemsErr = &RemoteApiError{StatusCode: 500, Body: "boom"}
	env.client.accounts = []qboAccount{
		{Id: "79", Name: "Sales", AccountType: "Income", Active: true},
	}

	resp, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if !resp.Success {
		t.Fatal("partial runs still report success")
	}
	if resp.ItemsCount != 0 || resp.AccountsCount != 1 {
		t.Fatalf("counts = %d items, %d accounts", resp.ItemsCount, resp.AccountsCount)
	}

	run := env.runs.runs[0]
	if run.Status != models.SyncRunStatusPartial {
		t.Fatalf("run status = %s", run.Status)
	}
	if len(env.runs.runErrors) == 0 || env.runs.runErrors[0].EntityType != "items" {
		t.Fatalf("expected a recorded items error, got %+v", env.runs.runErrors)
	}
	if env.connections.lastSyncAt == nil {
		t.Fatal("last sync timestamp must still be written")
	}
}

func TestSyncProfitLoss_ReportTier(t *testing.T) {
	env := newTestEnv()
	env.client.accounts = []qboAccount{
		{Id: "64", Name: "Office Rent", AccountType: "Expense", Classification: "Expense", Active: true},
		{Id: "79", Name: "Sales of Product Income", AccountType: "Income", Classification: "Revenue", Active: true},
	}
	env.client.pl = &reportPayload{
		Rows: reportRows{Row: []reportRow{
			{
				Type:  "Section",
				Group: "Expenses",
				Rows: reportRows{Row: []reportRow{
					{Type: "Data", ColData: []reportCol{{Value: "Office Rent", Id: "64"}, {Value: "(1,200.00)"}}},
				}},
			},
		}},
	}

	resp, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if resp.PlDataCount != 1 {
		t.Fatalf("plDataCount = %d", resp.PlDataCount)
	}
	if env.profitLoss.fiscalYear != testNow.Year() {
		t.Fatalf("fiscal year = %d", env.profitLoss.fiscalYear)
	}

	entry := env.profitLoss.entries[0]
	if entry.AccountType != models.AccountTypeExpense {
		t.Fatalf("account type = %s", entry.AccountType)
	}
	if entry.YearToDate.String() != "1200" {
		t.Fatalf("year_to_date = %s, expected positive magnitude 1200", entry.YearToDate.String())
	}
	if entry.CurrentMonth.String() != "100" {
		t.Fatalf("current_month = %s, expected 1200/12", entry.CurrentMonth.String())
	}
	if entry.QuarterToDate.String() != "300" {
		t.Fatalf("quarter_to_date = %s, expected 1200/4", entry.QuarterToDate.String())
	}
	// No budget is synced, so variance (actual minus budget) equals the actuals.
	if !entry.BudgetYearToDate.IsZero() {
		t.Fatalf("budget_year_to_date = %s, expected zero", entry.BudgetYearToDate.String())
	}
	if entry.VarianceYearToDate.String() != "1200" {
		t.Fatalf("variance_year_to_date = %s, expected 1200", entry.VarianceYearToDate.String())
	}
	if entry.VarianceCurrentMonth.String() != "100" || entry.VarianceQuarterToDate.String() != "300" {
		t.Fatalf("variance current_month = %s quarter_to_date = %s", entry.VarianceCurrentMonth.String(), entry.VarianceQuarterToDate.String())
	}
	if entry.AccountId == nil {
		t.Fatal("line must be joined to the synced account")
	}
	if env.client.tbCalls != 0 {
		t.Fatalf("trial balance fetched %d time(s) although the report produced entries", env.client.tbCalls)
	}
	if entry.DataSource != models.PlDataSourceReport || *entry.IsEstimated {
		t.Fatalf("source = %s estimated = %v", entry.DataSource, *entry.IsEstimated)
	}

	run := env.runs.runs[0]
	if run.PlDataSource != models.PlDataSourceReport {
		t.Fatalf("run pl source = %s", run.PlDataSource)
	}
}

func TestSyncProfitLoss_TrialBalanceTier(t *testing.T) {
	env := newTestEnv()
	env.client.accounts = []qboAccount{
		{Id: "35", Name: "Checking", AccountType: "Bank", Classification: "Asset", Active: true},
		{Id: "79", Name: "Sales", AccountType: "Income", Classification: "Revenue", Active: true},
	}
	env.client.pl = emptyReport()
	env.client.tb = &reportPayload{
		Rows: reportRows{Row: []reportRow{
			{Type: "Data", ColData: []reportCol{{Value: "Checking", Id: "35"}, {Value: "8,000.00"}, {Value: ""}}},
			{Type: "Data", ColData: []reportCol{{Value: "Sales", Id: "79"}, {Value: ""}, {Value: "12,500.00"}}},
		}},
	}

	resp, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	// The balance-sheet line is filtered out; only the revenue line lands.
	if resp.PlDataCount != 1 {
		t.Fatalf("plDataCount = %d", resp.PlDataCount)
	}
	entry := env.profitLoss.entries[0]
	if entry.AccountName != "Sales" || entry.AccountType != models.AccountTypeRevenue {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.DataSource != models.PlDataSourceTrialBalance {
		t.Fatalf("source = %s", entry.DataSource)
	}
}

func TestSyncProfitLoss_EstimateTier(t *testing.T) {
	env := newTestEnv()
	env.client.accounts = []qboAccount{
		{Id: "79", Name: "Sales", AccountType: "Income", Classification: "Revenue", Active: true},
		{Id: "64", Name: "Rent", AccountType: "Expense", Classification: "Expense", Active: true},
		{Id: "35", Name: "Checking", AccountType: "Bank", Classification: "Asset", Active: true},
	}

	resp, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if resp.PlDataCount != 2 {
		t.Fatalf("plDataCount = %d, expected one row per revenue/expense account", resp.PlDataCount)
	}
	for _, entry := range env.profitLoss.entries {
		if entry.DataSource != models.PlDataSourceEstimate || !*entry.IsEstimated {
			t.Fatalf("estimate rows must be flagged: %+v", entry)
		}
		if !entry.YearToDate.IsZero() {
			t.Fatalf("estimate rows carry no invented amounts: %s", entry.YearToDate.String())
		}
	}
}

func TestSyncProfitLoss_TrialBalanceFetchErrorFallsToEstimate(t *testing.T) {
	env := newTestEnv()
	env.client.accounts = []qboAccount{
		{Id: "79", Name: "Sales", AccountType: "Income", Classification: "Revenue", Active: true},
	}
	env.client.pl = emptyReport()
	env.client.tbErr = errors.New("report unavailable")

	resp, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	// The primary report succeeded (empty), so a trial-balance failure moves
	// on to estimation rather than the sample dataset.
	if resp.PlDataCount != 1 {
		t.Fatalf("plDataCount = %d", resp.PlDataCount)
	}
	entry := env.profitLoss.entries[0]
	if entry.DataSource != models.PlDataSourceEstimate || !*entry.IsEstimated {
		t.Fatalf("source = %s estimated = %v", entry.DataSource, *entry.IsEstimated)
	}
}

func TestSyncProfitLoss_SampleTierOnFetchError(t *testing.T) {
	env := newTestEnv()
	env.client.plErr = errors.New("dial tcp: connection refused")

	resp, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if !resp.Success {
		t.Fatal("a failed report fetch still yields a successful sync")
	}
	if resp.PlDataCount == 0 {
		t.Fatal("sample tier must produce entries")
	}
	for _, entry := range env.profitLoss.entries {
		if entry.DataSource != models.PlDataSourceSample || !*entry.IsEstimated {
			t.Fatalf("sample rows must be flagged: %+v", entry)
		}
	}
}

func TestSyncProfitLoss_ReplaceAlwaysRuns(t *testing.T) {
	env := newTestEnv()
	// No accounts, empty reports: every tier comes up empty, yet the year is
	// still replaced so stale rows from earlier runs are cleared.
	resp, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if resp.PlDataCount != 0 {
		t.Fatalf("plDataCount = %d", resp.PlDataCount)
	}
	if env.profitLoss.replaceCalls != 1 {
		t.Fatalf("ReplaceForYear calls = %d", env.profitLoss.replaceCalls)
	}
	if len(env.profitLoss.entries) != 0 {
		t.Fatalf("expected empty replacement, got %d entries", len(env.profitLoss.entries))
	}
}

func TestRunSync_SecondRunWithSameRemoteDataIsIdempotent(t *testing.T) {
	env := newTestEnv()
	env.client.items = []qboItem{
		{Id: "1", Name: "Widget", Type: "Inventory", Active: true},
		{Id: "3", Name: "Consulting", Type: "Service", Active: true},
	}
	env.client.accounts = []qboAccount{
		{Id: "64", Name: "Office Rent", AccountType: "Expense", Classification: "Expense", Active: true},
		{Id: "79", Name: "Sales", AccountType: "Income", Classification: "Revenue", Active: true},
	}
	env.client.pl = &reportPayload{
		Rows: reportRows{Row: []reportRow{
			{
				Type:  "Section",
				Group: "Expenses",
				Rows: reportRows{Row: []reportRow{
					{Type: "Data", ColData: []reportCol{{Value: "Office Rent", Id: "64"}, {Value: "1,200.00"}}},
				}},
			},
		}},
	}

	first, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("first RunSync: %v", err)
	}
	firstAccounts := make([]models.Account, len(env.accounts.accounts))
	copy(firstAccounts, env.accounts.accounts)

	second, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("second RunSync: %v", err)
	}

	if second.ItemsCount != first.ItemsCount || second.AccountsCount != first.AccountsCount || second.PlDataCount != first.PlDataCount {
		t.Fatalf("counts changed across runs: first %+v second %+v", first, second)
	}
	if len(env.products.upserted) != 2 {
		t.Fatalf("products = %d, unchanged remote data must not grow the set", len(env.products.upserted))
	}
	if len(env.accounts.accounts) != 2 {
		t.Fatalf("accounts = %d, unchanged remote data must not grow the set", len(env.accounts.accounts))
	}
	for i, account := range env.accounts.accounts {
		if account.ID != firstAccounts[i].ID || account.QboId != firstAccounts[i].QboId {
			t.Fatalf("account %d changed identity across runs: %+v vs %+v", i, account, firstAccounts[i])
		}
	}
	if env.profitLoss.replaceCalls != 2 {
		t.Fatalf("ReplaceForYear calls = %d", env.profitLoss.replaceCalls)
	}
	if env.profitLoss.fiscalYear != testNow.Year() || len(env.profitLoss.entries) != 1 {
		t.Fatalf("replaced year %d with %d entries", env.profitLoss.fiscalYear, len(env.profitLoss.entries))
	}
}

func TestRunSync_FailedRunKeepsLastSync(t *testing.T) {
	env := newTestEnv()
	env.client.itemsErr = errors.New("query failed")
	env.client.accountsErr = errors.New("query failed")
	env.profitLoss.replaceErr = errors.New("db gone")

	resp, err := env.deps.RunSync(context.Background(), "company-1", models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if resp.Success {
		t.Fatal("a run that synced nothing must not report success")
	}
	run := env.runs.runs[0]
	if run.Status != models.SyncRunStatusFailed {
		t.Fatalf("run status = %s", run.Status)
	}
	if env.connections.lastSyncAt != nil {
		t.Fatal("a failed run must not advance the last sync timestamp")
	}
}
