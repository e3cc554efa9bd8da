package qbosync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
)

func newTestClient(serverURL string) *qboClient {
	cfg := config.QboConfig{APIBaseURL: serverURL, MinorVersion: "75"}
	return newQboClient(cfg, "realm-1", "access-token")
}

func TestQueryItems_ParsesResponse(t *testing.T) {
	var gotPath, gotAuth, gotMinorVersion, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotMinorVersion = r.URL.Query().Get("minorversion")
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"QueryResponse":{"Item":[
			{"Id":"1","Name":"Widget","Type":"Inventory","UnitPrice":25.50,"Active":true},
			{"Id":"2","Name":"Consulting","Type":"Service","UnitPrice":150,"Active":false}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	items, err := client.QueryItems(context.Background())
	if err != nil {
		t.Fatalf("QueryItems: %v", err)
	}

	if gotPath != "/v3/company/realm-1/query" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer access-token" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotMinorVersion != "75" {
		t.Fatalf("minorversion = %q", gotMinorVersion)
	}
	if gotQuery != "SELECT * FROM Item MAXRESULTS 1000" {
		t.Fatalf("query = %q", gotQuery)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Id != "1" || items[0].Type != "Inventory" || !items[0].Active {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[0].UnitPrice.String() != "25.50" {
		t.Fatalf("unit price = %q", items[0].UnitPrice.String())
	}
}

func TestQueryAccounts_IncludesInactive(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"QueryResponse":{"Account":[
			{"Id":"35","Name":"Checking","AcctNum":"1000","AccountType":"Bank","Classification":"Asset","Active":true}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	accounts, err := client.QueryAccounts(context.Background(), true)
	if err != nil {
		t.Fatalf("QueryAccounts: %v", err)
	}
	if gotQuery != "SELECT * FROM Account WHERE Active IN (true, false) MAXRESULTS 1000" {
		t.Fatalf("query = %q", gotQuery)
	}
	if len(accounts) != 1 || accounts[0].Classification != "Asset" {
		t.Fatalf("unexpected accounts: %+v", accounts)
	}
}

func TestFetchProfitAndLoss_SendsDateRange(t *testing.T) {
	var gotPath, gotStart, gotEnd string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotStart = r.URL.Query().Get("start_date")
		gotEnd = r.URL.Query().Get("end_date")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Header":{"ReportName":"ProfitAndLoss"},"Rows":{"Row":[]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)
	payload, err := client.FetchProfitAndLoss(context.Background(), start, end)
	if err != nil {
		t.Fatalf("FetchProfitAndLoss: %v", err)
	}
	if gotPath != "/v3/company/realm-1/reports/ProfitAndLoss" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotStart != "2026-01-01" || gotEnd != "2026-12-31" {
		t.Fatalf("date range = %q .. %q", gotStart, gotEnd)
	}
	if payload.Header.ReportName != "ProfitAndLoss" {
		t.Fatalf("report name = %q", payload.Header.ReportName)
	}
}

func TestGetJSON_NonOKIsRemoteApiError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"Fault":{"type":"AUTHENTICATION"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.QueryItems(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*RemoteApiError)
	if !ok {
		t.Fatalf("expected *RemoteApiError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Body == "" {
		t.Fatal("expected body to be captured")
	}
}
