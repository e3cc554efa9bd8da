package qbosync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
)

const qboDateLayout = "2006-01-02"

type qboItem struct {
	Id          string      `json:"Id"`
	Name        string      `json:"Name"`
	Description string      `json:"Description"`
	Type        string      `json:"Type"`
	UnitPrice   json.Number `json:"UnitPrice"`
	Active      bool        `json:"Active"`
}

type qboAccount struct {
	Id             string `json:"Id"`
	Name           string `json:"Name"`
	AcctNum        string `json:"AcctNum"`
	AccountType    string `json:"AccountType"`
	Classification string `json:"Classification"`
	Active         bool   `json:"Active"`
}

type queryResponse struct {
	QueryResponse struct {
		Item    []qboItem    `json:"Item"`
		Account []qboAccount `json:"Account"`
	} `json:"QueryResponse"`
}

// qboClient is a stateless wrapper over the QuickBooks Online v3 API for one
// company realm. Every call carries the bearer token it was built with; token
// refresh happens before the client is constructed, not inside it.
type qboClient struct {
	baseURL      string
	realmId      string
	accessToken  string
	minorVersion string
	http         *http.Client
}

func newQboClient(cfg config.QboConfig, realmId string, accessToken string) *qboClient {
	return &qboClient{
		baseURL:      cfg.APIBaseURL,
		realmId:      realmId,
		accessToken:  accessToken,
		minorVersion: cfg.MinorVersion,
		http:         &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *qboClient) getJSON(ctx context.Context, path string, params url.Values, dest any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("minorversion", c.minorVersion)
	endpoint := fmt.Sprintf("%s/v3/company/%s%s?%s", c.baseURL, url.PathEscape(c.realmId), path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteApiError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return json.Unmarshal(body, dest)
}

func (c *qboClient) runQuery(ctx context.Context, query string) (*queryResponse, error) {
	params := url.Values{}
	params.Set("query", query)

	var parsed queryResponse
	if err := c.getJSON(ctx, "/query", params, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func (c *qboClient) QueryItems(ctx context.Context) ([]qboItem, error) {
	parsed, err := c.runQuery(ctx, "SELECT * FROM Item MAXRESULTS 1000")
	if err != nil {
		return nil, err
	}
	return parsed.QueryResponse.Item, nil
}

func (c *qboClient) QueryAccounts(ctx context.Context, includeInactive bool) ([]qboAccount, error) {
	query := "SELECT * FROM Account MAXRESULTS 1000"
	if includeInactive {
		query = "SELECT * FROM Account WHERE Active IN (true, false) MAXRESULTS 1000"
	}
	parsed, err := c.runQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return parsed.QueryResponse.Account, nil
}

func (c *qboClient) FetchProfitAndLoss(ctx context.Context, start time.Time, end time.Time) (*reportPayload, error) {
	return c.fetchReport(ctx, "ProfitAndLoss", start, end)
}

func (c *qboClient) FetchTrialBalance(ctx context.Context, start time.Time, end time.Time) (*reportPayload, error) {
	return c.fetchReport(ctx, "TrialBalance", start, end)
}

func (c *qboClient) fetchReport(ctx context.Context, name string, start time.Time, end time.Time) (*reportPayload, error) {
	params := url.Values{}
	params.Set("start_date", start.Format(qboDateLayout))
	params.Set("end_date", end.Format(qboDateLayout))

	var parsed reportPayload
	if err := c.getJSON(ctx, "/reports/"+name, params, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}
