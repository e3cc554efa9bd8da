package qbosync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

type tokenResponse struct {
	AccessToken          string `json:"access_token"`
	RefreshToken         string `json:"refresh_token"`
	ExpiresIn            int    `json:"expires_in"`
	XRefreshTokenExpires int    `json:"x_refresh_token_expires_in"`
	TokenType            string `json:"token_type"`
}

// tokenExpired reports whether the stored access token can no longer be used.
// A token expiring exactly now is treated as expired.
func tokenExpired(conn *models.QboConnection, now time.Time) bool {
	return !conn.TokenExpiresAt.After(now)
}

// refreshTokens exchanges the stored refresh token for a fresh token pair and
// persists the result on the connection. Intuit rotates refresh tokens on most
// responses; when the response omits one the stored token stays valid and is
// kept.
func refreshTokens(ctx context.Context, cfg config.QboConfig, httpClient *http.Client, store ConnectionStore, conn *models.QboConnection, now time.Time) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", conn.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &TokenRefreshError{Err: err}
	}
	req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return &TokenRefreshError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TokenRefreshError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &TokenRefreshError{Err: err}
	}
	if parsed.AccessToken == "" {
		return &TokenRefreshError{StatusCode: resp.StatusCode, Body: "token response missing access_token"}
	}

	conn.AccessToken = parsed.AccessToken
	if parsed.RefreshToken != "" {
		conn.RefreshToken = parsed.RefreshToken
	}
	conn.TokenExpiresAt = now.Add(time.Duration(parsed.ExpiresIn) * time.Second)

	if err := store.UpdateTokens(ctx, conn); err != nil {
		return &TokenRefreshError{Err: err}
	}
	return nil
}
