package qbosync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/qbsync_backend/config"
	"bitbucket.org/mmdatafocus/qbsync_backend/models"
)

type fakeConnectionStore struct {
	conn          *models.QboConnection
	updatedTokens *models.QboConnection
	lastSyncAt    *time.Time
	getErr        error
}

func (s *fakeConnectionStore) GetActiveByCompany(ctx context.Context, companyId string) (*models.QboConnection, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.conn == nil {
		return nil, &ConnectionNotFoundError{CompanyId: companyId}
	}
	return s.conn, nil
}

func (s *fakeConnectionStore) Upsert(ctx context.Context, conn *models.QboConnection) error {
	s.conn = conn
	return nil
}

func (s *fakeConnectionStore) UpdateTokens(ctx context.Context, conn *models.QboConnection) error {
	copied := *conn
	s.updatedTokens = &copied
	return nil
}

func (s *fakeConnectionStore) UpdateLastSync(ctx context.Context, companyId string, at time.Time) error {
	s.lastSyncAt = &at
	return nil
}

func (s *fakeConnectionStore) Deactivate(ctx context.Context, companyId string) error {
	if s.conn != nil {
		s.conn.IsActive = new(bool)
	}
	return nil
}

func TestTokenExpired_Boundary(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		expiresAt time.Time
		expired   bool
	}{
		{"well before expiry", now.Add(time.Hour), false},
		{"exactly at expiry", now, true},
		{"past expiry", now.Add(-time.Second), true},
	}
	for _, tc := range cases {
		conn := &models.QboConnection{TokenExpiresAt: tc.expiresAt}
		if got := tokenExpired(conn, now); got != tc.expired {
			t.Fatalf("%s: tokenExpired=%v, expected %v", tc.name, got, tc.expired)
		}
	}
}

func TestRefreshTokens_RotatesAndPersists(t *testing.T) {
	var gotGrantType, gotRefreshToken, gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		_ = r.ParseForm()
		gotGrantType = r.PostForm.Get("grant_type")
		gotRefreshToken = r.PostForm.Get("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer server.Close()

	cfg := config.QboConfig{ClientID: "client-id", ClientSecret: "client-secret", TokenURL: server.URL}
	store := &fakeConnectionStore{}
	conn := &models.QboConnection{
		CompanyId:    "company-1",
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
	}
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	if err := refreshTokens(context.Background(), cfg, server.Client(), store, conn, now); err != nil {
		t.Fatalf("refreshTokens: %v", err)
	}

	if gotGrantType != "refresh_token" {
		t.Fatalf("grant_type = %q", gotGrantType)
	}
	if gotRefreshToken != "old-refresh" {
		t.Fatalf("refresh_token = %q", gotRefreshToken)
	}
	if gotUser != "client-id" || gotPass != "client-secret" {
		t.Fatalf("basic auth = %q / %q", gotUser, gotPass)
	}
	if conn.AccessToken != "new-access" || conn.RefreshToken != "new-refresh" {
		t.Fatalf("tokens not rotated: %q / %q", conn.AccessToken, conn.RefreshToken)
	}
	expectedExpiry := now.Add(time.Hour)
	if !conn.TokenExpiresAt.Equal(expectedExpiry) {
		t.Fatalf("expiry = %v, expected %v", conn.TokenExpiresAt, expectedExpiry)
	}
	if store.updatedTokens == nil || store.updatedTokens.AccessToken != "new-access" {
		t.Fatal("new tokens were not persisted")
	}
}

func TestRefreshTokens_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","expires_in":3600}`))
	}))
	defer server.Close()

	cfg := config.QboConfig{ClientID: "id", ClientSecret: "secret", TokenURL: server.URL}
	store := &fakeConnectionStore{}
	conn := &models.QboConnection{CompanyId: "company-1", RefreshToken: "keep-me"}

	if err := refreshTokens(context.Background(), cfg, server.Client(), store, conn, time.Now()); err != nil {
		t.Fatalf("refreshTokens: %v", err)
	}
	if conn.RefreshToken != "keep-me" {
		t.Fatalf("refresh token should be kept, got %q", conn.RefreshToken)
	}
}

func TestRefreshTokens_FailureIsTokenRefreshError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	cfg := config.QboConfig{TokenURL: server.URL}
	store := &fakeConnectionStore{}
	conn := &models.QboConnection{CompanyId: "company-1", RefreshToken: "burned"}

	err := refreshTokens(context.Background(), cfg, server.Client(), store, conn, time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	refreshErr, ok := err.(*TokenRefreshError)
	if !ok {
		t.Fatalf("expected *TokenRefreshError, got %T", err)
	}
	if refreshErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", refreshErr.StatusCode)
	}
	if store.updatedTokens != nil {
		t.Fatal("tokens must not be persisted on failure")
	}
}
