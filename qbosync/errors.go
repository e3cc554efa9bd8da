package qbosync

import "fmt"

// AuthenticationError means the caller bearer token was missing or invalid.
// Always fatal; surfaced verbatim.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return e.Reason
}

// ConnectionNotFoundError means no active QuickBooks connection is stored for
// the company. Always fatal; the message tells the caller to reconnect.
type ConnectionNotFoundError struct {
	CompanyId string
}

func (e *ConnectionNotFoundError) Error() string {
	return "no active QuickBooks connection found for this company - please reconnect QuickBooks"
}

// TokenRefreshError means the OAuth refresh call failed. Fatal and never
// retried: QuickBooks refresh tokens rotate, so a blind retry can burn the
// only valid refresh token.
type TokenRefreshError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenRefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// RemoteApiError is any non-2xx answer from the QuickBooks API. Callers decide
// whether it is fatal (items/accounts queries) or a fallback trigger (reports).
type RemoteApiError struct {
	StatusCode int
	Body       string
}

func (e *RemoteApiError) Error() string {
	return fmt.Sprintf("quickbooks api error %d: %s", e.StatusCode, e.Body)
}

// ReportUnavailableError wraps a report fetch/parse failure. Non-fatal: it
// moves the P&L reconciler to its next fallback tier.
type ReportUnavailableError struct {
	Report string
	Err    error
}

func (e *ReportUnavailableError) Error() string {
	return fmt.Sprintf("%s report unavailable: %v", e.Report, e.Err)
}

func (e *ReportUnavailableError) Unwrap() error { return e.Err }
