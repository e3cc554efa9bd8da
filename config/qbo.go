package config

import (
	"os"
	"strings"
)

// QboConfig carries the OAuth client credentials and endpoint overrides for the
// QuickBooks Online integration. Loaded from env at call time; client id/secret
// come from the Intuit developer app this deployment is registered under.
type QboConfig struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	TokenURL     string
	MinorVersion string
}

func LoadQboConfig() QboConfig {
	baseURL := strings.TrimSpace(os.Getenv("QBO_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://sandbox-quickbooks.api.intuit.com"
	}
	tokenURL := strings.TrimSpace(os.Getenv("QBO_TOKEN_URL"))
	if tokenURL == "" {
		tokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	}
	minorVersion := strings.TrimSpace(os.Getenv("QBO_MINOR_VERSION"))
	if minorVersion == "" {
		minorVersion = "75"
	}
	return QboConfig{
		ClientID:     strings.TrimSpace(os.Getenv("QBO_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("QBO_CLIENT_SECRET")),
		APIBaseURL:   strings.TrimRight(baseURL, "/"),
		TokenURL:     tokenURL,
		MinorVersion: minorVersion,
	}
}
