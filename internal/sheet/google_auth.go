package sheet

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// OAuthCredentials is the client section of a credentials.json downloaded
// from Google Cloud Console.
type OAuthCredentials struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
}

type credentialsFile struct {
	Type      string            `json:"type"`
	Installed *OAuthCredentials `json:"installed,omitempty"`
	Web       *OAuthCredentials `json:"web,omitempty"`
}

// ParseOAuthCredentials accepts both the bare client format and the
// installed/web wrapped format.
func ParseOAuthCredentials(data []byte) (*OAuthCredentials, error) {
	var direct OAuthCredentials
	if err := json.Unmarshal(data, &direct); err == nil && direct.ClientID != "" && direct.ClientSecret != "" {
		return &direct, nil
	}
	var f credentialsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if f.Installed != nil {
		return f.Installed, nil
	}
	if f.Web != nil {
		return f.Web, nil
	}
	return nil, fmt.Errorf("no oauth client in credentials - expected 'installed' or 'web' section")
}

// OAuthConfig builds the oauth2 config for the spreadsheets scope.
func OAuthConfig(c *OAuthCredentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Scopes:       []string{sheets.SpreadsheetsScope},
		Endpoint:     google.Endpoint,
	}
}

// NewSheetsService authenticates either with a service account key or, when a
// refresh token is given, with an installed-app OAuth client.
func NewSheetsService(ctx context.Context, credentialsJSON, refreshToken string) (*sheets.Service, error) {
	if credentialsJSON == "" {
		return nil, fmt.Errorf("google credentials are not configured")
	}
	var file credentialsFile
	_ = json.Unmarshal([]byte(credentialsJSON), &file)
	if file.Type == "service_account" {
		srv, err := sheets.NewService(ctx, option.WithCredentialsJSON([]byte(credentialsJSON)), option.WithScopes(sheets.SpreadsheetsScope))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return srv, nil
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("oauth client credentials need GOOGLE_REFRESH_TOKEN (run sheets-auth-helper)")
	}
	creds, err := ParseOAuthCredentials([]byte(credentialsJSON))
	if err != nil {
		return nil, err
	}
	ts := OAuthConfig(creds).TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	srv, err := sheets.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return srv, nil
}
