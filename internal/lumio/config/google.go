package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	sheets "google.golang.org/api/sheets/v4"
)

// ErrNoGoogleCredentials means neither GOOGLE_JSON_KEY nor the credentials
// file is available; calendar and ledger features are then disabled.
var ErrNoGoogleCredentials = errors.New("config: no Google service-account credentials")

// GoogleScopes are the OAuth scopes requested for the service account.
var GoogleScopes = []string{calendar.CalendarScope, sheets.SpreadsheetsScope}

// Credentials builds service-account credentials from the inline JSON key,
// falling back to the credentials file.
func (g Google) Credentials(ctx context.Context) (*google.Credentials, error) {
	data := []byte(g.CredentialsJSON)
	if len(data) == 0 && g.CredentialsFile != "" {
		b, err := os.ReadFile(g.CredentialsFile)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoGoogleCredentials
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", g.CredentialsFile, err)
		}
		data = b
	}
	if len(data) == 0 {
		return nil, ErrNoGoogleCredentials
	}
	creds, err := google.CredentialsFromJSON(ctx, data, GoogleScopes...)
	if err != nil {
		return nil, fmt.Errorf("config: parse Google credentials: %w", err)
	}
	return creds, nil
}
