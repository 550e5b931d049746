package store

import (
	"encoding/json"
	"errors"
	"os"
)

// Credentials are the broker API secrets. They never live in config.yaml.
type Credentials struct {
	APIKey      string `json:"api_key"`
	ClientID    string `json:"client_id"`
	AccessToken string `json:"access_token"`
}

func (c Credentials) Empty() bool {
	return c.APIKey == "" && c.ClientID == "" && c.AccessToken == ""
}

// CredentialProvider returns broker credentials and whether it found any.
type CredentialProvider func() (Credentials, bool)

// ErrNoCredentials is returned when no provider in the chain yields credentials.
var ErrNoCredentials = errors.New("no broker credentials found in any provider")

// ResolveCredentials walks an ordered provider chain; the first provider that
// returns non-empty credentials wins.
func ResolveCredentials(providers ...CredentialProvider) (Credentials, error) {
	for _, p := range providers {
		if creds, ok := p(); ok && !creds.Empty() {
			return creds, nil
		}
	}
	return Credentials{}, ErrNoCredentials
}

// EnvCredentials reads credentials from BROKER_API_KEY, BROKER_CLIENT_ID and
// BROKER_ACCESS_TOKEN.
func EnvCredentials() (Credentials, bool) {
	creds := Credentials{
		APIKey:      os.Getenv("BROKER_API_KEY"),
		ClientID:    os.Getenv("BROKER_CLIENT_ID"),
		AccessToken: os.Getenv("BROKER_ACCESS_TOKEN"),
	}
	return creds, !creds.Empty()
}

// FileCredentials reads credentials from a JSON file at path.
func FileCredentials(path string) CredentialProvider {
	return func() (Credentials, bool) {
		b, err := os.ReadFile(path)
		if err != nil {
			return Credentials{}, false
		}
		var creds Credentials
		if err := json.Unmarshal(b, &creds); err != nil {
			return Credentials{}, false
		}
		return creds, !creds.Empty()
	}
}
