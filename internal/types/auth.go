package types

import "time"

// Credentials holds an access token for the Graph API.
type Credentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiryDate   time.Time `json:"expiryDate"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// StoredCredentials is the serialized form kept in the storage backend.
type StoredCredentials struct {
	Profile      string   `json:"profile"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	ExpiryDate   string   `json:"expiryDate"`
	Scopes       []string `json:"scopes,omitempty"`
}
