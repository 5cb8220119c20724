package domain

import "time"

// RefreshToken is the stored record of an issued refresh token, looked up by
// the fingerprint of its serialized form. Rotation revokes the old record and
// inserts a replacement.
type RefreshToken struct {
	ID        string
	UserID    string
	ClientID  string
	TokenHash string
	SessionID string
	Scopes    []string
	Nonce     string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
