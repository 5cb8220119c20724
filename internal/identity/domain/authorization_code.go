package domain

import "time"

// AuthorizationCode is the stored record of an issued authorization code.
// Only the fingerprint of the serialized code is kept; redemption looks the
// record up by hash, enforces single use, and replays the captured request
// parameters into the token flow.
type AuthorizationCode struct {
	ID                  string
	UserID              string
	ClientID            string
	CodeHash            string
	RedirectURI         string
	Scopes              []string
	Nonce               string
	SessionID           string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	UsedAt              *time.Time
	CreatedAt           time.Time
}
