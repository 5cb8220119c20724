package domain

import "time"

// Grant records that a browser session authorized an application for a user.
// The login manager consults these records to decide whether an authorize
// request can complete without re-prompting, and logout removes them.
//
// Matching is always by exact UserID and ClientID; there is one grant per
// (user, client) pair.
type Grant struct {
	ID                string
	UserID            string
	ClientID          string
	SessionID         string
	LogoutRedirectURI string // registered logout target captured at login time
	Scopes            []string
	CreatedAt         time.Time
}
