package domain

import "time"

// User is an account that can authenticate interactively.
type User struct {
	ID               string
	Username         string
	PreferredName    string
	PasswordHash     string // argon2id encoded
	ConcurrencyStamp string
	Claims           []Claim
	MFAEnabled       *time.Time // when TOTP was enabled, nil if not enrolled
	MFASecret        *string    // base32 TOTP secret, nil if not enrolled
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
