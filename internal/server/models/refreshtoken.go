package models

import "time"

// RefreshToken is a persisted refresh-token record. TokenHash is a salted
// argon2id hash of the opaque secret and LookupKey a keyed HMAC of it; the
// plaintext is never stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	LookupKey string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Active reports whether the record can still be rotated at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}
