package models

import "time"

// BlacklistedToken is an access token revoked before its natural expiry.
// ExpiresAt is copied from the token's own exp claim.
type BlacklistedToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}
