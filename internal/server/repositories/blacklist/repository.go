// Package blacklist stores access tokens revoked before their natural expiry.
// Two backends exist: PostgreSQL (the default) and Redis, where entries
// expire by themselves at the token's own expiry.
package blacklist

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository is the denylist contract. Lookups are by exact token string.
type Repository interface {
	// Add inserts entry. Adding a token twice is not an error.
	Add(ctx context.Context, entry *models.BlacklistedToken) error

	// Exists reports whether token is on the denylist.
	Exists(ctx context.Context, token string) (bool, error)

	// DeleteExpired removes entries whose ExpiresAt is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
