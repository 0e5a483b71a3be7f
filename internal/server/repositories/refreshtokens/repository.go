// Package refreshtokens declares the session-store contract for refresh-token
// records and its PostgreSQL implementation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository persists refresh-token records. A record is active at now when
// it is not revoked and expires after now.
type Repository interface {
	// Create inserts a new record. ID, TokenHash, LookupKey, CreatedAt and
	// ExpiresAt must be set by the caller.
	Create(ctx context.Context, token *models.RefreshToken) error

	// FindActiveByLookup returns the active records carrying lookupKey.
	// Callers must still verify TokenHash.
	FindActiveByLookup(ctx context.Context, lookupKey string, now time.Time) ([]*models.RefreshToken, error)

	// DeleteStaleForUser removes the user's revoked or expired records.
	DeleteStaleForUser(ctx context.Context, userID string, now time.Time) (int64, error)

	// CountActiveForUser counts the user's active records.
	CountActiveForUser(ctx context.Context, userID string, now time.Time) (int, error)

	// DeleteOldestActiveForUser evicts the user's active record with the
	// earliest CreatedAt. It reports how many rows were removed (0 or 1).
	DeleteOldestActiveForUser(ctx context.Context, userID string, now time.Time) (int64, error)

	// MarkRevoked flips revoked from false to true for id. It returns false
	// when the record is missing or was already revoked; exactly one of any
	// number of concurrent callers observes true.
	MarkRevoked(ctx context.Context, id string) (bool, error)

	// RevokeAllForUser revokes every non-revoked record of the user.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// DeleteRevokedOrExpired removes all revoked or expired records.
	DeleteRevokedOrExpired(ctx context.Context, now time.Time) (int64, error)
}
