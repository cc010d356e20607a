// Package refreshtokens declares the refresh token ledger store and its
// PostgreSQL implementation.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Repository stores refresh token records keyed by the digest of the bearer
// value. Records are only removed together with their account.
type Repository interface {
	// Create inserts a new record. A digest collision is common.ErrorAlreadyExists.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Find and FindByID return common.ErrorNotFound when nothing matches.
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	FindByID(ctx context.Context, id string) (*models.RefreshToken, error)

	// Revoke marks the record revoked at the given instant, but only while it
	// is still active at that instant; otherwise it returns common.ErrorConflict.
	// replacedBy is the successor's ID for rotations and nil for plain revocation.
	Revoke(ctx context.Context, id string, at time.Time, ip string, replacedBy *string) error

	// ListByAccount returns the account's records, newest first.
	ListByAccount(ctx context.Context, accountID string) ([]*models.RefreshToken, error)
	DeleteByAccount(ctx context.Context, accountID string) error
}
