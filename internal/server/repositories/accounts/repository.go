// Package accounts declares the account store contract and its PostgreSQL
// implementation.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Repository persists accounts. Lookups return common.ErrorNotFound when
// nothing matches; writes that collide on email return common.ErrorAlreadyExists.
type Repository interface {
	// Lock serialises registrations for the rest of the enclosing transaction.
	Lock(ctx context.Context) error
	Count(ctx context.Context) (int, error)

	Create(ctx context.Context, account *models.Account) error
	Update(ctx context.Context, account *models.Account) error
	// ConsumeResetToken is Update guarded by the stored reset digest still
	// being tokenHash; otherwise it returns common.ErrorNotFound.
	ConsumeResetToken(ctx context.Context, account *models.Account, tokenHash string) error
	Delete(ctx context.Context, id string) error

	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	// FindByVerificationToken and FindByActiveResetToken match token digests.
	FindByVerificationToken(ctx context.Context, tokenHash string) (*models.Account, error)
	FindByActiveResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error)

	List(ctx context.Context) ([]*models.Account, error)
}
