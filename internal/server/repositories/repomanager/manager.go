// Package repomanager vends the account and refresh token repositories and
// runs work that must be atomic across both.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/refreshtokens"
)

type RepositoryManager interface {
	Accounts() accounts.Repository
	RefreshTokens() refreshtokens.Repository

	// WithTx runs fn against a manager bound to one transaction. Changes made
	// through it become visible only if fn returns nil. Calling WithTx on a
	// manager that is already transactional reuses the same transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, m RepositoryManager) error) error
}
