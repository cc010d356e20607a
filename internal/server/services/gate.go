package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
)

// Gate resolves the caller behind an authorization header.
type Gate struct {
	issuer *auth.Issuer
	store  repomanager.RepositoryManager
}

func NewGate(issuer *auth.Issuer, store repomanager.RepositoryManager) *Gate {
	return &Gate{issuer: issuer, store: store}
}

// bearerToken extracts the token from "Bearer <token>". The scheme is
// matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme := len(common.BearerScheme)
	if len(header) <= scheme || !strings.EqualFold(header[:scheme], common.BearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(header[scheme:])
	return token, token != ""
}

// Authorize verifies the access token in header and loads its account. The
// account is read from the store on every call, so deletions and role
// changes apply to tokens already issued. With allowed roles given, the
// account's role must be one of them.
func (g *Gate) Authorize(ctx context.Context, header string, allowed ...models.Role) (*models.Account, error) {
	token, ok := bearerToken(header)
	if !ok {
		return nil, common.ErrUnauthenticated
	}

	accountID, err := g.issuer.ParseToken(token)
	if err != nil {
		return nil, err
	}

	account, err := g.store.Accounts().FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Wrap(common.ErrInvalidAccessToken, err)
		}
		return nil, storeError(err)
	}

	if len(allowed) > 0 && !slices.Contains(allowed, account.Role) {
		return nil, common.ErrForbidden
	}
	return account, nil
}
