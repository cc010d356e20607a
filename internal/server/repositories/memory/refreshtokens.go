package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

type tokenRepository struct {
	v view
}

func (r *tokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.accounts[token.AccountID]; !ok {
			return common.ErrorNotFound
		}
		for _, t := range st.tokens {
			if t.ID == token.ID || t.TokenHash == token.TokenHash {
				return common.ErrorAlreadyExists
			}
		}
		st.tokens[token.ID] = cloneToken(token)
		return nil
	})
}

func (r *tokenRepository) find(match func(t *models.RefreshToken) bool) (*models.RefreshToken, error) {
	var found *models.RefreshToken
	err := r.v.do(func(st *state) error {
		for _, t := range st.tokens {
			if match(t) {
				found = cloneToken(t)
				return nil
			}
		}
		return common.ErrorNotFound
	})
	return found, err
}

func (r *tokenRepository) Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	return r.find(func(t *models.RefreshToken) bool { return t.TokenHash == tokenHash })
}

func (r *tokenRepository) FindByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	return r.find(func(t *models.RefreshToken) bool { return t.ID == id })
}

func (r *tokenRepository) Revoke(ctx context.Context, id string, at time.Time, ip string, replacedBy *string) error {
	return r.v.do(func(st *state) error {
		t, ok := st.tokens[id]
		if !ok || !t.IsActive(at) {
			return common.ErrorConflict
		}
		t.Revoked = &at
		t.RevokedByIP = &ip
		t.ReplacedByID = clonePtr(replacedBy)
		return nil
	})
}

func (r *tokenRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.RefreshToken, error) {
	var result []*models.RefreshToken
	err := r.v.do(func(st *state) error {
		for _, t := range st.tokens {
			if t.AccountID == accountID {
				result = append(result, cloneToken(t))
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Created.Equal(result[j].Created) {
			return result[i].Created.After(result[j].Created)
		}
		return result[i].ID < result[j].ID
	})
	return result, err
}

func (r *tokenRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	return r.v.do(func(st *state) error {
		for id, t := range st.tokens {
			if t.AccountID == accountID {
				delete(st.tokens, id)
			}
		}
		return nil
	})
}
