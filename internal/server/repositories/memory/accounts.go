package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

type accountRepository struct {
	v view
}

// Lock is a no-op: registrations run inside WithTx, which already holds the
// store mutex.
func (r *accountRepository) Lock(ctx context.Context) error {
	return ctx.Err()
}

func (r *accountRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.v.do(func(st *state) error {
		n = len(st.accounts)
		return nil
	})
	return n, err
}

func emailTaken(st *state, email, exceptID string) bool {
	for _, a := range st.accounts {
		if a.Email == email && a.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.accounts[account.ID]; ok {
			return common.ErrorAlreadyExists
		}
		if emailTaken(st, account.Email, "") {
			return common.ErrorAlreadyExists
		}
		st.accounts[account.ID] = cloneAccount(account)
		return nil
	})
}

func (r *accountRepository) Update(ctx context.Context, account *models.Account) error {
	return r.update(account, nil)
}

func (r *accountRepository) ConsumeResetToken(ctx context.Context, account *models.Account, tokenHash string) error {
	return r.update(account, func(existing *models.Account) bool {
		return existing.ResetToken != nil && *existing.ResetToken == tokenHash
	})
}

func (r *accountRepository) update(account *models.Account, guard func(existing *models.Account) bool) error {
	return r.v.do(func(st *state) error {
		existing, ok := st.accounts[account.ID]
		if !ok || (guard != nil && !guard(existing)) {
			return common.ErrorNotFound
		}
		if emailTaken(st, account.Email, account.ID) {
			return common.ErrorAlreadyExists
		}
		updated := cloneAccount(account)
		updated.Created = existing.Created
		st.accounts[account.ID] = updated
		return nil
	})
}

func (r *accountRepository) Delete(ctx context.Context, id string) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.accounts[id]; !ok {
			return common.ErrorNotFound
		}
		delete(st.accounts, id)
		for tid, t := range st.tokens {
			if t.AccountID == id {
				delete(st.tokens, tid)
			}
		}
		return nil
	})
}

func (r *accountRepository) findOne(match func(a *models.Account) bool) (*models.Account, error) {
	var found *models.Account
	err := r.v.do(func(st *state) error {
		for _, a := range st.accounts {
			if match(a) {
				found = cloneAccount(a)
				return nil
			}
		}
		return common.ErrorNotFound
	})
	return found, err
}

func (r *accountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(func(a *models.Account) bool { return a.ID == id })
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(func(a *models.Account) bool { return a.Email == email })
}

func (r *accountRepository) FindByVerificationToken(ctx context.Context, tokenHash string) (*models.Account, error) {
	return r.findOne(func(a *models.Account) bool {
		return a.VerificationToken != nil && *a.VerificationToken == tokenHash
	})
}

func (r *accountRepository) FindByActiveResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error) {
	return r.findOne(func(a *models.Account) bool {
		return a.HasActiveResetToken(now) && *a.ResetToken == tokenHash
	})
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	var result []*models.Account
	err := r.v.do(func(st *state) error {
		for _, a := range st.accounts {
			result = append(result, cloneAccount(a))
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Created.Equal(result[j].Created) {
			return result[i].Created.Before(result[j].Created)
		}
		return result[i].ID < result[j].ID
	})
	return result, err
}
