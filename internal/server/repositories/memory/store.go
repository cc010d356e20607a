// Package memory is an in-process account store used by tests and by the
// server when started with a memory:// DSN. All state lives behind one mutex;
// WithTx holds it for the whole callback and publishes a private copy of the
// state only when the callback succeeds.
package memory

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
)

type state struct {
	accounts map[string]*models.Account
	tokens   map[string]*models.RefreshToken
}

func newState() *state {
	return &state{
		accounts: make(map[string]*models.Account),
		tokens:   make(map[string]*models.RefreshToken),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts: make(map[string]*models.Account, len(s.accounts)),
		tokens:   make(map[string]*models.RefreshToken, len(s.tokens)),
	}
	for id, a := range s.accounts {
		c.accounts[id] = cloneAccount(a)
	}
	for id, t := range s.tokens {
		c.tokens[id] = cloneToken(t)
	}
	return c
}

// view gives repositories access to the state. mu is nil inside a
// transaction, where the owning Store already holds the lock.
type view struct {
	mu *sync.Mutex
	st **state
}

func (v view) do(fn func(st *state) error) error {
	if v.mu != nil {
		v.mu.Lock()
		defer v.mu.Unlock()
	}
	return fn(*v.st)
}

type Store struct {
	mu sync.Mutex
	st *state
}

var _ repomanager.RepositoryManager = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) Accounts() accounts.Repository {
	return &accountRepository{v: view{mu: &s.mu, st: &s.st}}
}

func (s *Store) RefreshTokens() refreshtokens.Repository {
	return &tokenRepository{v: view{mu: &s.mu, st: &s.st}}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, m repomanager.RepositoryManager) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txManager{st: s.st.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

type txManager struct {
	st *state
}

func (m *txManager) Accounts() accounts.Repository {
	return &accountRepository{v: view{st: &m.st}}
}

func (m *txManager) RefreshTokens() refreshtokens.Repository {
	return &tokenRepository{v: view{st: &m.st}}
}

func (m *txManager) WithTx(ctx context.Context, fn func(ctx context.Context, m repomanager.RepositoryManager) error) error {
	return fn(ctx, m)
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	c.VerificationToken = clonePtr(a.VerificationToken)
	c.Verified = clonePtr(a.Verified)
	c.ResetToken = clonePtr(a.ResetToken)
	c.ResetTokenExpires = clonePtr(a.ResetTokenExpires)
	c.PasswordReset = clonePtr(a.PasswordReset)
	c.Updated = clonePtr(a.Updated)
	return &c
}

func cloneToken(t *models.RefreshToken) *models.RefreshToken {
	c := *t
	c.Revoked = clonePtr(t.Revoked)
	c.RevokedByIP = clonePtr(t.RevokedByIP)
	c.ReplacedByID = clonePtr(t.ReplacedByID)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
