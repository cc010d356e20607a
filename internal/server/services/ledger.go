package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
)

// maxChainLength bounds the successor walk done on reuse.
const maxChainLength = 1000

// RefreshTokenLedger issues, rotates and revokes refresh tokens. Only the
// SHA-256 digest of a token is stored; the bearer value is returned once.
type RefreshTokenLedger struct {
	store              repomanager.RepositoryManager
	ttl                time.Duration
	logger             logging.Logger
	now                func() time.Time
	newToken           func() (string, error)
	revokeChainOnReuse bool
}

type LedgerOption func(*RefreshTokenLedger)

func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *RefreshTokenLedger) { l.now = now }
}

// WithChainRevocation makes presenting an already rotated token revoke every
// still active token issued from it.
func WithChainRevocation(enabled bool) LedgerOption {
	return func(l *RefreshTokenLedger) { l.revokeChainOnReuse = enabled }
}

func NewRefreshTokenLedger(store repomanager.RepositoryManager, ttl time.Duration, logger logging.Logger, opts ...LedgerOption) *RefreshTokenLedger {
	l := &RefreshTokenLedger{
		store:    store,
		ttl:      ttl,
		logger:   logger.With("module", "refresh_token_ledger"),
		now:      time.Now,
		newToken: common.NewOpaqueToken,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Issue creates a new active token for accountID.
func (l *RefreshTokenLedger) Issue(ctx context.Context, accountID, ip string) (string, *models.RefreshToken, error) {
	return l.issue(ctx, l.store, accountID, ip, l.now())
}

func (l *RefreshTokenLedger) issue(ctx context.Context, m repomanager.RepositoryManager, accountID, ip string, now time.Time) (string, *models.RefreshToken, error) {
	token, err := l.newToken()
	if err != nil {
		return "", nil, common.Wrap(common.ErrorInternal, err)
	}
	rec := &models.RefreshToken{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		TokenHash:   cryptox.HashToken(token),
		CreatedByIP: ip,
		Created:     now,
		Expires:     now.Add(l.ttl),
	}
	if err := m.RefreshTokens().Create(ctx, rec); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return "", nil, common.Wrap(common.ErrorInternal, err)
		}
		return "", nil, storeError(err)
	}
	return token, rec, nil
}

// Find returns the record for a bearer value in any state.
func (l *RefreshTokenLedger) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	if token == "" {
		return nil, common.ErrRefreshTokenNotFound
	}
	rec, err := l.store.RefreshTokens().Find(ctx, cryptox.HashToken(token))
	if err != nil {
		return nil, notFoundAs(err, common.ErrRefreshTokenNotFound)
	}
	return rec, nil
}

// Rotate exchanges an active token for a new one. The successor insert and
// the conditional revoke of the presented token share one transaction, so
// of two concurrent rotations of the same token exactly one succeeds.
func (l *RefreshTokenLedger) Rotate(ctx context.Context, token, ip string) (string, *models.RefreshToken, error) {
	rec, err := l.Find(ctx, token)
	if err != nil {
		return "", nil, err
	}

	now := l.now()
	if !rec.IsActive(now) {
		l.inactivePresented(ctx, rec, now, ip)
		return "", nil, common.ErrTokenInactive
	}

	var (
		newToken string
		next     *models.RefreshToken
	)
	err = l.store.WithTx(ctx, func(ctx context.Context, m repomanager.RepositoryManager) error {
		var err error
		newToken, next, err = l.issue(ctx, m, rec.AccountID, ip, now)
		if err != nil {
			return err
		}
		return l.revoke(ctx, m, rec.ID, now, ip, &next.ID)
	})
	if err != nil {
		if errors.Is(err, common.ErrTokenInactive) {
			l.logger.Warn(ctx, "refresh token rotated concurrently", "account_id", rec.AccountID, "token_id", rec.ID)
		}
		return "", nil, err
	}

	l.logger.Info(ctx, "refresh token rotated", "account_id", rec.AccountID, "token_id", rec.ID, "replaced_by", next.ID)
	return newToken, next, nil
}

// Revoke ends an active token without issuing a successor and returns the
// updated record.
func (l *RefreshTokenLedger) Revoke(ctx context.Context, token, ip string) (*models.RefreshToken, error) {
	rec, err := l.Find(ctx, token)
	if err != nil {
		return nil, err
	}

	now := l.now()
	if !rec.IsActive(now) {
		l.logger.Warn(ctx, "revocation of inactive refresh token", "account_id", rec.AccountID, "token_id", rec.ID)
		return nil, common.ErrTokenInactive
	}
	if err := l.revoke(ctx, l.store, rec.ID, now, ip, nil); err != nil {
		return nil, err
	}

	l.logger.Info(ctx, "refresh token revoked", "account_id", rec.AccountID, "token_id", rec.ID)
	rec.Revoked = &now
	rec.RevokedByIP = &ip
	return rec, nil
}

func (l *RefreshTokenLedger) revoke(ctx context.Context, m repomanager.RepositoryManager, id string, at time.Time, ip string, replacedBy *string) error {
	err := m.RefreshTokens().Revoke(ctx, id, at, ip, replacedBy)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrorConflict):
		return common.Wrap(common.ErrTokenInactive, err)
	case errors.Is(err, common.ErrorNotFound):
		return common.Wrap(common.ErrRefreshTokenNotFound, err)
	default:
		return storeError(err)
	}
}

// ListForAccount returns the account's tokens, newest first.
func (l *RefreshTokenLedger) ListForAccount(ctx context.Context, accountID string) ([]*models.RefreshToken, error) {
	list, err := l.store.RefreshTokens().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, storeError(err)
	}
	return list, nil
}

// inactivePresented is the reuse hook: a revoked or expired token came back.
func (l *RefreshTokenLedger) inactivePresented(ctx context.Context, rec *models.RefreshToken, now time.Time, ip string) {
	l.logger.Warn(ctx, "inactive refresh token presented",
		"account_id", rec.AccountID,
		"token_id", rec.ID,
		"revoked", rec.Revoked != nil,
		"ip", ip,
	)
	if !l.revokeChainOnReuse || rec.Revoked == nil || rec.ReplacedByID == nil {
		return
	}

	revoked := 0
	err := l.store.WithTx(ctx, func(ctx context.Context, m repomanager.RepositoryManager) error {
		id := *rec.ReplacedByID
		for i := 0; i < maxChainLength; i++ {
			t, err := m.RefreshTokens().FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return nil
				}
				return err
			}
			if t.IsActive(now) {
				if err := m.RefreshTokens().Revoke(ctx, t.ID, now, ip, nil); err != nil && !errors.Is(err, common.ErrorConflict) {
					return err
				}
				revoked++
			}
			if t.ReplacedByID == nil {
				return nil
			}
			id = *t.ReplacedByID
		}
		return nil
	})
	if err != nil {
		l.logger.Error(ctx, "revoking refresh token chain failed", "account_id", rec.AccountID, "error", err.Error())
		return
	}
	l.logger.Warn(ctx, "refresh token chain revoked after reuse", "account_id", rec.AccountID, "revoked", revoked)
}
