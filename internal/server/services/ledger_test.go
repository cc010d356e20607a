package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
)

func TestLedger_Issue(t *testing.T) {
	e := newTestEnv(t)
	a := e.registerVerified(t, "a@example.com")
	ctx := context.Background()

	token, rec, err := e.ledger.Issue(ctx, a.ID, "10.0.0.1")
	require.NoError(t, err)

	assert.Len(t, token, 2*common.OpaqueTokenSize)
	assert.Equal(t, cryptox.HashToken(token), rec.TokenHash)
	assert.Equal(t, a.ID, rec.AccountID)
	assert.Equal(t, "10.0.0.1", rec.CreatedByIP)
	assert.Equal(t, e.clock.Now().Add(7*24*time.Hour), rec.Expires)
	assert.True(t, rec.IsActive(e.clock.Now()))

	found, err := e.ledger.Find(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)
}

func TestLedger_RotateRevokesPredecessor(t *testing.T) {
	e := newTestEnv(t)
	a := e.registerVerified(t, "a@example.com")
	ctx := context.Background()

	old, oldRec, err := e.ledger.Issue(ctx, a.ID, "10.0.0.1")
	require.NoError(t, err)

	e.clock.Advance(time.Minute)
	next, nextRec, err := e.ledger.Rotate(ctx, old, "10.0.0.2")
	require.NoError(t, err)
	assert.NotEqual(t, old, next)
	assert.Equal(t, a.ID, nextRec.AccountID)
	assert.Equal(t, "10.0.0.2", nextRec.CreatedByIP)

	prev, err := e.store.RefreshTokens().FindByID(ctx, oldRec.ID)
	require.NoError(t, err)
	require.NotNil(t, prev.Revoked)
	assert.Equal(t, e.clock.Now(), *prev.Revoked)
	require.NotNil(t, prev.RevokedByIP)
	assert.Equal(t, "10.0.0.2", *prev.RevokedByIP)
	require.NotNil(t, prev.ReplacedByID)
	assert.Equal(t, nextRec.ID, *prev.ReplacedByID)

	_, _, err = e.ledger.Rotate(ctx, old, "10.0.0.2")
	assert.ErrorIs(t, err, common.ErrTokenInactive)

	_, _, err = e.ledger.Rotate(ctx, next, "10.0.0.2")
	assert.NoError(t, err)
}

func TestLedger_RotateUnknownToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, _, err := e.ledger.Rotate(ctx, "", "ip")
	assert.ErrorIs(t, err, common.ErrRefreshTokenNotFound)

	_, _, err = e.ledger.Rotate(ctx, "deadbeef", "ip")
	assert.ErrorIs(t, err, common.ErrRefreshTokenNotFound)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestLedger_ExpiryBoundary(t *testing.T) {
	e := newTestEnv(t)
	a := e.registerVerified(t, "a@example.com")
	ctx := context.Background()

	first, _, err := e.ledger.Issue(ctx, a.ID, "ip")
	require.NoError(t, err)
	second, _, err := e.ledger.Issue(ctx, a.ID, "ip")
	require.NoError(t, err)

	e.clock.Advance(7*24*time.Hour - time.Second)
	_, _, err = e.ledger.Rotate(ctx, first, "ip")
	require.NoError(t, err)

	e.clock.Advance(time.Second)
	_, _, err = e.ledger.Rotate(ctx, second, "ip")
	assert.ErrorIs(t, err, common.ErrTokenInactive)
	assert.Equal(t, common.KindInactiveToken, common.KindOf(err))
}

func TestLedger_ConcurrentRotationHasOneWinner(t *testing.T) {
	e := newTestEnv(t)
	a := e.registerVerified(t, "a@example.com")
	ctx := context.Background()

	token, _, err := e.ledger.Issue(ctx, a.ID, "ip")
	require.NoError(t, err)

	const workers = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		inactive  atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := e.ledger.Rotate(ctx, token, "ip")
			switch {
			case err == nil:
				successes.Add(1)
			case common.KindOf(err) == common.KindInactiveToken:
				inactive.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), inactive.Load())

	list, err := e.ledger.ListForAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestLedger_Revoke(t *testing.T) {
	e := newTestEnv(t)
	a := e.registerVerified(t, "a@example.com")
	ctx := context.Background()

	token, _, err := e.ledger.Issue(ctx, a.ID, "ip")
	require.NoError(t, err)

	rec, err := e.ledger.Revoke(ctx, token, "10.1.1.1")
	require.NoError(t, err)
	require.NotNil(t, rec.Revoked)
	assert.Nil(t, rec.ReplacedByID)
	assert.False(t, rec.IsActive(e.clock.Now()))

	_, err = e.ledger.Revoke(ctx, token, "10.1.1.1")
	assert.ErrorIs(t, err, common.ErrTokenInactive)

	_, _, err = e.ledger.Rotate(ctx, token, "10.1.1.1")
	assert.ErrorIs(t, err, common.ErrTokenInactive)
}

func rotationChain(t *testing.T, e *testEnv, accountID string) (first, last string) {
	t.Helper()
	ctx := context.Background()
	first, _, err := e.ledger.Issue(ctx, accountID, "ip")
	require.NoError(t, err)
	mid, _, err := e.ledger.Rotate(ctx, first, "ip")
	require.NoError(t, err)
	last, _, err = e.ledger.Rotate(ctx, mid, "ip")
	require.NoError(t, err)
	return first, last
}

func TestLedger_ReuseKeepsChainByDefault(t *testing.T) {
	e := newTestEnv(t)
	a := e.registerVerified(t, "a@example.com")
	first, last := rotationChain(t, e, a.ID)

	_, _, err := e.ledger.Rotate(context.Background(), first, "6.6.6.6")
	require.ErrorIs(t, err, common.ErrTokenInactive)

	rec, err := e.ledger.Find(context.Background(), last)
	require.NoError(t, err)
	assert.True(t, rec.IsActive(e.clock.Now()))
}

func TestLedger_ReuseRevokesChainWhenEnabled(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.RevokeChainOnReuse = true })
	a := e.registerVerified(t, "a@example.com")
	first, last := rotationChain(t, e, a.ID)

	_, _, err := e.ledger.Rotate(context.Background(), first, "6.6.6.6")
	require.ErrorIs(t, err, common.ErrTokenInactive)

	rec, err := e.ledger.Find(context.Background(), last)
	require.NoError(t, err)
	assert.False(t, rec.IsActive(e.clock.Now()))
	require.NotNil(t, rec.RevokedByIP)
	assert.Equal(t, "6.6.6.6", *rec.RevokedByIP)

	_, _, err = e.ledger.Rotate(context.Background(), last, "ip")
	assert.ErrorIs(t, err, common.ErrTokenInactive)
}

func TestLedger_ListForAccountNewestFirst(t *testing.T) {
	e := newTestEnv(t)
	a := e.registerVerified(t, "a@example.com")
	ctx := context.Background()

	_, r1, err := e.ledger.Issue(ctx, a.ID, "ip")
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	_, r2, err := e.ledger.Issue(ctx, a.ID, "ip")
	require.NoError(t, err)

	list, err := e.ledger.ListForAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, r2.ID, list[0].ID)
	assert.Equal(t, r1.ID, list[1].ID)
}

func TestLedger_StoreFailure(t *testing.T) {
	e := newTestEnvWithStore(t, brokenStore{})

	_, _, err := e.ledger.Rotate(context.Background(), "abc", "ip")
	require.Error(t, err)
	assert.Equal(t, common.KindStoreUnavailable, common.KindOf(err))
	assert.NotContains(t, err.Error(), "connection refused")
}
