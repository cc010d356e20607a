package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
)

const testPassword = "passw0rd!"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentMail struct {
	kind   string
	email  string
	token  string
	origin string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) add(s sentMail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, s)
}

func (m *fakeMailer) SendVerification(_ context.Context, email, token, origin string) {
	m.add(sentMail{kind: "verification", email: email, token: token, origin: origin})
}

func (m *fakeMailer) SendAlreadyRegistered(_ context.Context, email, origin string) {
	m.add(sentMail{kind: "already_registered", email: email, origin: origin})
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, email, token, origin string) {
	m.add(sentMail{kind: "password_reset", email: email, token: token, origin: origin})
}

func (m *fakeMailer) all() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

func (m *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	all := m.all()
	require.NotEmpty(t, all, "no mail sent")
	return all[len(all)-1]
}

type fakeReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *fakeReporter) Report(_ context.Context, err error, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *fakeReporter) Flush(time.Duration) bool { return true }

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

type testEnv struct {
	store    repomanager.RepositoryManager
	clock    *clock
	mailer   *fakeMailer
	reporter *fakeReporter
	issuer   *auth.Issuer
	ledger   *RefreshTokenLedger
	svc      *AccountService
	gate     *Gate
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memory.NewStore(), mutate...)
}

func newTestEnvWithStore(t *testing.T, store repomanager.RepositoryManager, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	for _, m := range mutate {
		m(cfg)
	}

	e := &testEnv{
		store:    store,
		clock:    newClock(),
		mailer:   &fakeMailer{},
		reporter: &fakeReporter{},
	}
	logger := logging.NewNopLogger()
	e.issuer = auth.NewIssuer([]byte(cfg.SecretKey), cfg.AccessTokenValidityDuration, auth.WithClock(e.clock.Now))
	e.ledger = NewRefreshTokenLedger(store, cfg.RefreshTokenValidityDuration, logger,
		WithLedgerClock(e.clock.Now), WithChainRevocation(cfg.RevokeChainOnReuse))
	e.svc = NewAccountService(store, cryptox.NewBcryptHasher(bcrypt.MinCost), e.issuer, e.ledger, e.mailer,
		cfg, logger, e.reporter, WithAccountClock(e.clock.Now))
	e.gate = NewGate(e.issuer, store)
	return e
}

func registerRequest(email string) RegisterRequest {
	return RegisterRequest{
		Title:       "Ms",
		FirstName:   "Jane",
		LastName:    "Doe",
		Email:       email,
		Password:    testPassword,
		AcceptTerms: true,
	}
}

// registerVerified registers email in API-only mode, verifies it and returns
// the stored account.
func (e *testEnv) registerVerified(t *testing.T, email string) *models.Account {
	t.Helper()
	ctx := context.Background()
	res, err := e.svc.Register(ctx, registerRequest(email), "")
	require.NoError(t, err)
	require.NoError(t, e.svc.VerifyEmail(ctx, res.VerificationToken))
	a, err := e.store.Accounts().FindByEmail(ctx, email)
	require.NoError(t, err)
	return a
}

func (e *testEnv) login(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := e.svc.Authenticate(context.Background(), email, testPassword, "10.0.0.1")
	require.NoError(t, err)
	return res
}

var errConnRefused = errors.New("dial tcp 10.0.0.5:5432: connection refused")

// brokenStore fails every operation the tests reach.
type brokenStore struct{}

type brokenAccounts struct{ accounts.Repository }

type brokenTokens struct{ refreshtokens.Repository }

func (brokenStore) Accounts() accounts.Repository           { return brokenAccounts{} }
func (brokenStore) RefreshTokens() refreshtokens.Repository { return brokenTokens{} }
func (brokenStore) WithTx(context.Context, func(context.Context, repomanager.RepositoryManager) error) error {
	return errConnRefused
}

func (brokenAccounts) FindByEmail(context.Context, string) (*models.Account, error) {
	return nil, errConnRefused
}

func (brokenAccounts) FindByID(context.Context, string) (*models.Account, error) {
	return nil, errConnRefused
}

func (brokenAccounts) List(context.Context) ([]*models.Account, error) {
	return nil, errConnRefused
}

func (brokenTokens) Find(context.Context, string) (*models.RefreshToken, error) {
	return nil, errConnRefused
}

// resetSpyStore counts reset token lookups and, when stale is set, answers
// them with a snapshot taken before the token was spent.
type resetSpyStore struct {
	repomanager.RepositoryManager
	stale   *models.Account
	lookups int
}

type resetSpyAccounts struct {
	accounts.Repository
	spy *resetSpyStore
}

func (s *resetSpyStore) Accounts() accounts.Repository {
	return resetSpyAccounts{Repository: s.RepositoryManager.Accounts(), spy: s}
}

func (r resetSpyAccounts) FindByActiveResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error) {
	r.spy.lookups++
	if r.spy.stale != nil {
		c := *r.spy.stale
		return &c, nil
	}
	return r.Repository.FindByActiveResetToken(ctx, tokenHash, now)
}
