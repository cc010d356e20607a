// Package services holds the account lifecycle, the refresh token ledger and
// the authorization gate. Every method returns *common.Error values (or
// errors wrapping them) so transports can map failures by kind.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/observability"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
)

// RegistrationMessage is returned for every accepted registration, whether
// or not the email was already known.
const RegistrationMessage = "Registration successful, please check your email for verification instructions"

// Mailer queues account emails. Sends are fire and forget; delivery failures
// are the mailer's to log and report.
type Mailer interface {
	SendVerification(ctx context.Context, email, token, origin string)
	SendAlreadyRegistered(ctx context.Context, email, origin string)
	SendPasswordReset(ctx context.Context, email, token, origin string)
}

type RegisterRequest struct {
	Title       string `json:"title,omitempty"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	AcceptTerms bool   `json:"acceptTerms"`
}

// RegisterResult carries the verification token only in API-only mode (no
// origin), where no link can be mailed.
type RegisterResult struct {
	Message           string `json:"message"`
	VerificationToken string `json:"verificationToken,omitempty"`
}

type AuthResult struct {
	Account             models.AccountDetails `json:"account"`
	JWTToken            string                `json:"jwtToken"`
	JWTTokenExpires     time.Time             `json:"jwtTokenExpires"`
	RefreshToken        string                `json:"refreshToken"`
	RefreshTokenExpires time.Time             `json:"refreshTokenExpires"`
}

// CreateRequest is an admin-created account; it starts out verified.
type CreateRequest struct {
	Title     string      `json:"title,omitempty"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	Role      models.Role `json:"role"`
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	Title     *string      `json:"title,omitempty"`
	FirstName *string      `json:"firstName,omitempty"`
	LastName  *string      `json:"lastName,omitempty"`
	Email     *string      `json:"email,omitempty"`
	Password  *string      `json:"password,omitempty"`
	Role      *models.Role `json:"role,omitempty"`
}

// AccountService implements registration, verification, sign-in, token
// refresh, password reset and account administration.
type AccountService struct {
	store    repomanager.RepositoryManager
	hasher   cryptox.Hasher
	issuer   *auth.Issuer
	ledger   *RefreshTokenLedger
	mailer   Mailer
	logger   logging.Logger
	reporter observability.Reporter

	resetTTL         time.Duration
	revealEmailTaken bool

	now       func() time.Time
	newToken  func() (string, error)
	decoyHash string
}

type AccountServiceOption func(*AccountService)

func WithAccountClock(now func() time.Time) AccountServiceOption {
	return func(s *AccountService) { s.now = now }
}

func NewAccountService(
	store repomanager.RepositoryManager,
	hasher cryptox.Hasher,
	issuer *auth.Issuer,
	ledger *RefreshTokenLedger,
	mailer Mailer,
	cfg *config.Config,
	logger logging.Logger,
	reporter observability.Reporter,
	opts ...AccountServiceOption,
) *AccountService {
	if reporter == nil {
		reporter = observability.NopReporter{}
	}
	s := &AccountService{
		store:            store,
		hasher:           hasher,
		issuer:           issuer,
		ledger:           ledger,
		mailer:           mailer,
		logger:           logger.With("module", "account_service"),
		reporter:         reporter,
		resetTTL:         cfg.ResetTokenValidityDuration,
		revealEmailTaken: cfg.RevealEmailTaken,
		now:              time.Now,
		newToken:         common.NewOpaqueToken,
	}
	for _, o := range opts {
		o(s)
	}

	// Unknown emails are checked against this digest so that sign-in costs
	// the same whether or not the account exists.
	if decoy, err := common.NewOpaqueToken(); err == nil {
		s.decoyHash, _ = hasher.Hash(decoy[:32])
	}
	return s
}

// fail reports errors that are not the caller's fault before returning them.
func (s *AccountService) fail(ctx context.Context, op string, err error) error {
	switch common.KindOf(err) {
	case common.KindStoreUnavailable, common.KindInternal:
		s.logger.Error(ctx, "operation failed", "op", op, "error", errorCause(err))
		s.reporter.Report(ctx, err, map[string]string{"op": op})
	}
	return err
}

// errorCause renders the underlying failure for logs, which Error() hides.
func errorCause(err error) string {
	if cause := errors.Unwrap(err); cause != nil {
		return cause.Error()
	}
	return err.Error()
}

func ptr[T any](v T) *T {
	return &v
}

// Register creates an account and mails a verification token. The first
// account ever created becomes Admin. A duplicate email yields the same
// result as a fresh registration unless RevealEmailTaken is set.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest, origin string) (*RegisterResult, error) {
	req.Email = normalizeEmail(req.Email)
	p := profile{Title: req.Title, FirstName: req.FirstName, LastName: req.LastName, Email: req.Email}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if !req.AcceptTerms {
		return nil, common.ErrInvalidInput.WithMessage("terms must be accepted")
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	// Hash before the lookup so both outcomes do the same work.
	digest, err := hashPassword(s.hasher, req.Password)
	if err != nil {
		return nil, s.fail(ctx, "register", err)
	}
	token, err := s.newToken()
	if err != nil {
		return nil, s.fail(ctx, "register", common.Wrap(common.ErrorInternal, err))
	}

	_, err = s.store.Accounts().FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return s.alreadyRegistered(ctx, req.Email, origin, token)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, s.fail(ctx, "register", storeError(err))
	}

	now := s.now()
	account := &models.Account{
		ID:                uuid.NewString(),
		Email:             req.Email,
		PasswordHash:      digest,
		Title:             req.Title,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		AcceptTerms:       req.AcceptTerms,
		VerificationToken: ptr(cryptox.HashToken(token)),
		Created:           now,
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, m repomanager.RepositoryManager) error {
		if err := m.Accounts().Lock(ctx); err != nil {
			return err
		}
		n, err := m.Accounts().Count(ctx)
		if err != nil {
			return err
		}
		account.Role = models.RoleUser
		if n == 0 {
			account.Role = models.RoleAdmin
		}
		return m.Accounts().Create(ctx, account)
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return s.alreadyRegistered(ctx, req.Email, origin, token)
		}
		return nil, s.fail(ctx, "register", storeError(err))
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID, "role", string(account.Role))
	s.mailer.SendVerification(ctx, account.Email, token, origin)

	result := &RegisterResult{Message: RegistrationMessage}
	if origin == "" {
		result.VerificationToken = token
	}
	return result, nil
}

// alreadyRegistered answers a duplicate registration. decoy is an unused
// token of the real shape, returned in API-only mode.
func (s *AccountService) alreadyRegistered(ctx context.Context, email, origin, decoy string) (*RegisterResult, error) {
	if s.revealEmailTaken {
		return nil, common.ErrEmailTaken
	}
	s.logger.Info(ctx, "registration for existing email")
	s.mailer.SendAlreadyRegistered(ctx, email, origin)

	result := &RegisterResult{Message: RegistrationMessage}
	if origin == "" {
		result.VerificationToken = decoy
	}
	return result, nil
}

// VerifyEmail consumes a verification token.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return common.ErrInvalidVerificationToken
	}
	account, err := s.store.Accounts().FindByVerificationToken(ctx, cryptox.HashToken(token))
	if err != nil {
		return s.fail(ctx, "verify_email", notFoundAs(err, common.ErrInvalidVerificationToken))
	}
	if account.Verified != nil {
		return common.ErrAlreadyVerified
	}

	now := s.now()
	account.Verified = &now
	account.VerificationToken = nil
	account.Updated = &now
	if err := s.store.Accounts().Update(ctx, account); err != nil {
		return s.fail(ctx, "verify_email", notFoundAs(err, common.ErrInvalidVerificationToken))
	}
	s.logger.Info(ctx, "email verified", "account_id", account.ID)
	return nil
}

// Authenticate checks credentials and issues an access token and a refresh
// token. Unknown emails and wrong passwords are indistinguishable.
func (s *AccountService) Authenticate(ctx context.Context, email, password, ip string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, common.ErrInvalidCredentials
	}

	account, err := s.store.Accounts().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(password, s.decoyHash)
			return nil, common.ErrInvalidCredentials
		}
		return nil, s.fail(ctx, "authenticate", storeError(err))
	}
	if !s.hasher.Verify(password, account.PasswordHash) {
		s.logger.Info(ctx, "authentication failed", "account_id", account.ID)
		return nil, common.ErrInvalidCredentials
	}
	if !account.IsVerified() {
		return nil, common.ErrAccountNotVerified
	}

	result, err := s.issue(ctx, account, ip)
	if err != nil {
		return nil, s.fail(ctx, "authenticate", err)
	}
	s.logger.Info(ctx, "account authenticated", "account_id", account.ID)
	return result, nil
}

func (s *AccountService) issue(ctx context.Context, account *models.Account, ip string) (*AuthResult, error) {
	jwtToken, jwtExpires, err := s.issuer.GenerateToken(account.ID)
	if err != nil {
		return nil, common.Wrap(common.ErrorInternal, err)
	}
	refresh, rec, err := s.ledger.Issue(ctx, account.ID, ip)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Account:             account.Details(),
		JWTToken:            jwtToken,
		JWTTokenExpires:     jwtExpires,
		RefreshToken:        refresh,
		RefreshTokenExpires: rec.Expires,
	}, nil
}

// RefreshToken rotates a refresh token and issues a new access token.
func (s *AccountService) RefreshToken(ctx context.Context, token, ip string) (*AuthResult, error) {
	refresh, rec, err := s.ledger.Rotate(ctx, token, ip)
	if err != nil {
		return nil, s.fail(ctx, "refresh_token", err)
	}
	account, err := s.store.Accounts().FindByID(ctx, rec.AccountID)
	if err != nil {
		return nil, s.fail(ctx, "refresh_token", notFoundAs(err, common.ErrRefreshTokenNotFound))
	}
	jwtToken, jwtExpires, err := s.issuer.GenerateToken(account.ID)
	if err != nil {
		return nil, s.fail(ctx, "refresh_token", common.Wrap(common.ErrorInternal, err))
	}
	return &AuthResult{
		Account:             account.Details(),
		JWTToken:            jwtToken,
		JWTTokenExpires:     jwtExpires,
		RefreshToken:        refresh,
		RefreshTokenExpires: rec.Expires,
	}, nil
}

// RevokeToken revokes a refresh token. Only admins may revoke tokens of
// other accounts.
func (s *AccountService) RevokeToken(ctx context.Context, caller *models.Account, token, ip string) error {
	if token == "" {
		return common.ErrInvalidInput.WithMessage("token is required")
	}
	rec, err := s.ledger.Find(ctx, token)
	if err != nil {
		return s.fail(ctx, "revoke_token", err)
	}
	if !canAccess(caller, rec.AccountID) {
		return common.ErrForbidden
	}
	if _, err := s.ledger.Revoke(ctx, token, ip); err != nil {
		return s.fail(ctx, "revoke_token", err)
	}
	return nil
}

// ForgotPassword mails a reset token when the email is known. The answer is
// the same either way; only store failures surface.
func (s *AccountService) ForgotPassword(ctx context.Context, email, origin string) error {
	token, err := s.newToken()
	if err != nil {
		return s.fail(ctx, "forgot_password", common.Wrap(common.ErrorInternal, err))
	}
	digest := cryptox.HashToken(token)

	account, err := s.store.Accounts().FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.decoyStoreRoundTrip(ctx, digest)
			return nil
		}
		return s.fail(ctx, "forgot_password", storeError(err))
	}

	now := s.now()
	account.ResetToken = &digest
	account.ResetTokenExpires = ptr(now.Add(s.resetTTL))
	account.Updated = &now
	if err := s.store.Accounts().Update(ctx, account); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return s.fail(ctx, "forgot_password", storeError(err))
	}

	s.logger.Info(ctx, "password reset requested", "account_id", account.ID)
	s.mailer.SendPasswordReset(ctx, account.Email, token, origin)
	return nil
}

// decoyStoreRoundTrip spends one store query on an unknown email so that
// ForgotPassword answers in about the same time either way. The digest is
// fresh, so nothing can match.
func (s *AccountService) decoyStoreRoundTrip(ctx context.Context, digest string) {
	_, _ = s.store.Accounts().FindByActiveResetToken(ctx, digest, s.now())
}

func (s *AccountService) findByResetToken(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, common.ErrInvalidResetToken
	}
	account, err := s.store.Accounts().FindByActiveResetToken(ctx, cryptox.HashToken(token), s.now())
	if err != nil {
		return nil, notFoundAs(err, common.ErrInvalidResetToken)
	}
	return account, nil
}

// ValidateResetToken succeeds if token is an unexpired reset token.
func (s *AccountService) ValidateResetToken(ctx context.Context, token string) error {
	if _, err := s.findByResetToken(ctx, token); err != nil {
		return s.fail(ctx, "validate_reset_token", err)
	}
	return nil
}

// ResetPassword sets a new password with a reset token. The token is
// consumed and the account counts as verified afterwards.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	account, err := s.findByResetToken(ctx, token)
	if err != nil {
		return s.fail(ctx, "reset_password", err)
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	digest, err := hashPassword(s.hasher, password)
	if err != nil {
		return s.fail(ctx, "reset_password", err)
	}

	now := s.now()
	account.PasswordHash = digest
	account.ResetToken = nil
	account.ResetTokenExpires = nil
	account.PasswordReset = &now
	account.Updated = &now
	if err := s.store.Accounts().ConsumeResetToken(ctx, account, cryptox.HashToken(token)); err != nil {
		return s.fail(ctx, "reset_password", notFoundAs(err, common.ErrInvalidResetToken))
	}
	s.logger.Info(ctx, "password reset", "account_id", account.ID)
	return nil
}

func isAdmin(caller *models.Account) bool {
	return caller != nil && caller.Role == models.RoleAdmin
}

// canAccess allows admins everything and other callers their own account.
func canAccess(caller *models.Account, accountID string) bool {
	return isAdmin(caller) || (caller != nil && caller.ID == accountID)
}

// GetAll lists every account. Admin only.
func (s *AccountService) GetAll(ctx context.Context, caller *models.Account) ([]models.AccountDetails, error) {
	if !isAdmin(caller) {
		return nil, common.ErrForbidden
	}
	list, err := s.store.Accounts().List(ctx)
	if err != nil {
		return nil, s.fail(ctx, "get_all", storeError(err))
	}
	result := make([]models.AccountDetails, 0, len(list))
	for _, a := range list {
		result = append(result, a.Details())
	}
	return result, nil
}

func (s *AccountService) GetByID(ctx context.Context, caller *models.Account, id string) (*models.AccountDetails, error) {
	if !canAccess(caller, id) {
		return nil, common.ErrForbidden
	}
	account, err := s.store.Accounts().FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get_by_id", notFoundAs(err, common.ErrAccountNotFound))
	}
	d := account.Details()
	return &d, nil
}

// Create adds a verified account. Admin only; duplicate emails are always
// reported as ErrEmailTaken here.
func (s *AccountService) Create(ctx context.Context, caller *models.Account, req CreateRequest) (*models.AccountDetails, error) {
	if !isAdmin(caller) {
		return nil, common.ErrForbidden
	}
	req.Email = normalizeEmail(req.Email)
	p := profile{Title: req.Title, FirstName: req.FirstName, LastName: req.LastName, Email: req.Email}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, common.ErrInvalidInput.WithMessage("role must be Admin or User")
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	digest, err := hashPassword(s.hasher, req.Password)
	if err != nil {
		return nil, s.fail(ctx, "create", err)
	}

	now := s.now()
	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: digest,
		Title:        req.Title,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		AcceptTerms:  true,
		Role:         req.Role,
		Verified:     &now,
		Created:      now,
	}
	if err := s.store.Accounts().Create(ctx, account); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrEmailTaken
		}
		return nil, s.fail(ctx, "create", storeError(err))
	}

	s.logger.Info(ctx, "account created", "account_id", account.ID, "role", string(account.Role), "by", caller.ID)
	d := account.Details()
	return &d, nil
}

// Update applies req to the account. Callers may update themselves; only
// admins may update others or change a role.
func (s *AccountService) Update(ctx context.Context, caller *models.Account, id string, req UpdateRequest) (*models.AccountDetails, error) {
	if !canAccess(caller, id) {
		return nil, common.ErrForbidden
	}
	if req.Role != nil && !isAdmin(caller) {
		return nil, common.ErrForbidden
	}

	account, err := s.store.Accounts().FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "update", notFoundAs(err, common.ErrAccountNotFound))
	}

	p := profile{Title: account.Title, FirstName: account.FirstName, LastName: account.LastName, Email: account.Email}
	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.FirstName != nil {
		p.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		p.LastName = *req.LastName
	}
	if req.Email != nil {
		p.Email = normalizeEmail(*req.Email)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if req.Role != nil && !req.Role.Valid() {
		return nil, common.ErrInvalidInput.WithMessage("role must be Admin or User")
	}

	if p.Email != account.Email {
		other, err := s.store.Accounts().FindByEmail(ctx, p.Email)
		switch {
		case err == nil && other.ID != account.ID:
			return nil, common.ErrEmailTaken
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return nil, s.fail(ctx, "update", storeError(err))
		}
	}

	if req.Password != nil {
		if err := validatePassword(*req.Password); err != nil {
			return nil, err
		}
		digest, err := hashPassword(s.hasher, *req.Password)
		if err != nil {
			return nil, s.fail(ctx, "update", err)
		}
		account.PasswordHash = digest
	}

	account.Title = p.Title
	account.FirstName = p.FirstName
	account.LastName = p.LastName
	account.Email = p.Email
	if req.Role != nil {
		account.Role = *req.Role
	}
	account.Updated = ptr(s.now())

	if err := s.store.Accounts().Update(ctx, account); err != nil {
		switch {
		case errors.Is(err, common.ErrorAlreadyExists):
			return nil, common.ErrEmailTaken
		default:
			return nil, s.fail(ctx, "update", notFoundAs(err, common.ErrAccountNotFound))
		}
	}

	s.logger.Info(ctx, "account updated", "account_id", account.ID, "by", caller.ID)
	d := account.Details()
	return &d, nil
}

// Delete removes the account and its refresh tokens in one transaction.
func (s *AccountService) Delete(ctx context.Context, caller *models.Account, id string) error {
	if !canAccess(caller, id) {
		return common.ErrForbidden
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, m repomanager.RepositoryManager) error {
		if _, err := m.Accounts().FindByID(ctx, id); err != nil {
			return err
		}
		if err := m.RefreshTokens().DeleteByAccount(ctx, id); err != nil {
			return err
		}
		return m.Accounts().Delete(ctx, id)
	})
	if err != nil {
		return s.fail(ctx, "delete", notFoundAs(err, common.ErrAccountNotFound))
	}
	s.logger.Info(ctx, "account deleted", "account_id", id, "by", caller.ID)
	return nil
}

// RefreshTokens lists an account's refresh tokens with their state.
func (s *AccountService) RefreshTokens(ctx context.Context, caller *models.Account, accountID string) ([]models.RefreshTokenDetails, error) {
	if !canAccess(caller, accountID) {
		return nil, common.ErrForbidden
	}
	if _, err := s.store.Accounts().FindByID(ctx, accountID); err != nil {
		return nil, s.fail(ctx, "refresh_tokens", notFoundAs(err, common.ErrAccountNotFound))
	}
	list, err := s.ledger.ListForAccount(ctx, accountID)
	if err != nil {
		return nil, s.fail(ctx, "refresh_tokens", err)
	}
	now := s.now()
	result := make([]models.RefreshTokenDetails, 0, len(list))
	for _, t := range list {
		result = append(result, t.Details(now))
	}
	return result, nil
}
