package grpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

type mailbox struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *mailbox) put(email, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[email] = token
}

func (m *mailbox) get(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

func (m *mailbox) SendVerification(_ context.Context, email, token, _ string) { m.put(email, token) }
func (m *mailbox) SendAlreadyRegistered(context.Context, string, string)        {}
func (m *mailbox) SendPasswordReset(_ context.Context, email, token, _ string)  { m.put(email, token) }

type testClient struct {
	t    *testing.T
	conn *grpc.ClientConn
	mail *mailbox
}

func startServer(t *testing.T) *testClient {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()

	store := memory.NewStore()
	logger := logging.NewNopLogger()
	issuer := auth.NewIssuer([]byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
	ledger := services.NewRefreshTokenLedger(store, cfg.RefreshTokenValidityDuration, logger)
	mail := &mailbox{tokens: map[string]string{}}
	accounts := services.NewAccountService(store, cryptox.NewBcryptHasher(bcrypt.MinCost), issuer, ledger, mail, cfg, logger, nil)
	srv := NewGRPCServer("bufnet", logger, accounts, services.NewGate(issuer, store), nil)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return &testClient{t: t, conn: conn, mail: mail}
}

func (c *testClient) call(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, fullMethod(method), req, resp)
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func (c *testClient) signUp(email string) *services.AuthResult {
	c.t.Helper()
	ctx := context.Background()

	var reg services.RegisterResult
	req := &RegisterRequest{RegisterRequest: services.RegisterRequest{
		FirstName: "Jane", LastName: "Doe", Email: email, Password: "passw0rd!", AcceptTerms: true,
	}}
	require.NoError(c.t, c.call(ctx, "Register", req, &reg))
	require.NotEmpty(c.t, reg.VerificationToken)

	var msg MessageResponse
	require.NoError(c.t, c.call(ctx, "VerifyEmail", &TokenRequest{Token: reg.VerificationToken}, &msg))

	var res services.AuthResult
	require.NoError(c.t, c.call(ctx, "Authenticate", &AuthenticateRequest{Email: email, Password: "passw0rd!"}, &res))
	return &res
}

func TestServer_AccountFlow(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	admin := c.signUp("admin@example.com")
	assert.Equal(t, models.RoleAdmin, admin.Account.Role)
	user := c.signUp("user@example.com")
	assert.Equal(t, models.RoleUser, user.Account.Role)

	var rotated services.AuthResult
	require.NoError(t, c.call(ctx, "RefreshToken", &TokenRequest{Token: user.RefreshToken}, &rotated))
	assert.NotEqual(t, user.RefreshToken, rotated.RefreshToken)

	err := c.call(ctx, "RefreshToken", &TokenRequest{Token: user.RefreshToken}, &rotated)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "token_inactive", ReasonOf(err))

	var me models.AccountDetails
	require.NoError(t, c.call(withToken(user.JWTToken), "GetByID", &IDRequest{ID: user.Account.ID}, &me))
	assert.Equal(t, "user@example.com", me.Email)

	var all AccountsResponse
	err = c.call(withToken(user.JWTToken), "GetAll", &Empty{}, &all)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	require.NoError(t, c.call(withToken(admin.JWTToken), "GetAll", &Empty{}, &all))
	assert.Len(t, all.Accounts, 2)

	var tokens RefreshTokensResponse
	require.NoError(t, c.call(withToken(user.JWTToken), "ListRefreshTokens", &IDRequest{ID: user.Account.ID}, &tokens))
	assert.Len(t, tokens.Tokens, 2)
	assert.Equal(t, "bufconn", tokens.Tokens[0].CreatedByIP)

	var msg MessageResponse
	require.NoError(t, c.call(withToken(user.JWTToken), "RevokeToken", &TokenRequest{Token: rotated.RefreshToken}, &msg))
	assert.Equal(t, "Token revoked", msg.Message)

	name := "Janet"
	var updated models.AccountDetails
	require.NoError(t, c.call(withToken(user.JWTToken), "Update",
		&UpdateRequest{ID: user.Account.ID, UpdateRequest: services.UpdateRequest{FirstName: &name}}, &updated))
	assert.Equal(t, "Janet", updated.FirstName)

	require.NoError(t, c.call(withToken(admin.JWTToken), "Delete", &IDRequest{ID: user.Account.ID}, &msg))
	err = c.call(withToken(user.JWTToken), "GetByID", &IDRequest{ID: user.Account.ID}, &me)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "invalid_access_token", ReasonOf(err))
}

func TestServer_PasswordReset(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()
	c.signUp("a@example.com")

	var msg MessageResponse
	require.NoError(t, c.call(ctx, "ForgotPassword", &ForgotPasswordRequest{Email: "a@example.com"}, &msg))
	require.NoError(t, c.call(ctx, "ForgotPassword", &ForgotPasswordRequest{Email: "nobody@example.com"}, &msg))

	token := c.mail.get("a@example.com")
	require.NoError(t, c.call(ctx, "ValidateResetToken", &TokenRequest{Token: token}, &msg))
	assert.Equal(t, "Token is valid", msg.Message)

	err := c.call(ctx, "ResetPassword", &ResetPasswordRequest{Token: token, Password: "weak"}, &msg)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, "weak_password", ReasonOf(err))

	require.NoError(t, c.call(ctx, "ResetPassword", &ResetPasswordRequest{Token: token, Password: "n3wpassword"}, &msg))

	var res services.AuthResult
	require.NoError(t, c.call(ctx, "Authenticate", &AuthenticateRequest{Email: "a@example.com", Password: "n3wpassword"}, &res))

	err = c.call(ctx, "ValidateResetToken", &TokenRequest{Token: token}, &msg)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServer_ErrorMapping(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	var res services.AuthResult
	err := c.call(ctx, "Authenticate", &AuthenticateRequest{Email: "x@example.com", Password: "passw0rd!"}, &res)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "invalid_credentials", ReasonOf(err))
	assert.Equal(t, "email or password is incorrect", status.Convert(err).Message())

	var reg services.RegisterResult
	err = c.call(ctx, "Register", &RegisterRequest{RegisterRequest: services.RegisterRequest{Email: "bad"}}, &reg)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	var me models.AccountDetails
	err = c.call(ctx, "GetByID", &IDRequest{ID: "x"}, &me)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "unauthenticated", ReasonOf(err))

	err = c.call(withToken("garbage"), "GetByID", &IDRequest{ID: "x"}, &me)
	assert.Equal(t, "invalid_access_token", ReasonOf(err))
}

func TestServer_Health(t *testing.T) {
	c := startServer(t)

	resp, err := healthpb.NewHealthClient(c.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName},
		grpc.CallContentSubtype("proto"))
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	srv := NewGRPCServer("127.0.0.1:99999", logging.NewNopLogger(), nil, nil, nil)
	assert.Error(t, srv.Run(context.Background()))
}
