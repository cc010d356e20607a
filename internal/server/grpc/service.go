package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

const ServiceName = "accountkeeper.v1.AccountService"

// Handler is the account service as seen by the transport.
type Handler interface {
	Register(ctx context.Context, req *RegisterRequest) (*services.RegisterResult, error)
	VerifyEmail(ctx context.Context, req *TokenRequest) (*MessageResponse, error)
	Authenticate(ctx context.Context, req *AuthenticateRequest) (*services.AuthResult, error)
	RefreshToken(ctx context.Context, req *TokenRequest) (*services.AuthResult, error)
	RevokeToken(ctx context.Context, req *TokenRequest) (*MessageResponse, error)
	ForgotPassword(ctx context.Context, req *ForgotPasswordRequest) (*MessageResponse, error)
	ValidateResetToken(ctx context.Context, req *TokenRequest) (*MessageResponse, error)
	ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*MessageResponse, error)
	GetAll(ctx context.Context, req *Empty) (*AccountsResponse, error)
	GetByID(ctx context.Context, req *IDRequest) (*models.AccountDetails, error)
	Create(ctx context.Context, req *services.CreateRequest) (*models.AccountDetails, error)
	Update(ctx context.Context, req *UpdateRequest) (*models.AccountDetails, error)
	Delete(ctx context.Context, req *IDRequest) (*MessageResponse, error)
	ListRefreshTokens(ctx context.Context, req *IDRequest) (*RefreshTokensResponse, error)
}

// access describes who may call a method. Public methods skip the gate;
// the others need a valid access token and, if roles is set, one of them.
type access struct {
	public bool
	roles  []models.Role
}

var (
	public    = access{public: true}
	signedIn  = access{}
	adminOnly = access{roles: []models.Role{models.RoleAdmin}}
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// methodAccess is keyed by full method name. Methods of other services
// (health) are not listed and pass through untouched.
var methodAccess = map[string]access{
	fullMethod("Register"):           public,
	fullMethod("VerifyEmail"):        public,
	fullMethod("Authenticate"):       public,
	fullMethod("RefreshToken"):       public,
	fullMethod("ForgotPassword"):     public,
	fullMethod("ValidateResetToken"): public,
	fullMethod("ResetPassword"):      public,
	fullMethod("RevokeToken"):        signedIn,
	fullMethod("GetByID"):            signedIn,
	fullMethod("Update"):             signedIn,
	fullMethod("Delete"):             signedIn,
	fullMethod("ListRefreshTokens"):  signedIn,
	fullMethod("GetAll"):             adminOnly,
	fullMethod("Create"):             adminOnly,
}

func unary[Req, Resp any](name string, call func(h Handler, ctx context.Context, req *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := srv.(Handler)
			if interceptor == nil {
				return call(h, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(h, ctx, req.(*Req))
			})
		},
	}
}

// ServiceDesc describes the account service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", Handler.Register),
		unary("VerifyEmail", Handler.VerifyEmail),
		unary("Authenticate", Handler.Authenticate),
		unary("RefreshToken", Handler.RefreshToken),
		unary("RevokeToken", Handler.RevokeToken),
		unary("ForgotPassword", Handler.ForgotPassword),
		unary("ValidateResetToken", Handler.ValidateResetToken),
		unary("ResetPassword", Handler.ResetPassword),
		unary("GetAll", Handler.GetAll),
		unary("GetByID", Handler.GetByID),
		unary("Create", Handler.Create),
		unary("Update", Handler.Update),
		unary("Delete", Handler.Delete),
		unary("ListRefreshTokens", Handler.ListRefreshTokens),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "accountkeeper/v1/account.json",
}
