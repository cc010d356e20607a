package grpc

import (
	"context"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

var _ Handler = (*Server)(nil)

func caller(ctx context.Context) (*models.Account, error) {
	a, ok := CallerFromContext(ctx)
	if !ok {
		return nil, common.ErrUnauthenticated
	}
	return a, nil
}

func (s *Server) Register(ctx context.Context, req *RegisterRequest) (*services.RegisterResult, error) {
	return s.accounts.Register(ctx, req.RegisterRequest, req.Origin)
}

func (s *Server) VerifyEmail(ctx context.Context, req *TokenRequest) (*MessageResponse, error) {
	if err := s.accounts.VerifyEmail(ctx, req.Token); err != nil {
		return nil, err
	}
	return &MessageResponse{Message: "Verification successful, you can now login"}, nil
}

func (s *Server) Authenticate(ctx context.Context, req *AuthenticateRequest) (*services.AuthResult, error) {
	return s.accounts.Authenticate(ctx, req.Email, req.Password, peerIP(ctx))
}

func (s *Server) RefreshToken(ctx context.Context, req *TokenRequest) (*services.AuthResult, error) {
	return s.accounts.RefreshToken(ctx, req.Token, peerIP(ctx))
}

func (s *Server) RevokeToken(ctx context.Context, req *TokenRequest) (*MessageResponse, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.RevokeToken(ctx, c, req.Token, peerIP(ctx)); err != nil {
		return nil, err
	}
	return &MessageResponse{Message: "Token revoked"}, nil
}

func (s *Server) ForgotPassword(ctx context.Context, req *ForgotPasswordRequest) (*MessageResponse, error) {
	if err := s.accounts.ForgotPassword(ctx, req.Email, req.Origin); err != nil {
		return nil, err
	}
	return &MessageResponse{Message: "Please check your email for password reset instructions"}, nil
}

func (s *Server) ValidateResetToken(ctx context.Context, req *TokenRequest) (*MessageResponse, error) {
	if err := s.accounts.ValidateResetToken(ctx, req.Token); err != nil {
		return nil, err
	}
	return &MessageResponse{Message: "Token is valid"}, nil
}

func (s *Server) ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*MessageResponse, error) {
	if err := s.accounts.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return nil, err
	}
	return &MessageResponse{Message: "Password reset successful, you can now login"}, nil
}

func (s *Server) GetAll(ctx context.Context, _ *Empty) (*AccountsResponse, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.accounts.GetAll(ctx, c)
	if err != nil {
		return nil, err
	}
	return &AccountsResponse{Accounts: list}, nil
}

func (s *Server) GetByID(ctx context.Context, req *IDRequest) (*models.AccountDetails, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return s.accounts.GetByID(ctx, c, req.ID)
}

func (s *Server) Create(ctx context.Context, req *services.CreateRequest) (*models.AccountDetails, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return s.accounts.Create(ctx, c, *req)
}

func (s *Server) Update(ctx context.Context, req *UpdateRequest) (*models.AccountDetails, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return s.accounts.Update(ctx, c, req.ID, req.UpdateRequest)
}

func (s *Server) Delete(ctx context.Context, req *IDRequest) (*MessageResponse, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Delete(ctx, c, req.ID); err != nil {
		return nil, err
	}
	return &MessageResponse{Message: "Account deleted successfully"}, nil
}

func (s *Server) ListRefreshTokens(ctx context.Context, req *IDRequest) (*RefreshTokensResponse, error) {
	c, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.accounts.RefreshTokens(ctx, c, req.ID)
	if err != nil {
		return nil, err
	}
	return &RefreshTokensResponse{Tokens: list}, nil
}
