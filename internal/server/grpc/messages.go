package grpc

import (
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

// Origin, where present, is the base URL of the web client; emails then
// carry links instead of bare tokens.

type RegisterRequest struct {
	services.RegisterRequest
	Origin string `json:"origin,omitempty"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type AuthenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email  string `json:"email"`
	Origin string `json:"origin,omitempty"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type IDRequest struct {
	ID string `json:"id"`
}

type UpdateRequest struct {
	ID string `json:"id"`
	services.UpdateRequest
}

type Empty struct{}

type MessageResponse struct {
	Message string `json:"message"`
}

type AccountsResponse struct {
	Accounts []models.AccountDetails `json:"accounts"`
}

type RefreshTokensResponse struct {
	Tokens []models.RefreshTokenDetails `json:"tokens"`
}
